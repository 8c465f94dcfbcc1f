// Package nt implements the NT file layer: Windows-path translation plus
// create_file/read/write/close/query_file_size/set_file_position/delete_file,
// each returning an ntstatus.Status instead of a host error so the win32
// surrogate can translate it straight into a GetLastError code.
//
// Grounded on file_io.go's FileIODevice, generalized from a sandboxed
// single-directory MMIO device into a full file layer that opens anywhere
// the host process can reach, using golang.org/x/sys/unix for exact control
// over open flags (spec.md's disposition table needs O_CREAT|O_EXCL and
// O_CREAT|O_TRUNC distinguished, which os.OpenFile's os.FileMode-based API
// does not expose directly).
package nt

import (
	"strings"

	"golang.org/x/sys/unix"

	"github.com/cau-citcwalker/citcrun/internal/handle"
	"github.com/cau-citcwalker/citcrun/internal/ntstatus"
)

// Access mirrors the Windows GENERIC_READ/GENERIC_WRITE bits, already
// decoded down to the three combinations the layer cares about.
type Access uint32

const (
	AccessRead Access = 1 << iota
	AccessWrite
)

// Disposition is one of the five Windows file creation dispositions.
type Disposition int

const (
	CreateNew Disposition = iota
	CreateAlways
	OpenExisting
	OpenAlways
	TruncateExisting
)

// Whence mirrors the three SetFilePointer origins.
type Whence int

const (
	WhenceBegin Whence = iota
	WhenceCurrent
	WhenceEnd
)

// TranslatePath strips an optional leading drive letter and folds every
// backslash to a forward slash. Relative paths pass through unchanged;
// the result is handed to the host open call as-is.
func TranslatePath(p string) string {
	if len(p) >= 2 && isDriveLetter(p[0]) && p[1] == ':' {
		p = p[2:]
	}
	return strings.ReplaceAll(p, `\`, `/`)
}

func isDriveLetter(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}

func openFlags(access Access, disp Disposition) int {
	var flags int
	switch {
	case access&AccessWrite != 0 && access&AccessRead != 0:
		flags = unix.O_RDWR
	case access&AccessWrite != 0:
		flags = unix.O_WRONLY
	default:
		flags = unix.O_RDONLY
	}
	switch disp {
	case CreateNew:
		flags |= unix.O_CREAT | unix.O_EXCL
	case CreateAlways:
		flags |= unix.O_CREAT | unix.O_TRUNC
	case OpenExisting:
		// no extra flags
	case OpenAlways:
		flags |= unix.O_CREAT
	case TruncateExisting:
		flags |= unix.O_TRUNC
	}
	return flags
}

// Layer binds the NT file layer to a process-global handle table.
type Layer struct {
	ht *handle.Table
}

// New builds a Layer over an existing handle table — the same table the
// win32 and registry surrogates share, since file/console/event/mutex
// handles all live in one NT-style object space per spec.md §4.1.
func New(ht *handle.Table) *Layer {
	return &Layer{ht: ht}
}

// CreateFile opens path per access/disp and installs a file entry in the
// handle table, returning the new handle, or handle.Invalid and a status
// on failure.
func (l *Layer) CreateFile(path string, access Access, disp Disposition) (handle.Handle, ntstatus.Status) {
	native := TranslatePath(path)
	flags := openFlags(access, disp)
	fd, err := unix.Open(native, flags, 0644)
	if err != nil {
		return handle.Invalid, ntstatus.FromErrno(err)
	}

	var mask handle.Access
	if access&AccessRead != 0 {
		mask |= handle.AccessRead
	}
	if access&AccessWrite != 0 {
		mask |= handle.AccessWrite
	}

	h, err := l.ht.Allocate(handle.File, fd, mask, nil)
	if err != nil {
		unix.Close(fd)
		return handle.Invalid, ntstatus.StatusTooManyOpenedFiles
	}
	return h, ntstatus.StatusSuccess
}

// Read delegates to the host read(2) on h's fd, returning the number of
// bytes actually transferred.
func (l *Layer) Read(h handle.Handle, buf []byte) (int, ntstatus.Status) {
	e, err := l.ht.Reference(h)
	if err != nil {
		return 0, ntstatus.StatusInvalidHandle
	}
	n, err := unix.Read(e.NativeFD, buf)
	if err != nil {
		return 0, ntstatus.FromErrno(err)
	}
	if n == 0 && len(buf) > 0 {
		return 0, ntstatus.StatusEndOfFile
	}
	return n, ntstatus.StatusSuccess
}

// Write delegates to the host write(2) on h's fd.
func (l *Layer) Write(h handle.Handle, buf []byte) (int, ntstatus.Status) {
	e, err := l.ht.Reference(h)
	if err != nil {
		return 0, ntstatus.StatusInvalidHandle
	}
	n, err := unix.Write(e.NativeFD, buf)
	if err != nil {
		return 0, ntstatus.FromErrno(err)
	}
	return n, ntstatus.StatusSuccess
}

// Close destroys the handle table entry and closes the underlying fd.
// Console handles are never actually closed, per spec.md §4.1/§4.2; the
// handle table itself already treats closing a console slot as a no-op.
func (l *Layer) Close(h handle.Handle) ntstatus.Status {
	e, err := l.ht.Reference(h)
	if err != nil {
		return ntstatus.StatusInvalidHandle
	}
	if e.Kind == handle.Console {
		return ntstatus.StatusSuccess
	}
	if cerr := l.ht.Close(h); cerr != nil {
		return ntstatus.StatusInvalidHandle
	}
	unix.Close(e.NativeFD)
	return ntstatus.StatusSuccess
}

// QueryFileSize uses fstat(2) on h's fd.
func (l *Layer) QueryFileSize(h handle.Handle) (int64, ntstatus.Status) {
	e, err := l.ht.Reference(h)
	if err != nil {
		return 0, ntstatus.StatusInvalidHandle
	}
	var st unix.Stat_t
	if err := unix.Fstat(e.NativeFD, &st); err != nil {
		return 0, ntstatus.FromErrno(err)
	}
	return st.Size, ntstatus.StatusSuccess
}

// SetFilePosition delegates to host lseek(2).
func (l *Layer) SetFilePosition(h handle.Handle, offset int64, whence Whence) (int64, ntstatus.Status) {
	e, err := l.ht.Reference(h)
	if err != nil {
		return 0, ntstatus.StatusInvalidHandle
	}
	var nativeWhence int
	switch whence {
	case WhenceBegin:
		nativeWhence = unix.SEEK_SET
	case WhenceCurrent:
		nativeWhence = unix.SEEK_CUR
	case WhenceEnd:
		nativeWhence = unix.SEEK_END
	}
	pos, err := unix.Seek(e.NativeFD, offset, nativeWhence)
	if err != nil {
		return 0, ntstatus.FromErrno(err)
	}
	return pos, ntstatus.StatusSuccess
}

// DeleteFile translates path and unlinks it.
func (l *Layer) DeleteFile(path string) ntstatus.Status {
	native := TranslatePath(path)
	if err := unix.Unlink(native); err != nil {
		return ntstatus.FromErrno(err)
	}
	return ntstatus.StatusSuccess
}
