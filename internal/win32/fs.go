package win32

import (
	"os"
	"path/filepath"

	"github.com/cau-citcwalker/citcrun/internal/handle"
	"github.com/cau-citcwalker/citcrun/internal/nt"
	"github.com/cau-citcwalker/citcrun/internal/ntstatus"
)

// File attribute bits this core distinguishes: directory vs archive
// (everything not a directory is reported as a plain archive file).
const (
	FileAttributeArchive   = 0x20
	FileAttributeDirectory = 0x10
)

// File type codes for GetFileType.
const (
	FileTypeUnknown = 0
	FileTypeDisk    = 1
	FileTypeChar    = 2
)

// CreateDirectory translates path and mkdirs it.
func (s *Surrogate) CreateDirectory(path string) bool {
	native := nt.TranslatePath(path)
	if err := os.Mkdir(native, 0755); err != nil {
		s.SetLastError(ntstatus.ToWin32(ntstatus.FromErrno(err)))
		return false
	}
	return true
}

// RemoveDirectory translates path and rmdirs it.
func (s *Surrogate) RemoveDirectory(path string) bool {
	native := nt.TranslatePath(path)
	if err := os.Remove(native); err != nil {
		s.SetLastError(ntstatus.ToWin32(ntstatus.FromErrno(err)))
		return false
	}
	return true
}

// GetTempPath returns the fixed literal "/tmp/", matching spec.md §4.3.
func (s *Surrogate) GetTempPath() string {
	return "/tmp/"
}

// GetCurrentDirectory returns the host process's current directory.
func (s *Surrogate) GetCurrentDirectory() (string, bool) {
	wd, err := os.Getwd()
	if err != nil {
		s.SetLastError(ntstatus.ErrorGenFailure)
		return "", false
	}
	return wd, true
}

// SetCurrentDirectory chdirs the host process.
func (s *Surrogate) SetCurrentDirectory(path string) bool {
	native := nt.TranslatePath(path)
	if err := os.Chdir(native); err != nil {
		s.SetLastError(ntstatus.ToWin32(ntstatus.FromErrno(err)))
		return false
	}
	return true
}

// GetFileAttributes reports the directory bit vs the archive bit.
func (s *Surrogate) GetFileAttributes(path string) (uint32, bool) {
	native := nt.TranslatePath(path)
	info, err := os.Stat(native)
	if err != nil {
		s.SetLastError(ntstatus.ErrorFileNotFound)
		return 0xFFFFFFFF, false
	}
	if info.IsDir() {
		return FileAttributeDirectory, true
	}
	return FileAttributeArchive, true
}

// GetFileType reports console handles as character devices and file
// handles as disk files.
func (s *Surrogate) GetFileType(h handle.Handle) uint32 {
	e, err := s.HT.Reference(h)
	if err != nil {
		return FileTypeUnknown
	}
	switch e.Kind {
	case handle.Console:
		return FileTypeChar
	case handle.File:
		return FileTypeDisk
	default:
		return FileTypeUnknown
	}
}

// findExtra is stashed in a find-enumeration handle's Entry.Extra: the
// directory being scanned, the glob pattern, and which entries have
// already been yielded (find_next resumes from the position find_first
// or the previous find_next left off).
type findExtra struct {
	dir      string
	pattern  string
	names    []string
	position int
}

// FindData is the record a successful find_first/find_next fills in.
type FindData struct {
	Name       string
	Attributes uint32
	Size       int64
}

// FindFirst splits pattern into a directory and a glob, scans the
// directory for the first match (skipping "." and ".."), and stashes the
// remaining listing so FindNext can resume without re-walking from
// scratch.
func (s *Surrogate) FindFirst(pattern string) (handle.Handle, FindData, ntstatus.Status) {
	native := nt.TranslatePath(pattern)
	dir := filepath.Dir(native)
	glob := filepath.Base(native)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return handle.Invalid, FindData{}, ntstatus.FromErrno(err)
	}

	names := make([]string, 0, len(entries))
	for _, ent := range entries {
		name := ent.Name()
		if name == "." || name == ".." {
			continue
		}
		if ok, _ := filepath.Match(glob, name); ok {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return handle.Invalid, FindData{}, ntstatus.StatusObjectNameNotFound
	}

	fe := &findExtra{dir: dir, pattern: glob, names: names, position: 1}
	h, allocErr := s.HT.Allocate(handle.File, -1, handle.AccessRead, fe)
	if allocErr != nil {
		return handle.Invalid, FindData{}, ntstatus.StatusTooManyOpenedFiles
	}
	fd, statErr := s.buildFindData(dir, names[0])
	if statErr != ntstatus.StatusSuccess {
		return handle.Invalid, FindData{}, statErr
	}
	return h, fd, ntstatus.StatusSuccess
}

// FindNext continues the scan stashed by FindFirst.
func (s *Surrogate) FindNext(h handle.Handle) (FindData, ntstatus.Status) {
	e, err := s.HT.Reference(h)
	if err != nil {
		return FindData{}, ntstatus.StatusInvalidHandle
	}
	fe, ok := e.Extra.(*findExtra)
	if !ok {
		return FindData{}, ntstatus.StatusInvalidHandle
	}
	if fe.position >= len(fe.names) {
		return FindData{}, ntstatus.StatusNoMoreEntries
	}
	name := fe.names[fe.position]
	fe.position++
	return s.buildFindData(fe.dir, name)
}

// FindClose closes the directory scan and releases the handle.
func (s *Surrogate) FindClose(h handle.Handle) bool {
	if err := s.HT.Close(h); err != nil {
		s.SetLastError(ntstatus.ErrorInvalidHandle)
		return false
	}
	return true
}

func (s *Surrogate) buildFindData(dir, name string) (FindData, ntstatus.Status) {
	info, err := os.Stat(filepath.Join(dir, name))
	if err != nil {
		return FindData{}, ntstatus.FromErrno(err)
	}
	attrs := uint32(FileAttributeArchive)
	if info.IsDir() {
		attrs = FileAttributeDirectory
	}
	return FindData{Name: name, Attributes: attrs, Size: info.Size()}, ntstatus.StatusSuccess
}
