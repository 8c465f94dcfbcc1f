// Package registry implements the filesystem-backed hierarchical registry:
// directories stand in for keys, files for values, and four root hives
// (HKLM, HKCU, HKU, HKCR) live under one memoized base path per process.
//
// Grounded on runtime_ipc.go's resolveSocketPath, generalized from a
// single env-var-or-/tmp socket path into the four-step base-path
// resolution spec.md §4.4 requires: environment variable, then a
// privileged system path, then a dot-directory under the user home, then
// a temp-directory fallback.
package registry

import (
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cau-citcwalker/citcrun/internal/handle"
	"github.com/cau-citcwalker/citcrun/internal/ntstatus"
)

// Hive identifies one of the four root pseudo-handles a guest starts with.
type Hive int

const (
	HKLM Hive = iota
	HKCU
	HKU
	HKCR
)

var hiveDirNames = map[Hive]string{
	HKLM: "HKLM",
	HKCU: "HKCU",
	HKU:  "HKU",
	HKCR: "HKCR",
}

// DefaultValueName is the file name used for a key's unnamed "(Default)"
// value, matching spec.md §6 exactly.
const DefaultValueName = "(Default)"

// Disposition reports whether CreateKey found an existing directory or
// made a new one.
type Disposition int

const (
	DispositionCreatedNewKey Disposition = iota
	DispositionOpenedExistingKey
)

// ErrBadHandle is returned by Registry methods only at the Go-API layer
// (resolveParentPath); every guest-facing path reports failure through an
// ntstatus.Status instead.
var ErrBadHandle = errors.New("registry: invalid handle")

// Registry resolves and memoizes the on-disk base path and builds key
// handles relative to it.
type Registry struct {
	ht *handle.Table

	once    sync.Once
	baseErr error
	base    string
}

// New binds a Registry to the shared process-global handle table.
func New(ht *handle.Table) *Registry {
	return &Registry{ht: ht}
}

// basePath resolves and memoizes the registry root. Order of precedence,
// per spec.md §4.4: CITC_REGISTRY_PATH env var; else, for root (uid 0), a
// system path; else a dot-directory under the user home; else os.TempDir.
func (r *Registry) basePath() (string, error) {
	r.once.Do(func() {
		if p := os.Getenv("CITC_REGISTRY_PATH"); p != "" {
			r.base = p
			r.baseErr = os.MkdirAll(p, 0755)
			return
		}
		if os.Geteuid() == 0 {
			p := "/var/lib/citcrun/registry"
			if err := os.MkdirAll(p, 0755); err == nil {
				r.base = p
				return
			}
		}
		if home, err := os.UserHomeDir(); err == nil {
			p := filepath.Join(home, ".citc", "registry")
			if err := os.MkdirAll(p, 0755); err == nil {
				r.base = p
				return
			}
		}
		p := filepath.Join(os.TempDir(), "citcrun-registry")
		r.base = p
		r.baseErr = os.MkdirAll(p, 0755)
	})
	return r.base, r.baseErr
}

// BasePath exposes the resolved on-disk registry root for diagnostic
// consumers (the --monitor debugger's registry tree walk). It triggers
// the same memoized resolution the guest-facing operations use.
func (r *Registry) BasePath() (string, error) {
	return r.basePath()
}

func foldSlashes(p string) string {
	return strings.ReplaceAll(p, `\`, `/`)
}

// keyExtra is the registry-specific payload stashed in a key handle's
// Entry.Extra: the resolved host directory this key's handle refers to.
type keyExtra struct {
	path string
}

func isRootHandle(h handle.Handle) (Hive, bool) {
	// Root hive pseudo-handles are encoded as bit 32 plus the hive
	// index, keeping them disjoint from every real allocated handle
	// (which is always small and positive from handle.Table.Allocate).
	const rootTag = handle.Handle(1) << 32
	if h&rootTag == 0 {
		return 0, false
	}
	return Hive(h &^ rootTag), true
}

// RootHandle returns the fixed pseudo-handle for a hive. These never go
// through the handle table and closing one is always a no-op.
func RootHandle(hv Hive) handle.Handle {
	const rootTag = handle.Handle(1) << 32
	return rootTag | handle.Handle(hv)
}

func (r *Registry) resolveParentPath(parent handle.Handle) (string, error) {
	if hv, ok := isRootHandle(parent); ok {
		base, err := r.basePath()
		if err != nil {
			return "", err
		}
		name, ok := hiveDirNames[hv]
		if !ok {
			return "", ErrBadHandle
		}
		return filepath.Join(base, name), nil
	}
	e, err := r.ht.Reference(parent)
	if err != nil || e.Kind != handle.RegistryKey {
		return "", ErrBadHandle
	}
	ke, ok := e.Extra.(keyExtra)
	if !ok {
		return "", ErrBadHandle
	}
	return ke.path, nil
}

// OpenKey resolves parent+subpath to a host directory, verifies it
// exists, and allocates a handle stashing the resolved path.
func (r *Registry) OpenKey(parent handle.Handle, subpath string) (handle.Handle, ntstatus.Status) {
	parentPath, err := r.resolveParentPath(parent)
	if err != nil {
		return handle.Invalid, ntstatus.StatusInvalidHandle
	}
	full := filepath.Join(parentPath, foldSlashes(subpath))
	info, statErr := os.Stat(full)
	if statErr != nil {
		return handle.Invalid, ntstatus.StatusObjectNameNotFound
	}
	if !info.IsDir() {
		return handle.Invalid, ntstatus.StatusNotADirectory
	}
	h, allocErr := r.ht.Allocate(handle.RegistryKey, -1, handle.AccessRead|handle.AccessWrite, keyExtra{path: full})
	if allocErr != nil {
		return handle.Invalid, ntstatus.StatusTooManyOpenedFiles
	}
	return h, ntstatus.StatusSuccess
}

// CreateKey is OpenKey plus mkdir -p if the directory is absent, reporting
// which happened via Disposition.
func (r *Registry) CreateKey(parent handle.Handle, subpath string) (handle.Handle, Disposition, ntstatus.Status) {
	parentPath, err := r.resolveParentPath(parent)
	if err != nil {
		return handle.Invalid, 0, ntstatus.StatusInvalidHandle
	}
	full := filepath.Join(parentPath, foldSlashes(subpath))

	disp := DispositionOpenedExistingKey
	if _, statErr := os.Stat(full); statErr != nil {
		if mkErr := os.MkdirAll(full, 0755); mkErr != nil {
			return handle.Invalid, 0, ntstatus.FromErrno(mkErr)
		}
		disp = DispositionCreatedNewKey
	}

	h, allocErr := r.ht.Allocate(handle.RegistryKey, -1, handle.AccessRead|handle.AccessWrite, keyExtra{path: full})
	if allocErr != nil {
		return handle.Invalid, 0, ntstatus.StatusTooManyOpenedFiles
	}
	return h, disp, ntstatus.StatusSuccess
}

// CloseKey frees the handle slot. Root hive pseudo-handles are never in
// the handle table, so closing one is always a no-op success.
func (r *Registry) CloseKey(h handle.Handle) ntstatus.Status {
	if _, ok := isRootHandle(h); ok {
		return ntstatus.StatusSuccess
	}
	if err := r.ht.Close(h); err != nil {
		return ntstatus.StatusInvalidHandle
	}
	return ntstatus.StatusSuccess
}

const valueHeaderSize = 8 // two little-endian uint32 fields: type, length

// QueryValue reads a value's {type,length} header and, when buf is large
// enough, its payload. A nil buf returns only the length (via n) with
// StatusSuccess; a non-nil buf that is too small returns the length with
// StatusMoreData — this mirrors RegQueryValueEx's two-call idiom (size
// probe, then read).
func (r *Registry) QueryValue(key handle.Handle, name string, buf []byte) (valType uint32, n int, status ntstatus.Status) {
	if name == "" {
		name = DefaultValueName
	}
	e, err := r.ht.Reference(key)
	if err != nil || e.Kind != handle.RegistryKey {
		return 0, 0, ntstatus.StatusInvalidHandle
	}
	ke := e.Extra.(keyExtra)
	path := filepath.Join(ke.path, name)

	f, openErr := os.Open(path)
	if openErr != nil {
		return 0, 0, ntstatus.FromErrno(openErr)
	}
	defer f.Close()

	var hdr [valueHeaderSize]byte
	if _, err := io.ReadFull(f, hdr[:]); err != nil {
		return 0, 0, ntstatus.StatusUnsuccessful
	}
	valType = binary.LittleEndian.Uint32(hdr[0:4])
	length := binary.LittleEndian.Uint32(hdr[4:8])

	if buf == nil {
		return valType, int(length), ntstatus.StatusSuccess
	}
	if uint32(len(buf)) < length {
		return valType, int(length), ntstatus.StatusMoreData
	}
	read, err := io.ReadFull(f, buf[:length])
	if err != nil {
		return valType, 0, ntstatus.StatusUnsuccessful
	}
	return valType, read, ntstatus.StatusSuccess
}

// SetValue verifies the key exists, then writes {type,length} followed by
// data to the named value file, creating or truncating as needed.
func (r *Registry) SetValue(key handle.Handle, name string, valType uint32, data []byte) ntstatus.Status {
	if name == "" {
		name = DefaultValueName
	}
	e, err := r.ht.Reference(key)
	if err != nil || e.Kind != handle.RegistryKey {
		return ntstatus.StatusInvalidHandle
	}
	ke := e.Extra.(keyExtra)
	path := filepath.Join(ke.path, name)

	f, openErr := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if openErr != nil {
		return ntstatus.FromErrno(openErr)
	}
	defer f.Close()

	var hdr [valueHeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], valType)
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(data)))
	if _, err := f.Write(hdr[:]); err != nil {
		return ntstatus.FromErrno(err)
	}
	if _, err := f.Write(data); err != nil {
		return ntstatus.FromErrno(err)
	}
	return ntstatus.StatusSuccess
}

// DeleteKey removes an empty key directory. A non-empty directory maps to
// access_denied: Windows requires an explicit recursive-delete call that
// this layer does not implement.
func (r *Registry) DeleteKey(parent handle.Handle, subpath string) ntstatus.Status {
	parentPath, err := r.resolveParentPath(parent)
	if err != nil {
		return ntstatus.StatusInvalidHandle
	}
	full := filepath.Join(parentPath, foldSlashes(subpath))
	if rmErr := os.Remove(full); rmErr != nil {
		if pe, ok := rmErr.(*os.PathError); ok && isNotEmpty(pe) {
			return ntstatus.StatusAccessDenied
		}
		return ntstatus.FromErrno(rmErr)
	}
	return ntstatus.StatusSuccess
}

func isNotEmpty(pe *os.PathError) bool {
	return strings.Contains(pe.Err.Error(), "not empty") || strings.Contains(pe.Err.Error(), "directory not empty")
}

// DeleteValue unlinks a value file.
func (r *Registry) DeleteValue(key handle.Handle, name string) ntstatus.Status {
	if name == "" {
		name = DefaultValueName
	}
	e, err := r.ht.Reference(key)
	if err != nil || e.Kind != handle.RegistryKey {
		return ntstatus.StatusInvalidHandle
	}
	ke := e.Extra.(keyExtra)
	if rmErr := os.Remove(filepath.Join(ke.path, name)); rmErr != nil {
		return ntstatus.FromErrno(rmErr)
	}
	return ntstatus.StatusSuccess
}

// EnumerateSubkeys returns the name of the index-th subdirectory entry of
// key, skipping "." and "..". The directory is re-walked from scratch on
// every call: the cursor is not persisted, trading an O(n^2) full
// enumeration for a stateless API that can't be invalidated by a
// concurrent mutation between calls.
func (r *Registry) EnumerateSubkeys(key handle.Handle, index int) (string, ntstatus.Status) {
	return r.enumerate(key, index, true)
}

// EnumerateValues is EnumerateSubkeys's counterpart over regular files.
func (r *Registry) EnumerateValues(key handle.Handle, index int) (string, ntstatus.Status) {
	return r.enumerate(key, index, false)
}

func (r *Registry) enumerate(key handle.Handle, index int, dirs bool) (string, ntstatus.Status) {
	e, err := r.ht.Reference(key)
	if err != nil || e.Kind != handle.RegistryKey {
		return "", ntstatus.StatusInvalidHandle
	}
	ke := e.Extra.(keyExtra)
	entries, rdErr := os.ReadDir(ke.path)
	if rdErr != nil {
		return "", ntstatus.FromErrno(rdErr)
	}

	count := 0
	for _, ent := range entries {
		name := ent.Name()
		if name == "." || name == ".." {
			continue
		}
		if ent.IsDir() != dirs {
			continue
		}
		if count == index {
			return name, ntstatus.StatusSuccess
		}
		count++
	}
	return "", ntstatus.StatusNoMoreEntries
}
