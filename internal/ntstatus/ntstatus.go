// Package ntstatus implements the two fixed translation tables spec.md §4.2
// and §7 describe: host errno to NT status on the way in, and NT status to
// Win32 error on the way back out to the guest. Both are closed sets;
// anything not named folds to a generic failure, matching the "Resolution
// warnings... unsuccessful" taxonomy in spec.md §7.
package ntstatus

import (
	"errors"

	"golang.org/x/sys/unix"
)

// Status is an NT-style status code, internal to nt/win32 — never the
// Win32 numeric error the guest ultimately sees.
type Status int

const (
	StatusSuccess Status = iota
	StatusObjectNameNotFound
	StatusAccessDenied
	StatusObjectNameCollision
	StatusTooManyOpenedFiles
	StatusDiskFull
	StatusInvalidHandle
	StatusInvalidParameter
	StatusNotADirectory
	StatusEndOfFile
	StatusNoMoreEntries
	StatusMoreData
	StatusUnsuccessful
)

// Win32 error codes the surrogate layer writes to the thread-local last-error
// slot. Values match the real Windows constants so guest code that compares
// against them by number behaves correctly.
const (
	ErrorSuccess          = 0
	ErrorFileNotFound     = 2
	ErrorAccessDenied     = 5
	ErrorInvalidHandle    = 6
	ErrorNotEnoughMemory  = 8
	ErrorInvalidDrive     = 15
	ErrorNotReady         = 21
	ErrorSharingViolation = 32
	ErrorFileExists       = 80
	ErrorInvalidParameter = 87
	ErrorDiskFull         = 112
	ErrorAlreadyExists    = 183
	ErrorMoreData         = 234
	ErrorNoMoreFiles      = 18
	ErrorDirectory        = 267
	ErrorHandleEof        = 38
	ErrorGenFailure       = 31
	ErrorNoMoreItems      = 259
)

// FromErrno maps a host errno to an NT status. Unknown errnos fold to
// StatusUnsuccessful.
func FromErrno(err error) Status {
	if err == nil {
		return StatusSuccess
	}
	var errno unix.Errno
	if !errors.As(err, &errno) {
		return StatusUnsuccessful
	}
	switch errno {
	case unix.ENOENT:
		return StatusObjectNameNotFound
	case unix.EACCES, unix.EPERM:
		return StatusAccessDenied
	case unix.EEXIST:
		return StatusObjectNameCollision
	case unix.EMFILE, unix.ENFILE:
		return StatusTooManyOpenedFiles
	case unix.ENOSPC:
		return StatusDiskFull
	case unix.EBADF:
		return StatusInvalidHandle
	case unix.EINVAL:
		return StatusInvalidParameter
	case unix.ENOTDIR:
		return StatusNotADirectory
	default:
		return StatusUnsuccessful
	}
}

// ToWin32 maps an NT status to the Win32 error code the guest observes via
// GetLastError.
func ToWin32(s Status) uint32 {
	switch s {
	case StatusSuccess:
		return ErrorSuccess
	case StatusObjectNameNotFound:
		return ErrorFileNotFound
	case StatusAccessDenied:
		return ErrorAccessDenied
	case StatusObjectNameCollision:
		return ErrorFileExists
	case StatusTooManyOpenedFiles:
		return ErrorNotEnoughMemory
	case StatusDiskFull:
		return ErrorDiskFull
	case StatusInvalidHandle:
		return ErrorInvalidHandle
	case StatusInvalidParameter:
		return ErrorInvalidParameter
	case StatusNotADirectory:
		return ErrorDirectory
	case StatusEndOfFile:
		return ErrorHandleEof
	case StatusNoMoreEntries:
		return ErrorNoMoreItems
	case StatusMoreData:
		return ErrorMoreData
	default:
		return ErrorGenFailure
	}
}
