package win32

import (
	"os"

	"github.com/cau-citcwalker/citcrun/internal/ntstatus"
)

// GetEnv reads env var name into buf, returning the length written
// (excluding a terminator) on success, or the length required when buf
// is too small (a nil buf is treated as size-probe mode, matching
// GetEnvironmentVariable's two-call idiom).
func (s *Surrogate) GetEnv(name string, buf []byte) (int, bool) {
	val, ok := os.LookupEnv(name)
	if !ok {
		s.SetLastError(ntstatus.ErrorInvalidParameter)
		return 0, false
	}
	if buf == nil || len(buf) < len(val)+1 {
		return len(val) + 1, false
	}
	n := copy(buf, val)
	buf[n] = 0
	return n, true
}

// SetEnv maps to setenv, or unsetenv when value is empty — matching
// SetEnvironmentVariable's contract that passing NULL deletes the variable.
func (s *Surrogate) SetEnv(name, value string) bool {
	var err error
	if value == "" {
		err = os.Unsetenv(name)
	} else {
		err = os.Setenv(name, value)
	}
	if err != nil {
		s.SetLastError(ntstatus.ErrorInvalidParameter)
		return false
	}
	return true
}
