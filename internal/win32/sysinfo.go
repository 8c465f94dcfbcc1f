package win32

import (
	"os"
	"runtime"

	"golang.org/x/sys/unix"
)

// SystemInfo mirrors the subset of SYSTEM_INFO this core fills in.
type SystemInfo struct {
	PageSize              uint32
	NumberOfProcessors    uint32
	AllocationGranularity uint32
	ProcessorArchitecture uint16
}

// ProcessorArchitectureAMD64 is the only architecture this core reports.
const ProcessorArchitectureAMD64 = 9

// GetSystemInfo fills the fixed/host-derived SYSTEM_INFO fields spec.md
// §4.3 names.
func GetSystemInfo() SystemInfo {
	return SystemInfo{
		PageSize:              4096,
		NumberOfProcessors:    uint32(runtime.NumCPU()),
		AllocationGranularity: 65536,
		ProcessorArchitecture: ProcessorArchitectureAMD64,
	}
}

// MemoryStatusEx mirrors MEMORYSTATUSEX's core fields, filled from the
// host's sysinfo(2).
type MemoryStatusEx struct {
	TotalPhys     uint64
	AvailPhys     uint64
	MemoryLoad    uint32
	TotalPageFile uint64
	AvailPageFile uint64
}

// GlobalMemoryStatusEx fills from the host's sysinfo(2) syscall.
func GlobalMemoryStatusEx() MemoryStatusEx {
	var si unix.Sysinfo_t
	if err := unix.Sysinfo(&si); err != nil {
		return MemoryStatusEx{}
	}
	total := uint64(si.Totalram) * uint64(si.Unit)
	free := uint64(si.Freeram) * uint64(si.Unit)
	var load uint32
	if total > 0 {
		load = uint32((total - free) * 100 / total)
	}
	return MemoryStatusEx{
		TotalPhys:     total,
		AvailPhys:     free,
		MemoryLoad:    load,
		TotalPageFile: total + uint64(si.Totalswap)*uint64(si.Unit),
		AvailPageFile: free + uint64(si.Freeswap)*uint64(si.Unit),
	}
}

// VersionInfo mirrors OSVERSIONINFOEXA's fields, as a fixed synthetic
// "Windows 10 build 19041" identity.
type VersionInfo struct {
	MajorVersion uint32
	MinorVersion uint32
	BuildNumber  uint32
}

// GetVersionEx returns the fixed synthetic version identity.
func GetVersionEx() VersionInfo {
	return VersionInfo{MajorVersion: 10, MinorVersion: 0, BuildNumber: 19041}
}

// ComputerName returns the host's hostname.
func ComputerName() string {
	name, err := os.Hostname()
	if err != nil {
		return "CITCRUN-HOST"
	}
	return name
}

// WindowsDirectory and SystemDirectory are fixed literal strings: no real
// Windows installation exists on the host to derive them from.
const (
	WindowsDirectory = `C:\Windows`
	SystemDirectory  = `C:\Windows\System32`
)
