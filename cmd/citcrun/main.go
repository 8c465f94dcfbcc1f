// Command citcrun activates a Windows x86_64 PE image against citcrun's
// userspace PE loader, Win32 surrogate, registry, and Direct3D 11
// surrogate, then transfers control to its entry point.
//
// Grounded on the teacher's main.go: a flat os.Args switch with a
// Usage: fallback, no flag package, matching the corpus's preference for
// a hand-rolled CLI over a framework.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/cau-citcwalker/citcrun/internal/abi"
	"github.com/cau-citcwalker/citcrun/internal/debugcli"
	"github.com/cau-citcwalker/citcrun/internal/diag"
	"github.com/cau-citcwalker/citcrun/internal/gfx"
	"github.com/cau-citcwalker/citcrun/internal/pe"
	"github.com/cau-citcwalker/citcrun/internal/win32"
)

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: citcrun [--info|--monitor] <program.exe> [args...]")
	fmt.Fprintln(os.Stderr, "       citcrun --help")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "--help", "-h", "/?":
		usage()
		return
	case "--info":
		if len(os.Args) < 3 {
			usage()
			os.Exit(1)
		}
		runInfo(os.Args[2])
	case "--monitor":
		if len(os.Args) < 3 {
			usage()
			os.Exit(1)
		}
		runGuest(os.Args[2], os.Args[2:], true)
	default:
		runGuest(os.Args[1], os.Args[1:], false)
	}
}

// runInfo parses headers only — no mapping, no execution — and dumps
// them, per SPEC_FULL.md §C's --info surface.
func runInfo(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		diag.Fatalf("reading %s: %v", path, err)
	}
	if err := pe.DumpInfo(data, os.Stdout); err != nil {
		diag.Fatalf("%s: %v", path, err)
	}
}

// runGuest activates path and transfers control to its entry point. When
// monitor is true, an interactive debugger attaches before execution
// begins, per SPEC_FULL.md §C.
func runGuest(path string, guestArgs []string, monitor bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		diag.Fatalf("reading %s: %v", path, err)
	}

	hdr, err := pe.ParseHeaders(data)
	if err != nil {
		diag.Fatalf("%s: %v", path, err)
	}

	cmdLine := strings.Join(guestArgs, " ")
	sur := win32.New(cmdLine, uintptr(hdr.ImageBase))
	world := gfx.New()

	registry := abi.NewRegistry()
	registry.Register(sur.StubTable())
	registry.Register(sur.Reg.StubTable())
	for _, t := range world.StubTables() {
		registry.Register(t)
	}

	img, err := pe.Load(data, registry)
	if err != nil {
		diag.Fatalf("activating %s: %v", path, err)
	}
	diag.Printf(diag.Loader, "activated %s at base 0x%x, entry rva 0x%x", path, img.Base, img.EntryRVA)

	if monitor {
		debugcli.Run(path, img, sur, world)
	}

	code := img.Execute()
	os.Exit(int(code))
}
