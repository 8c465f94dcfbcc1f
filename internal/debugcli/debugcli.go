// Package debugcli is citcrun's --monitor attach debugger: a line-oriented
// REPL that inspects a freshly-activated image before it runs, dumps the
// handle table and PE section layout, and can drop into Lua for ad hoc
// inspection scripts.
//
// Grounded on debug_monitor.go's MachineMonitor (an activate/command/
// deactivate state machine reacting to a small fixed vocabulary of
// single-letter commands) and terminal_host.go's term.MakeRaw/Restore
// pairing around a raw single-keystroke read loop.
package debugcli

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"golang.org/x/term"

	"github.com/cau-citcwalker/citcrun/internal/gfx"
	"github.com/cau-citcwalker/citcrun/internal/handle"
	"github.com/cau-citcwalker/citcrun/internal/pe"
	"github.com/cau-citcwalker/citcrun/internal/win32"
)

// Run enters the monitor REPL over stdin/stdout and blocks until the user
// issues "continue" (or "c"), at which point control returns to the
// caller so it can transfer control to the guest entry point. "quit" (or
// "q") exits the process immediately without running the guest at all.
func Run(path string, img *pe.Image, sur *win32.Surrogate, world *gfx.World) {
	fmt.Printf("citcrun monitor — attached to %s\n", path)
	fmt.Println("Type ? for help, c to continue execution, q to quit.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("(citcrun) ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		cmd := fields[0]

		switch cmd {
		case "?", "help":
			printHelp()
		case "c", "continue":
			return
		case "q", "quit":
			os.Exit(0)
		case "info":
			dumpImage(img)
		case "handles":
			dumpHandles(sur.HT)
		case "reg":
			sub := ""
			if len(fields) > 1 {
				sub = fields[1]
			}
			dumpRegistryTree(sur, sub)
		case "shaders":
			dumpShaders(world)
		case "step":
			stepKeystroke()
		case "lua":
			runLua(strings.TrimSpace(strings.TrimPrefix(line, cmd)), img, sur)
		default:
			fmt.Printf("unknown command %q — type ? for help\n", cmd)
		}
	}
}

func printHelp() {
	fmt.Println(`commands:
  info              dump the activated image's base/entry/sections
  handles           dump every live handle-table entry
  reg [subpath]     walk the on-disk registry tree (keys and typed values)
  shaders           dump every shader the guest has created so far
  step              wait for one raw keystroke (demonstrates raw-mode attach)
  lua <expr>        evaluate expr in a fresh Lua state with 'image' and 'handles' tables bound
  c | continue      resume: transfer control to the guest entry point
  q | quit          exit citcrun without running the guest`)
}

func dumpImage(img *pe.Image) {
	fmt.Printf("base=0x%x size=0x%x entry_rva=0x%x\n", img.Base, img.Size, img.EntryRVA)
	for _, s := range img.Sections {
		fmt.Printf("  %-8s va=0x%08x vsize=0x%08x\n", s.NameString(), s.VirtualAddress, s.VirtualSize)
	}
}

func dumpHandles(ht *handle.Table) {
	count := 0
	ht.ForEach(func(h handle.Handle, e handle.Entry) {
		fmt.Printf("  %6d  %-12s fd=%d access=%d\n", h, e.Kind, e.NativeFD, e.AccessMask)
		count++
	})
	if count == 0 {
		fmt.Println("  (no open handles)")
	}
}

// dumpRegistryTree walks the resolved registry base directory (or a
// subtree of it) and prints keys as directory paths and values as
// name/size pairs, the on-disk shape spec.md pins down: directories are
// keys, regular files are values.
func dumpRegistryTree(sur *win32.Surrogate, subpath string) {
	base, err := sur.Reg.BasePath()
	if err != nil {
		fmt.Printf("registry base unavailable: %v\n", err)
		return
	}
	root := base
	if subpath != "" {
		root = filepath.Join(base, filepath.FromSlash(strings.ReplaceAll(subpath, `\`, "/")))
	}
	fmt.Printf("registry root: %s\n", root)
	walkErr := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil || rel == "." {
			return nil
		}
		indent := strings.Repeat("  ", strings.Count(rel, string(filepath.Separator))+1)
		if d.IsDir() {
			fmt.Printf("%s[%s]\n", indent, d.Name())
			return nil
		}
		info, statErr := d.Info()
		size := int64(0)
		if statErr == nil {
			size = info.Size()
		}
		fmt.Printf("%s%s  (%d bytes incl. header)\n", indent, d.Name(), size)
		return nil
	})
	if walkErr != nil {
		fmt.Printf("walk: %v\n", walkErr)
	}
}

// dumpShaders prints one line per live shader-table entry.
func dumpShaders(world *gfx.World) {
	if world == nil {
		fmt.Println("  (no graphics world attached)")
		return
	}
	infos := world.ShaderInfos()
	if len(infos) == 0 {
		fmt.Println("  (no shaders created)")
		return
	}
	for _, si := range infos {
		stage := "ps"
		if si.Stage == gfx.StageVertex {
			stage = "vs"
		}
		spv := "cpu-only"
		if si.SPIRV > 0 {
			spv = fmt.Sprintf("spirv=%dB", si.SPIRV)
		}
		fmt.Printf("  #%-3d %s dxbc=%dB temps=%d %s\n", si.Index, stage, si.RawBytes, si.NumTemp, spv)
	}
}

// stepKeystroke puts stdin into raw mode for exactly one keystroke, the
// same MakeRaw/Restore pairing terminal_host.go uses for the guest's
// console input, then restores cooked mode.
func stepKeystroke() {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		fmt.Println("stdin is not a terminal, skipping raw-mode step")
		return
	}
	old, err := term.MakeRaw(fd)
	if err != nil {
		fmt.Printf("step: %v\n", err)
		return
	}
	defer term.Restore(fd, old)

	fmt.Print("press any key...\r\n")
	buf := make([]byte, 1)
	if _, err := os.Stdin.Read(buf); err == nil {
		fmt.Printf("got byte 0x%02x\r\n", buf[0])
	}
}

// runLua evaluates expr in a throwaway Lua state with two tables bound:
// image (base/size/entry_rva) and handles (count of currently-open
// handles). Both are plain Lua tables built for this call; assigning to
// them changes nothing outside the Lua state. Intended for quick ad hoc inspection, not a
// scripting API surface spec.md defines anywhere.
func runLua(expr string, img *pe.Image, sur *win32.Surrogate) {
	if expr == "" {
		fmt.Println("usage: lua <expression-or-statement>")
		return
	}
	L := lua.NewState()
	defer L.Close()

	imgTable := L.NewTable()
	L.SetField(imgTable, "base", lua.LNumber(img.Base))
	L.SetField(imgTable, "size", lua.LNumber(img.Size))
	L.SetField(imgTable, "entry_rva", lua.LNumber(img.EntryRVA))
	L.SetGlobal("image", imgTable)

	handleCount := 0
	sur.HT.ForEach(func(handle.Handle, handle.Entry) { handleCount++ })
	handlesTable := L.NewTable()
	L.SetField(handlesTable, "count", lua.LNumber(handleCount))
	L.SetGlobal("handles", handlesTable)

	L.SetGlobal("print", L.NewFunction(func(L *lua.LState) int {
		n := L.GetTop()
		parts := make([]string, n)
		for i := 1; i <= n; i++ {
			parts[i-1] = L.Get(i).String()
		}
		fmt.Println(strings.Join(parts, "\t"))
		return 0
	}))

	if err := L.DoString(expr); err != nil {
		fmt.Printf("lua: %v\n", err)
	}
}
