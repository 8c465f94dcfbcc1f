// Command citcview activates a Windows x86_64 PE image the same way
// citcrun does, but attaches a real ebiten-backed window in place of the
// headless default Compositor, so the guest's D3D11 swap-chain Present
// calls land on screen instead of an in-memory buffer.
//
// Grounded on video_backend_ebiten.go's EbitenOutput: an ebiten.Game
// wrapping a mutex-protected frame buffer, SetWindowSize/SetWindowTitle
// at startup, and a vsync channel Present blocks the guest... except
// here the guest runs on its own goroutine so the window stays
// responsive while the guest program executes.
package main

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"

	"github.com/cau-citcwalker/citcrun/internal/abi"
	"github.com/cau-citcwalker/citcrun/internal/diag"
	"github.com/cau-citcwalker/citcrun/internal/gfx"
	"github.com/cau-citcwalker/citcrun/internal/pe"
	"github.com/cau-citcwalker/citcrun/internal/win32"
)

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: citcview <program.exe> [args...]")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	path := os.Args[1]

	data, err := os.ReadFile(path)
	if err != nil {
		diag.Fatalf("reading %s: %v", path, err)
	}

	hdr, err := pe.ParseHeaders(data)
	if err != nil {
		diag.Fatalf("%s: %v", path, err)
	}

	cmdLine := strings.Join(os.Args[1:], " ")
	sur := win32.New(cmdLine, uintptr(hdr.ImageBase))
	world := gfx.New()

	registry := abi.NewRegistry()
	registry.Register(sur.StubTable())
	registry.Register(sur.Reg.StubTable())
	for _, t := range world.StubTables() {
		registry.Register(t)
	}

	comp := newWindowCompositor()
	world.SetCompositor(comp)

	img, err := pe.Load(data, registry)
	if err != nil {
		diag.Fatalf("activating %s: %v", path, err)
	}
	diag.Printf(diag.Graphics, "activated %s at base 0x%x, entry rva 0x%x", path, img.Base, img.EntryRVA)

	var exitCode uint32
	go func() {
		exitCode = img.Execute()
		comp.guestDone()
	}()

	ebiten.SetWindowTitle("citcview: " + path)
	ebiten.SetWindowResizable(true)
	ebiten.SetWindowSize(comp.width, comp.height)
	if err := ebiten.RunGame(comp); err != nil && err != ebiten.Termination {
		diag.Fatalf("window: %v", err)
	}
	os.Exit(int(exitCode))
}

// windowCompositor is cmd/citcview's real gfx.Compositor: an ebiten.Game
// whose backing surface is a fixed 640x480 RGBA8 buffer allocated by
// newWindowCompositor. The surface is never resized to follow the
// guest's swap chain.
type windowCompositor struct {
	mu     sync.Mutex
	width  int
	height int
	pixels []byte

	window *ebiten.Image
	done   bool
}

func newWindowCompositor() *windowCompositor {
	return &windowCompositor{width: 640, height: 480, pixels: make([]byte, 640*480*4)}
}

// Surface implements gfx.Compositor.
func (c *windowCompositor) Surface() (int, int, []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.width, c.height, c.pixels
}

// Commit implements gfx.Compositor. The swap chain has already written
// into the slice Surface returned; nothing further is needed until Draw
// next copies it onto screen.
func (c *windowCompositor) Commit() {}

func (c *windowCompositor) guestDone() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.done = true
}

func (c *windowCompositor) Update() error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done || ebiten.IsWindowBeingClosed() {
		return ebiten.Termination
	}
	return nil
}

func (c *windowCompositor) Draw(screen *ebiten.Image) {
	c.mu.Lock()
	if c.window == nil {
		c.window = ebiten.NewImage(c.width, c.height)
	}
	c.window.WritePixels(c.pixels)
	c.mu.Unlock()
	screen.DrawImage(c.window, nil)
}

func (c *windowCompositor) Layout(_, _ int) (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.width, c.height
}
