package debugcli

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/cau-citcwalker/citcrun/internal/gfx"
	"github.com/cau-citcwalker/citcrun/internal/handle"
	"github.com/cau-citcwalker/citcrun/internal/ntstatus"
	"github.com/cau-citcwalker/citcrun/internal/pe"
	"github.com/cau-citcwalker/citcrun/internal/registry"
	"github.com/cau-citcwalker/citcrun/internal/win32"
)

// captureStdout redirects os.Stdout for the duration of fn and returns
// everything written to it.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	orig := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	fn()

	w.Close()
	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String()
}

func TestDumpImagePrintsBaseAndSections(t *testing.T) {
	img := &pe.Image{
		Base:     0x140000000,
		Size:     0x3000,
		EntryRVA: 0x1000,
		Sections: []pe.SectionHeader{{Name: [8]byte{'.', 't', 'e', 'x', 't'}, VirtualAddress: 0x1000, VirtualSize: 0x200}},
	}

	out := captureStdout(t, func() { dumpImage(img) })

	if !strings.Contains(out, "base=0x140000000") {
		t.Errorf("output missing base, got %q", out)
	}
	if !strings.Contains(out, ".text") {
		t.Errorf("output missing section name, got %q", out)
	}
}

func TestDumpHandlesListsReservedConsoleSlots(t *testing.T) {
	ht := handle.New()
	out := captureStdout(t, func() { dumpHandles(ht) })
	if strings.Count(out, "Console") != 3 || strings.Contains(out, "no open handles") {
		t.Errorf("expected the three reserved console entries, got %q", out)
	}
}

func TestDumpHandlesListsAllocatedEntries(t *testing.T) {
	ht := handle.New()
	h, err := ht.Allocate(handle.File, 7, handle.AccessRead, nil)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	out := captureStdout(t, func() { dumpHandles(ht) })
	if !strings.Contains(out, "File") {
		t.Errorf("expected File kind in dump, got %q", out)
	}
	if !strings.Contains(out, "fd=7") {
		t.Errorf("expected fd=7 in dump, got %q", out)
	}
	_ = h
}

func TestRunLuaBindsImageAndHandlesTables(t *testing.T) {
	img := &pe.Image{Base: 0x140000000, Size: 0x2000, EntryRVA: 0x1000}
	sur := &win32.Surrogate{HT: handle.New()}

	out := captureStdout(t, func() {
		runLua("print(image.base, handles.count)", img, sur)
	})
	if !strings.Contains(out, "5368709120") {
		t.Errorf("expected image.base value in lua output, got %q", out)
	}
}

func TestRunLuaReportsEmptyExpression(t *testing.T) {
	img := &pe.Image{}
	sur := &win32.Surrogate{HT: handle.New()}
	out := captureStdout(t, func() { runLua("", img, sur) })
	if !strings.Contains(out, "usage:") {
		t.Errorf("expected usage message for empty expr, got %q", out)
	}
}

func TestStepKeystrokeSkipsWhenStdinIsNotATerminal(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	defer r.Close()
	w.Close()

	origStdin := os.Stdin
	os.Stdin = r
	defer func() { os.Stdin = origStdin }()

	out := captureStdout(t, stepKeystroke)
	if !strings.Contains(out, "not a terminal") {
		t.Errorf("expected non-terminal skip message, got %q", out)
	}
}

func TestDumpRegistryTreeWalksKeysAndValues(t *testing.T) {
	t.Setenv("CITC_REGISTRY_PATH", t.TempDir())
	sur := win32.New("demo.exe", 0x140000000)

	key, _, status := sur.Reg.CreateKey(registry.RootHandle(registry.HKLM), `Software\Demo`)
	if status != ntstatus.StatusSuccess {
		t.Fatalf("CreateKey status = %v", status)
	}
	if status := sur.Reg.SetValue(key, "Version", registry.TypeSZ, []byte("1.0\x00")); status != ntstatus.StatusSuccess {
		t.Fatalf("SetValue status = %v", status)
	}

	out := captureStdout(t, func() { dumpRegistryTree(sur, "") })
	if !strings.Contains(out, "[HKLM]") {
		t.Errorf("expected HKLM key in tree, got %q", out)
	}
	if !strings.Contains(out, "[Demo]") {
		t.Errorf("expected Demo subkey in tree, got %q", out)
	}
	if !strings.Contains(out, "Version") {
		t.Errorf("expected Version value in tree, got %q", out)
	}
}

func TestDumpShadersWithoutWorldOrEntries(t *testing.T) {
	out := captureStdout(t, func() { dumpShaders(nil) })
	if !strings.Contains(out, "no graphics world") {
		t.Errorf("expected nil-world message, got %q", out)
	}

	w := gfx.New()
	out = captureStdout(t, func() { dumpShaders(w) })
	if !strings.Contains(out, "no shaders created") {
		t.Errorf("expected empty-table message, got %q", out)
	}
}
