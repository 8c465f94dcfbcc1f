package pe

import (
	"bytes"
	"strings"
	"testing"
)

func TestDumpInfoRejectsInvalidImage(t *testing.T) {
	var out bytes.Buffer
	if err := DumpInfo([]byte("not a PE file"), &out); err == nil {
		t.Fatal("expected DumpInfo to reject a non-PE buffer")
	}
}

func TestDumpInfoMinimalImage(t *testing.T) {
	data := buildMinimalImage(t, machineAMD64, optMagicPE32Plus)

	var out bytes.Buffer
	if err := DumpInfo(data, &out); err != nil {
		t.Fatalf("DumpInfo: %v", err)
	}

	text := out.String()
	for _, want := range []string{
		"Machine:",
		"ImageBase:      0x0000000140000000",
		"EntryPoint RVA: 0x00001000",
		"Sections (0):",
		"Imports: none",
		"Base relocations: none",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("DumpInfo output missing %q, got:\n%s", want, text)
		}
	}
}

func TestDumpInfoListsSections(t *testing.T) {
	data := buildRunnableImage(t, []byte{0xC3})

	var out bytes.Buffer
	if err := DumpInfo(data, &out); err != nil {
		t.Fatalf("DumpInfo: %v", err)
	}

	text := out.String()
	if !strings.Contains(text, "Sections (1):") {
		t.Errorf("expected one section listed, got:\n%s", text)
	}
	if !strings.Contains(text, ".text") {
		t.Errorf("expected .text section name in dump, got:\n%s", text)
	}
}
