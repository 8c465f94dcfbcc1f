package pe

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// buildMinimalImage constructs a syntactically valid AMD64 PE32+ header
// chain with zero sections and no import/relocation directories, enough
// to exercise ParseHeaders without needing a real linked executable.
func buildMinimalImage(t *testing.T, machine uint16, magic uint16) []byte {
	t.Helper()
	var buf bytes.Buffer

	dos := make([]byte, 64)
	binary.LittleEndian.PutUint16(dos[0:2], dosMagic)
	binary.LittleEndian.PutUint32(dos[0x3C:0x40], 64)
	buf.Write(dos)

	binary.Write(&buf, binary.LittleEndian, uint32(peMagic))

	coff := coffHeader{
		Machine:              machine,
		NumberOfSections:     0,
		SizeOfOptionalHeader: 112, // fixed fields only, 0 data directories
	}
	binary.Write(&buf, binary.LittleEndian, coff)

	opt := optionalHeader64{
		Magic:               magic,
		AddressOfEntryPoint: 0x1000,
		ImageBase:           0x140000000,
		SectionAlignment:    0x1000,
		FileAlignment:       0x200,
		SizeOfImage:         0x2000,
		SizeOfHeaders:       0x200,
		NumberOfRvaAndSizes: 0,
	}
	binary.Write(&buf, binary.LittleEndian, opt)

	return buf.Bytes()
}

func TestParseHeadersRejectsBadDOSMagic(t *testing.T) {
	data := buildMinimalImage(t, machineAMD64, optMagicPE32Plus)
	data[0] = 'X'
	if _, err := ParseHeaders(data); err == nil {
		t.Fatal("expected rejection of bad DOS signature")
	}
}

func TestParseHeadersRejectsNon64BitMachine(t *testing.T) {
	data := buildMinimalImage(t, 0x014c /* IMAGE_FILE_MACHINE_I386 */, optMagicPE32Plus)
	if _, err := ParseHeaders(data); err == nil {
		t.Fatal("expected rejection of non-AMD64 machine type")
	}
}

func TestParseHeadersRejectsNonPE32Plus(t *testing.T) {
	data := buildMinimalImage(t, machineAMD64, 0x10b /* PE32, not PE32+ */)
	if _, err := ParseHeaders(data); err == nil {
		t.Fatal("expected rejection of 32-bit PE32 optional header")
	}
}

func TestParseHeadersAcceptsValidMinimalImage(t *testing.T) {
	data := buildMinimalImage(t, machineAMD64, optMagicPE32Plus)
	hdr, err := ParseHeaders(data)
	if err != nil {
		t.Fatalf("ParseHeaders: %v", err)
	}
	if hdr.EntryRVA != 0x1000 {
		t.Errorf("EntryRVA = 0x%x, want 0x1000", hdr.EntryRVA)
	}
	if hdr.ImageBase != 0x140000000 {
		t.Errorf("ImageBase = 0x%x, want 0x140000000", hdr.ImageBase)
	}
	if hdr.SizeOfImage != 0x2000 {
		t.Errorf("SizeOfImage = 0x%x, want 0x2000", hdr.SizeOfImage)
	}
	if len(hdr.Sections) != 0 {
		t.Errorf("Sections = %d, want 0", len(hdr.Sections))
	}
}

func TestSectionNameStringTrimsNULs(t *testing.T) {
	sh := SectionHeader{Name: [8]byte{'.', 't', 'e', 'x', 't', 0, 0, 0}}
	if sh.NameString() != ".text" {
		t.Fatalf("NameString = %q, want %q", sh.NameString(), ".text")
	}
}
