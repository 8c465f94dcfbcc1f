package pe

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/cau-citcwalker/citcrun/internal/abi"
)

// buildRunnableImage extends buildMinimalImage with a single executable
// .text section containing code, mapped at the given entry RVA.
func buildRunnableImage(t *testing.T, code []byte) []byte {
	t.Helper()

	const sectionRVA = 0x1000
	const fileAlign = 0x200

	var buf bytes.Buffer

	dos := make([]byte, 64)
	binary.LittleEndian.PutUint16(dos[0:2], dosMagic)
	binary.LittleEndian.PutUint32(dos[0x3C:0x40], 64)
	buf.Write(dos)

	binary.Write(&buf, binary.LittleEndian, uint32(peMagic))

	coff := coffHeader{
		Machine:              machineAMD64,
		NumberOfSections:     1,
		SizeOfOptionalHeader: 112,
	}
	binary.Write(&buf, binary.LittleEndian, coff)

	opt := optionalHeader64{
		Magic:               optMagicPE32Plus,
		AddressOfEntryPoint: sectionRVA,
		ImageBase:           0x140000000,
		SectionAlignment:    0x1000,
		FileAlignment:       fileAlign,
		SizeOfImage:         0x3000,
		SizeOfHeaders:       fileAlign,
		NumberOfRvaAndSizes: 0,
	}
	binary.Write(&buf, binary.LittleEndian, opt)

	sec := SectionHeader{
		Name:             [8]byte{'.', 't', 'e', 'x', 't'},
		VirtualSize:      uint32(len(code)),
		VirtualAddress:   sectionRVA,
		SizeOfRawData:    uint32(len(code)),
		PointerToRawData: fileAlign,
		Characteristics:  sectionMemRead | sectionMemExecute,
	}
	binary.Write(&buf, binary.LittleEndian, sec)

	// Pad out to size_of_headers, then lay the section's raw data at
	// PointerToRawData.
	for buf.Len() < fileAlign {
		buf.WriteByte(0)
	}
	buf.Write(code)

	return buf.Bytes()
}

func TestLoadAndExecuteTrivialReturn(t *testing.T) {
	// A bare `ret` (0xC3): the entry point returns immediately. The
	// foreign-convention trampoline reads whatever was left in rax, which
	// this test does not assert on — it only checks that Load/Execute
	// complete without error, proving map/relocate/protect/transfer works
	// end to end for the simplest possible guest image.
	data := buildRunnableImage(t, []byte{0xC3})

	img, err := Load(data, abi.NewRegistry())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if img.Base == 0 {
		t.Fatal("Load did not return a mapped base address")
	}

	_ = img.Execute()
}

func TestLoadRejectsTruncatedSectionData(t *testing.T) {
	data := buildRunnableImage(t, []byte{0xC3})
	truncated := data[:len(data)-400]
	if _, err := Load(truncated, abi.NewRegistry()); err == nil {
		t.Fatal("expected Load to reject an image with truncated section data")
	}
}
