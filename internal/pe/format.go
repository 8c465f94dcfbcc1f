// Package pe parses and loads AMD64 PE32+ images: header validation,
// page-aligned section mapping, base relocation, import resolution
// against a concatenated abi.Registry of host stub tables, final
// per-section protection, and entry transfer through the foreign
// calling convention.
//
// Grounded on program_executor.go's prepareAndLaunch (parse → lay out
// memory → transfer control to a freshly constructed CPU → run in a
// goroutine), generalized from copying a flat binary into a fixed
// memory-bus window to mapping a real PE32+ image with its own section
// table, relocations, and import directory.
package pe

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	dosMagic   = 0x5A4D // "MZ"
	peMagic    = 0x00004550
	machineAMD64 = 0x8664
	optMagicPE32Plus = 0x20b
)

// Section characteristics bits this loader inspects.
const (
	sectionMemExecute = 0x20000000
	sectionMemRead    = 0x40000000
	sectionMemWrite   = 0x80000000
)

// Data directory indices this loader reads.
const (
	dirImport   = 1
	dirBaseReloc = 5
)

// Base relocation entry types.
const (
	relocAbsolute = 0
	relocHighLow  = 3
	relocDir64    = 10
)

type dataDirectory struct {
	VirtualAddress uint32
	Size           uint32
}

type coffHeader struct {
	Machine              uint16
	NumberOfSections     uint16
	TimeDateStamp        uint32
	PointerToSymbolTable uint32
	NumberOfSymbols      uint32
	SizeOfOptionalHeader uint16
	Characteristics      uint16
}

type optionalHeader64 struct {
	Magic                   uint16
	MajorLinkerVersion      uint8
	MinorLinkerVersion      uint8
	SizeOfCode              uint32
	SizeOfInitializedData   uint32
	SizeOfUninitializedData uint32
	AddressOfEntryPoint     uint32
	BaseOfCode              uint32
	ImageBase               uint64
	SectionAlignment        uint32
	FileAlignment           uint32
	MajorOSVersion          uint16
	MinorOSVersion          uint16
	MajorImageVersion       uint16
	MinorImageVersion       uint16
	MajorSubsystemVersion   uint16
	MinorSubsystemVersion   uint16
	Win32VersionValue       uint32
	SizeOfImage             uint32
	SizeOfHeaders           uint32
	CheckSum                uint32
	Subsystem               uint16
	DllCharacteristics      uint16
	SizeOfStackReserve      uint64
	SizeOfStackCommit       uint64
	SizeOfHeapReserve       uint64
	SizeOfHeapCommit        uint64
	LoaderFlags             uint32
	NumberOfRvaAndSizes     uint32
}

// SectionHeader is one IMAGE_SECTION_HEADER entry.
type SectionHeader struct {
	Name            [8]byte
	VirtualSize     uint32
	VirtualAddress  uint32
	SizeOfRawData   uint32
	PointerToRawData uint32
	_ [12]byte // PointerToRelocations, PointerToLinenumbers, NumberOfRelocations/Linenumbers
	Characteristics uint32
}

// NameString returns the section name, trimmed of trailing NULs.
func (h SectionHeader) NameString() string {
	n := bytes.IndexByte(h.Name[:], 0)
	if n < 0 {
		n = len(h.Name)
	}
	return string(h.Name[:n])
}

// Headers holds the fully parsed PE header chain needed to map, relocate,
// and resolve imports for an image, prior to any memory being touched.
type Headers struct {
	Machine       uint16
	ImageBase     uint64
	EntryRVA      uint32
	SizeOfImage   uint32
	SizeOfHeaders uint32
	Sections      []SectionHeader
	ImportDir     dataDirectory
	BaseRelocDir  dataDirectory
}

// ParseHeaders validates the DOS/PE/COFF/optional header chain and
// returns the fields the rest of the loader needs. Any AMD64/PE32+
// mismatch is a hard rejection, per spec.md §6.
func ParseHeaders(data []byte) (*Headers, error) {
	if len(data) < 64 {
		return nil, fmt.Errorf("pe: file too small for DOS header")
	}
	if binary.LittleEndian.Uint16(data[0:2]) != dosMagic {
		return nil, fmt.Errorf("pe: missing MZ signature")
	}
	lfanew := binary.LittleEndian.Uint32(data[0x3C:0x40])
	if uint64(lfanew)+4 > uint64(len(data)) {
		return nil, fmt.Errorf("pe: e_lfanew out of range")
	}

	if binary.LittleEndian.Uint32(data[lfanew:lfanew+4]) != peMagic {
		return nil, fmt.Errorf("pe: missing PE signature")
	}
	r := bytes.NewReader(data[lfanew+4:])

	var coff coffHeader
	if err := binary.Read(r, binary.LittleEndian, &coff); err != nil {
		return nil, fmt.Errorf("pe: short COFF header: %w", err)
	}
	if coff.Machine != machineAMD64 {
		return nil, fmt.Errorf("pe: unsupported machine type 0x%x, only AMD64 is accepted", coff.Machine)
	}

	optStart := len(data) - r.Len()
	optEnd := optStart + int(coff.SizeOfOptionalHeader)
	if optEnd > len(data) {
		return nil, fmt.Errorf("pe: optional header out of range")
	}
	optR := bytes.NewReader(data[optStart:optEnd])

	var opt optionalHeader64
	if err := binary.Read(optR, binary.LittleEndian, &opt); err != nil {
		return nil, fmt.Errorf("pe: short optional header: %w", err)
	}
	if opt.Magic != optMagicPE32Plus {
		return nil, fmt.Errorf("pe: not a PE32+ image (32-bit PE is rejected)")
	}

	var dirs [16]dataDirectory
	for i := 0; i < int(opt.NumberOfRvaAndSizes) && i < 16; i++ {
		if err := binary.Read(optR, binary.LittleEndian, &dirs[i]); err != nil {
			break
		}
	}

	sectionsStart := optEnd
	sections := make([]SectionHeader, 0, coff.NumberOfSections)
	off := sectionsStart
	for i := uint16(0); i < coff.NumberOfSections; i++ {
		if off+40 > len(data) {
			return nil, fmt.Errorf("pe: section header table truncated")
		}
		var sh SectionHeader
		sr := bytes.NewReader(data[off : off+40])
		if err := binary.Read(sr, binary.LittleEndian, &sh); err != nil {
			return nil, fmt.Errorf("pe: malformed section header: %w", err)
		}
		sections = append(sections, sh)
		off += 40
	}

	return &Headers{
		Machine:       coff.Machine,
		ImageBase:     opt.ImageBase,
		EntryRVA:      opt.AddressOfEntryPoint,
		SizeOfImage:   opt.SizeOfImage,
		SizeOfHeaders: opt.SizeOfHeaders,
		Sections:      sections,
		ImportDir:     dirs[dirImport],
		BaseRelocDir:  dirs[dirBaseReloc],
	}, nil
}
