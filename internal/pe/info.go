package pe

import (
	"encoding/binary"
	"fmt"
	"io"
)

// DumpInfo writes a structured header/section/import/relocation dump for
// data to w without mapping or executing the image, backing citcrun
// --info. Grounded on the same imageBytes RVA translation
// applyBaseRelocations uses, run against the raw file buffer instead of
// a live mapping.
func DumpInfo(data []byte, w io.Writer) error {
	hdr, err := ParseHeaders(data)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Machine:        0x%04x (AMD64)\n", hdr.Machine)
	fmt.Fprintf(w, "ImageBase:      0x%016x\n", hdr.ImageBase)
	fmt.Fprintf(w, "EntryPoint RVA: 0x%08x\n", hdr.EntryRVA)
	fmt.Fprintf(w, "SizeOfImage:    0x%08x\n", hdr.SizeOfImage)
	fmt.Fprintf(w, "SizeOfHeaders:  0x%08x\n", hdr.SizeOfHeaders)

	fmt.Fprintf(w, "\nSections (%d):\n", len(hdr.Sections))
	for _, s := range hdr.Sections {
		fmt.Fprintf(w, "  %-8s VA=0x%08x VSize=0x%08x RawOff=0x%08x RawSize=0x%08x Characteristics=0x%08x\n",
			s.NameString(), s.VirtualAddress, s.VirtualSize, s.PointerToRawData, s.SizeOfRawData, s.Characteristics)
	}

	dumpImports(data, hdr, w)
	dumpRelocations(data, hdr, w)
	return nil
}

func dumpImports(data []byte, hdr *Headers, w io.Writer) {
	if hdr.ImportDir.Size == 0 {
		fmt.Fprintln(w, "\nImports: none")
		return
	}
	fmt.Fprintln(w, "\nImports:")

	descOff := hdr.ImportDir.VirtualAddress
	for {
		desc := imageBytes(data, hdr, descOff, importDescriptorSize)
		if len(desc) < importDescriptorSize {
			break
		}
		originalFirstThunk := binary.LittleEndian.Uint32(desc[0:4])
		nameRVA := binary.LittleEndian.Uint32(desc[12:16])
		firstThunk := binary.LittleEndian.Uint32(desc[16:20])
		if originalFirstThunk == 0 && nameRVA == 0 && firstThunk == 0 {
			break
		}

		fmt.Fprintf(w, "  %s\n", readCStringFile(data, hdr, nameRVA))

		thunkRVA := originalFirstThunk
		if thunkRVA == 0 {
			thunkRVA = firstThunk
		}
		for i := uint32(0); ; i++ {
			entryBytes := imageBytes(data, hdr, thunkRVA+i*8, 8)
			if len(entryBytes) < 8 {
				break
			}
			entry := binary.LittleEndian.Uint64(entryBytes)
			if entry == 0 {
				break
			}
			if entry&0x8000000000000000 != 0 {
				fmt.Fprintf(w, "    %s\n", ordinalName(uint16(entry&0xFFFF)))
			} else {
				nameTableRVA := uint32(entry & 0x7FFFFFFF)
				fmt.Fprintf(w, "    %s\n", readCStringFile(data, hdr, nameTableRVA+2))
			}
		}
		descOff += importDescriptorSize
	}
}

func dumpRelocations(data []byte, hdr *Headers, w io.Writer) {
	if hdr.BaseRelocDir.Size == 0 {
		fmt.Fprintln(w, "\nBase relocations: none")
		return
	}

	off := hdr.BaseRelocDir.VirtualAddress
	end := off + hdr.BaseRelocDir.Size
	blocks, fixups := 0, 0
	for off < end {
		blockHdr := imageBytes(data, hdr, off, 8)
		if len(blockHdr) < 8 {
			break
		}
		blockSize := binary.LittleEndian.Uint32(blockHdr[4:8])
		if blockSize < 8 {
			break
		}
		blocks++
		fixups += int((blockSize - 8) / 2)
		off += blockSize
	}
	fmt.Fprintf(w, "\nBase relocations: %d block(s), %d fixup(s)\n", blocks, fixups)
}

func readCStringFile(data []byte, hdr *Headers, rva uint32) string {
	b := imageBytes(data, hdr, rva, maxImportNameLen)
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
