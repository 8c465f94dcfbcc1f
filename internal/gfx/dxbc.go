package gfx

import (
	"encoding/binary"
	"errors"
)

// SignatureElement is one ISGN/OSGN entry: a named, indexed register this
// shader reads an input from or writes an output to.
type SignatureElement struct {
	Name          string
	SemanticIndex uint32
	SystemValue   uint32
	ComponentType uint32
	Register      uint32
	Mask          uint32
}

// SVPosition is the SV_Position system-value sentinel ISGN/OSGN entries
// use to mark the clip-space position output.
const SVPosition = 1

// ParsedShader is what dxbc_parse produces: the input/output signatures
// plus the raw SM4 token stream and its declared temp-register count.
type ParsedShader struct {
	Stage   ShaderStage
	Inputs  []SignatureElement
	Outputs []SignatureElement
	Tokens  []uint32
	NumTemp uint32
}

var errMalformedDXBC = errors.New("gfx: malformed DXBC container")

// ParseDXBC implements dxbc_parse: verify the magic, walk the chunk
// table, and decode the ISGN/OSGN/SHDR chunks this core understands.
// Chunks it does not recognize (RDEF, STAT, ...) are skipped.
func ParseDXBC(blob []byte) (*ParsedShader, error) {
	if len(blob) < 32 || string(blob[0:4]) != "DXBC" {
		return nil, errMalformedDXBC
	}
	// 4 magic + 16 checksum + 4 version/size-reserved + 4 total size = 28,
	// followed by a 4-byte chunk count.
	chunkCount := binary.LittleEndian.Uint32(blob[28:32])
	offsets := blob[32:]
	if len(offsets) < int(chunkCount)*4 {
		return nil, errMalformedDXBC
	}

	ps := &ParsedShader{}
	for i := uint32(0); i < chunkCount; i++ {
		off := binary.LittleEndian.Uint32(offsets[i*4 : i*4+4])
		if int(off)+8 > len(blob) {
			return nil, errMalformedDXBC
		}
		tag := string(blob[off : off+4])
		size := binary.LittleEndian.Uint32(blob[off+4 : off+8])
		dataStart := off + 8
		if int(dataStart)+int(size) > len(blob) {
			return nil, errMalformedDXBC
		}
		data := blob[dataStart : dataStart+size]

		switch tag {
		case "ISGN":
			elems, err := parseSignature(data)
			if err != nil {
				return nil, err
			}
			ps.Inputs = elems
		case "OSGN":
			elems, err := parseSignature(data)
			if err != nil {
				return nil, err
			}
			ps.Outputs = elems
		case "SHDR", "SHEX":
			if err := parseShaderChunk(data, ps); err != nil {
				return nil, err
			}
		}
	}
	return ps, nil
}

func parseSignature(data []byte) ([]SignatureElement, error) {
	if len(data) < 8 {
		return nil, errMalformedDXBC
	}
	count := binary.LittleEndian.Uint32(data[0:4])
	// data[4:8] is reserved.
	elems := make([]SignatureElement, 0, count)
	for i := uint32(0); i < count; i++ {
		base := 8 + i*24
		if int(base)+24 > len(data) {
			return nil, errMalformedDXBC
		}
		nameOff := binary.LittleEndian.Uint32(data[base : base+4])
		semIdx := binary.LittleEndian.Uint32(data[base+4 : base+8])
		sysVal := binary.LittleEndian.Uint32(data[base+8 : base+12])
		compType := binary.LittleEndian.Uint32(data[base+12 : base+16])
		reg := binary.LittleEndian.Uint32(data[base+16 : base+20])
		mask := binary.LittleEndian.Uint32(data[base+20 : base+24])
		name := readCStringAt(data, int(nameOff), 31)
		elems = append(elems, SignatureElement{
			Name:          name,
			SemanticIndex: semIdx,
			SystemValue:   sysVal,
			ComponentType: compType,
			Register:      reg,
			Mask:          mask,
		})
	}
	return elems, nil
}

func readCStringAt(data []byte, off, maxLen int) string {
	if off < 0 || off >= len(data) {
		return ""
	}
	end := off
	for end < len(data) && end-off < maxLen && data[end] != 0 {
		end++
	}
	return string(data[off:end])
}

// shaderTypePixel / shaderTypeVertex are the two program-type values the
// high half of a SHDR chunk's first token encodes.
const (
	shaderTypePixel  = 0
	shaderTypeVertex = 1
)

// opDclTemps is the SM4 opcode that declares the temp-register count.
const opDclTemps = 0x68

func parseShaderChunk(data []byte, ps *ParsedShader) error {
	if len(data) < 8 {
		return errMalformedDXBC
	}
	versionWord := binary.LittleEndian.Uint32(data[0:4])
	if (versionWord>>16)&0xFF == shaderTypeVertex {
		ps.Stage = StageVertex
	} else {
		ps.Stage = StagePixel
	}
	tokenCount := binary.LittleEndian.Uint32(data[4:8])
	tokens := make([]uint32, 0, tokenCount)
	for i := uint32(0); i < tokenCount; i++ {
		base := 8 + i*4
		if int(base)+4 > len(data) {
			break
		}
		tokens = append(tokens, binary.LittleEndian.Uint32(data[base:base+4]))
	}
	ps.Tokens = tokens

	// One pass to find dcl_temps and learn the temp-register count,
	// matching spec.md's "scan the stream once" instruction.
	for i := 0; i < len(tokens); {
		opTok := tokens[i]
		opcode := opTok & 0x7FF
		length := (opTok >> 24) & 0x7F
		if length == 0 {
			length = 1
		}
		if opcode == opDclTemps && i+1 < len(tokens) {
			ps.NumTemp = tokens[i+1]
		}
		i += int(length)
	}
	return nil
}
