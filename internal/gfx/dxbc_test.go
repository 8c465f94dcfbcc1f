package gfx

import (
	"encoding/binary"
	"testing"
)

// buildSignatureChunk assembles an ISGN/OSGN payload: element count,
// reserved word, 24-byte element records, then the name strings the
// records point back into.
func buildSignatureChunk(t *testing.T, elems []SignatureElement) []byte {
	t.Helper()
	nameArea := make([]byte, 0)
	nameOffsets := make([]uint32, len(elems))
	headerSize := 8 + len(elems)*24
	for i, e := range elems {
		nameOffsets[i] = uint32(headerSize + len(nameArea))
		nameArea = append(nameArea, []byte(e.Name)...)
		nameArea = append(nameArea, 0)
	}

	out := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(elems)))
	for i, e := range elems {
		base := 8 + i*24
		binary.LittleEndian.PutUint32(out[base:], nameOffsets[i])
		binary.LittleEndian.PutUint32(out[base+4:], e.SemanticIndex)
		binary.LittleEndian.PutUint32(out[base+8:], e.SystemValue)
		binary.LittleEndian.PutUint32(out[base+12:], e.ComponentType)
		binary.LittleEndian.PutUint32(out[base+16:], e.Register)
		binary.LittleEndian.PutUint32(out[base+20:], e.Mask)
	}
	return append(out, nameArea...)
}

// buildShaderChunk assembles an SHDR payload: program-version word
// (shader type in the high half), token count, then the token stream.
func buildShaderChunk(shaderType uint32, tokens []uint32) []byte {
	out := make([]byte, 8+len(tokens)*4)
	binary.LittleEndian.PutUint32(out[0:4], shaderType<<16|0x0400)
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(tokens)))
	for i, tok := range tokens {
		binary.LittleEndian.PutUint32(out[8+i*4:], tok)
	}
	return out
}

type dxbcChunk struct {
	tag  string
	data []byte
}

// buildContainer assembles a complete DXBC blob from chunks: magic,
// zeroed checksum, version/size words, chunk count, offset table, then
// each chunk as {tag, size, data}.
func buildContainer(chunks []dxbcChunk) []byte {
	headerSize := 32 + len(chunks)*4
	out := make([]byte, headerSize)
	copy(out, "DXBC")
	binary.LittleEndian.PutUint32(out[28:32], uint32(len(chunks)))

	for i, c := range chunks {
		binary.LittleEndian.PutUint32(out[32+i*4:], uint32(len(out)))
		chunkHdr := make([]byte, 8)
		copy(chunkHdr, c.tag)
		binary.LittleEndian.PutUint32(chunkHdr[4:8], uint32(len(c.data)))
		out = append(out, chunkHdr...)
		out = append(out, c.data...)
	}
	binary.LittleEndian.PutUint32(out[24:28], uint32(len(out)))
	return out
}

// buildTestVS assembles a complete vertex-shader DXBC container whose
// program is `mov o0, v0; mov o1, v1; ret` with two inputs and two
// outputs (o0 marked SV_Position), the spec's canonical pass-through.
func buildTestVS(t *testing.T) []byte {
	t.Helper()
	tokens := program(
		[]uint32{opToken(opDclTemps, 2), 2},
		instr(opMOV, dstOperand(operandOutput, 0), srcOperand(operandInput, 0)),
		instr(opMOV, dstOperand(operandOutput, 1), srcOperand(operandInput, 1)),
		instr(opRET),
	)
	return buildContainer([]dxbcChunk{
		{"ISGN", buildSignatureChunk(t, []SignatureElement{
			{Name: "POSITION", Register: 0, Mask: 0xF},
			{Name: "COLOR", Register: 1, Mask: 0xF},
		})},
		{"OSGN", buildSignatureChunk(t, []SignatureElement{
			{Name: "SV_Position", SystemValue: SVPosition, Register: 0, Mask: 0xF},
			{Name: "COLOR", Register: 1, Mask: 0xF},
		})},
		{"SHDR", buildShaderChunk(shaderTypeVertex, tokens)},
	})
}

func TestParseDXBCRejectsBadMagic(t *testing.T) {
	blob := buildTestVS(t)
	blob[0] = 'X'
	if _, err := ParseDXBC(blob); err == nil {
		t.Fatal("expected error for wrong container magic")
	}
	if _, err := ParseDXBC([]byte("DX")); err == nil {
		t.Fatal("expected error for truncated container")
	}
}

func TestParseDXBCReadsSignaturesAndProgram(t *testing.T) {
	ps, err := ParseDXBC(buildTestVS(t))
	if err != nil {
		t.Fatalf("ParseDXBC: %v", err)
	}

	if ps.Stage != StageVertex {
		t.Errorf("Stage = %v, want StageVertex", ps.Stage)
	}
	if len(ps.Inputs) != 2 || ps.Inputs[0].Name != "POSITION" || ps.Inputs[1].Name != "COLOR" {
		t.Errorf("Inputs = %+v, want POSITION and COLOR", ps.Inputs)
	}
	if len(ps.Outputs) != 2 || ps.Outputs[0].SystemValue != SVPosition {
		t.Errorf("Outputs = %+v, want SV_Position first", ps.Outputs)
	}
	if ps.NumTemp != 2 {
		t.Errorf("NumTemp = %d, want 2 from dcl_temps", ps.NumTemp)
	}
	if len(ps.Tokens) == 0 {
		t.Fatal("no tokens parsed from SHDR chunk")
	}
}

// The spec's SM4 VS pass-through scenario: parse the container, run the
// VM, and check the register file came through untouched.
func TestParsedShaderExecutesPassThrough(t *testing.T) {
	ps, err := ParseDXBC(buildTestVS(t))
	if err != nil {
		t.Fatalf("ParseDXBC: %v", err)
	}

	vm := &VM{}
	vm.In[0] = vec4{1, 2, 3, 4}
	vm.In[1] = vec4{5, 6, 7, 8}
	vm.Execute(ps.Tokens)

	if vm.Out[0] != (vec4{1, 2, 3, 4}) || vm.Out[1] != (vec4{5, 6, 7, 8}) {
		t.Errorf("outputs = %v / %v, want inputs passed through", vm.Out[0], vm.Out[1])
	}
}

func TestParseDXBCDetectsPixelStage(t *testing.T) {
	blob := buildContainer([]dxbcChunk{
		{"SHDR", buildShaderChunk(shaderTypePixel, program(instr(opRET)))},
	})
	ps, err := ParseDXBC(blob)
	if err != nil {
		t.Fatalf("ParseDXBC: %v", err)
	}
	if ps.Stage != StagePixel {
		t.Errorf("Stage = %v, want StagePixel", ps.Stage)
	}
}
