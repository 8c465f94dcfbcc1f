package gfx

import (
	"math"
	"testing"
)

// Token-stream builders for synthetic SM4 programs, encoding exactly the
// bit layout decodeOperand reads back: mask/swizzle in bits 4..11, file
// in 12..19, index dimensionality in 20..21.

func opToken(opcode, length int) uint32 {
	return uint32(opcode) | uint32(length)<<24
}

func dstOperand(file int, index uint32) []uint32 {
	tok := uint32(file)<<12 | 0xF<<4 | 2 // mask mode, all four lanes
	tok |= 1 << 20                       // one index dimension
	return []uint32{tok, index}
}

func srcOperand(file int, index uint32) []uint32 {
	tok := uint32(file)<<12 | 0xE4<<4 | 1<<2 | 2 // swizzle mode, identity xyzw
	tok |= 1 << 20
	return []uint32{tok, index}
}

func immOperand(x, y, z, w float32) []uint32 {
	tok := uint32(operandImmediate32)<<12 | 0xE4<<4 | 1<<2 | 2
	return []uint32{tok,
		math.Float32bits(x), math.Float32bits(y), math.Float32bits(z), math.Float32bits(w)}
}

func instr(opcode int, operands ...[]uint32) []uint32 {
	length := 1
	for _, o := range operands {
		length += len(o)
	}
	out := []uint32{opToken(opcode, length)}
	for _, o := range operands {
		out = append(out, o...)
	}
	return out
}

func program(instrs ...[]uint32) []uint32 {
	var out []uint32
	for _, in := range instrs {
		out = append(out, in...)
	}
	return out
}

func TestVMMovPassThrough(t *testing.T) {
	tokens := program(
		instr(opMOV, dstOperand(operandOutput, 0), srcOperand(operandInput, 0)),
		instr(opMOV, dstOperand(operandOutput, 1), srcOperand(operandInput, 1)),
		instr(opRET),
	)

	vm := &VM{}
	vm.In[0] = vec4{1, 2, 3, 4}
	vm.In[1] = vec4{5, 6, 7, 8}
	vm.Execute(tokens)

	if vm.Out[0] != (vec4{1, 2, 3, 4}) {
		t.Errorf("o0 = %v, want (1,2,3,4)", vm.Out[0])
	}
	if vm.Out[1] != (vec4{5, 6, 7, 8}) {
		t.Errorf("o1 = %v, want (5,6,7,8)", vm.Out[1])
	}
}

func TestVMAddImmediateAndMul(t *testing.T) {
	tokens := program(
		instr(opADD, dstOperand(operandTemp, 0), srcOperand(operandInput, 0), immOperand(1, 1, 1, 1)),
		instr(opMUL, dstOperand(operandOutput, 0), srcOperand(operandTemp, 0), immOperand(2, 2, 2, 2)),
		instr(opRET),
	)

	vm := &VM{}
	vm.In[0] = vec4{1, 2, 3, 4}
	vm.Execute(tokens)

	if vm.Out[0] != (vec4{4, 6, 8, 10}) {
		t.Errorf("o0 = %v, want (4,6,8,10)", vm.Out[0])
	}
}

func TestVMDotBroadcastsToAllLanes(t *testing.T) {
	tokens := program(
		instr(opDP3, dstOperand(operandOutput, 0), srcOperand(operandInput, 0), srcOperand(operandInput, 1)),
		instr(opDP4, dstOperand(operandOutput, 1), srcOperand(operandInput, 0), srcOperand(operandInput, 1)),
		instr(opRET),
	)

	vm := &VM{}
	vm.In[0] = vec4{1, 2, 3, 4}
	vm.In[1] = vec4{5, 6, 7, 8}
	vm.Execute(tokens)

	if vm.Out[0] != (vec4{38, 38, 38, 38}) {
		t.Errorf("dp3 = %v, want 38 in every lane", vm.Out[0])
	}
	if vm.Out[1] != (vec4{70, 70, 70, 70}) {
		t.Errorf("dp4 = %v, want 70 in every lane", vm.Out[1])
	}
}

func TestVMCompareProducesBitMaskAndMovcSelects(t *testing.T) {
	// r0 = (v0 < v1); o0 = r0 ? v0 : v1 — lanes where v0 is smaller pass
	// v0 through, the rest pass v1.
	tokens := program(
		instr(opLT, dstOperand(operandTemp, 0), srcOperand(operandInput, 0), srcOperand(operandInput, 1)),
		instr(opMOVC, dstOperand(operandOutput, 0), srcOperand(operandTemp, 0), srcOperand(operandInput, 0), srcOperand(operandInput, 1)),
		instr(opRET),
	)

	vm := &VM{}
	vm.In[0] = vec4{1, 9, 3, 9}
	vm.In[1] = vec4{5, 6, 7, 8}
	vm.Execute(tokens)

	if vm.Out[0] != (vec4{1, 6, 3, 8}) {
		t.Errorf("movc result = %v, want (1,6,3,8)", vm.Out[0])
	}
}

func TestVMRsqZeroesNonPositiveLanes(t *testing.T) {
	tokens := program(
		instr(opRSQ, dstOperand(operandOutput, 0), srcOperand(operandInput, 0)),
		instr(opRET),
	)

	vm := &VM{}
	vm.In[0] = vec4{4, 0, -1, 0.25}
	vm.Execute(tokens)

	want := vec4{0.5, 0, 0, 2}
	if vm.Out[0] != want {
		t.Errorf("rsq = %v, want %v", vm.Out[0], want)
	}
}

func TestVMIfElseTakesCorrectBranch(t *testing.T) {
	// if v0 { o0 = (1,1,1,1) } else { o0 = (2,2,2,2) } endif; ret
	build := func() []uint32 {
		return program(
			instr(opIF, srcOperand(operandInput, 0)),
			instr(opMOV, dstOperand(operandOutput, 0), immOperand(1, 1, 1, 1)),
			instr(opELSE),
			instr(opMOV, dstOperand(operandOutput, 0), immOperand(2, 2, 2, 2)),
			instr(opENDIF),
			instr(opRET),
		)
	}

	vm := &VM{}
	vm.In[0] = vec4{1, 0, 0, 0}
	vm.Execute(build())
	if vm.Out[0] != (vec4{1, 1, 1, 1}) {
		t.Errorf("taken branch: o0 = %v, want (1,1,1,1)", vm.Out[0])
	}

	vm2 := &VM{}
	vm2.In[0] = vec4{}
	vm2.Execute(build())
	if vm2.Out[0] != (vec4{2, 2, 2, 2}) {
		t.Errorf("else branch: o0 = %v, want (2,2,2,2)", vm2.Out[0])
	}
}

func TestVMLoopBreaksOnConditionAndCapsRunaways(t *testing.T) {
	// r0 starts at 0; loop { r0 += 1; breakc (r0 >= 3) } endloop.
	tokens := program(
		instr(opMOV, dstOperand(operandTemp, 0), immOperand(0, 0, 0, 0)),
		instr(opLOOP),
		instr(opADD, dstOperand(operandTemp, 0), srcOperand(operandTemp, 0), immOperand(1, 1, 1, 1)),
		instr(opGE, dstOperand(operandTemp, 1), srcOperand(operandTemp, 0), immOperand(3, 3, 3, 3)),
		instr(opBREAKC, srcOperand(operandTemp, 1)),
		instr(opENDLOOP),
		instr(opMOV, dstOperand(operandOutput, 0), srcOperand(operandTemp, 0)),
		instr(opRET),
	)

	vm := &VM{}
	vm.Execute(tokens)
	if vm.Out[0] != (vec4{3, 3, 3, 3}) {
		t.Errorf("loop result = %v, want (3,3,3,3)", vm.Out[0])
	}

	// An unconditional infinite loop must terminate via the iteration cap
	// rather than hang.
	runaway := program(
		instr(opLOOP),
		instr(opADD, dstOperand(operandTemp, 0), srcOperand(operandTemp, 0), immOperand(1, 1, 1, 1)),
		instr(opENDLOOP),
		instr(opRET),
	)
	done := &VM{}
	done.Execute(runaway) // must return
	if done.Temp[0][0] == 0 {
		t.Error("runaway loop never executed its body")
	}
}

func TestVMSkipsDeclarationsAndUnknownOpcodes(t *testing.T) {
	tokens := program(
		[]uint32{opToken(opDclTemps, 2), 4}, // dcl_temps 4
		[]uint32{opToken(40, 1)},            // opcode 40 is not implemented: skipped
		instr(opMOV, dstOperand(operandOutput, 0), srcOperand(operandInput, 0)),
		instr(opRET),
	)

	vm := &VM{}
	vm.In[0] = vec4{7, 7, 7, 7}
	vm.Execute(tokens)
	if vm.Out[0] != (vec4{7, 7, 7, 7}) {
		t.Errorf("o0 = %v, want (7,7,7,7)", vm.Out[0])
	}
}

func TestVMReadsConstantBufferRegisters(t *testing.T) {
	// o0 = v0 + cb0[1]
	cbSrc := func(slot, reg uint32) []uint32 {
		tok := uint32(operandConstantBuffer)<<12 | 0xE4<<4 | 1<<2 | 2
		tok |= 2 << 20 // two index dimensions: slot, then register
		return []uint32{tok, slot, reg}
	}
	tokens := program(
		instr(opADD, dstOperand(operandOutput, 0), srcOperand(operandInput, 0), cbSrc(0, 1)),
		instr(opRET),
	)

	vm := &VM{}
	vm.In[0] = vec4{1, 1, 1, 1}
	vm.CB[0] = ConstantBuffer{Data: []vec4{{0, 0, 0, 0}, {10, 20, 30, 40}}}
	vm.Execute(tokens)

	if vm.Out[0] != (vec4{11, 21, 31, 41}) {
		t.Errorf("o0 = %v, want (11,21,31,41)", vm.Out[0])
	}
}
