package gfx

import (
	"encoding/binary"
	"math"
)

// SPIR-V module/header magic and version, per the Khronos spec: these are
// the two words every emitted module and every cache entry must start
// with (spec.md's round-trip law).
const (
	spirvMagic   = 0x07230203
	spirvVersion = 0x00010000
)

// A tiny id allocator plus the two-stream builder spec.md's "DXBC->SPIR-V
// translation" section describes: declarations must precede types/body
// in the final module, but OpEntryPoint needs IDs only produced while
// emitting types and variables, so the two are built as separate word
// streams and concatenated once translation finishes.
type spirvBuilder struct {
	nextID uint32 // id 0 is reserved; SPIR-V ids start at 1
	decls  []uint32
	body   []uint32

	voidTy, boolTy, f32Ty, vec3Ty, vec4Ty, bvec4Ty uint32
	fnVoidTy, fnTy                                 uint32
	ptrIn3, ptrIn4, ptrOut3, ptrOut4, ptrFn4        uint32
	constZero, constOne                            uint32
	glsl450                                         uint32
	mainFn, mainLabel                               uint32
}

func (b *spirvBuilder) id() uint32 {
	b.nextID++
	return b.nextID
}

func opWord(wordCount int, opcode uint16) uint32 {
	return uint32(wordCount)<<16 | uint32(opcode)
}

// emit appends one instruction (opcode + operands) to stream.
func emit(stream *[]uint32, opcode uint16, operands ...uint32) {
	*stream = append(*stream, opWord(len(operands)+1, opcode))
	*stream = append(*stream, operands...)
}

// spirvString encodes s as a SPIR-V literal string: UTF-8 bytes, NUL
// terminated, padded to a whole number of words.
func spirvString(s string) []uint32 {
	b := append([]byte(s), 0)
	for len(b)%4 != 0 {
		b = append(b, 0)
	}
	out := make([]uint32, len(b)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(b[i*4 : i*4+4])
	}
	return out
}

func emitStr(stream *[]uint32, opcode uint16, prefix []uint32, s string) {
	words := spirvString(s)
	*stream = append(*stream, opWord(len(prefix)+len(words)+1, opcode))
	*stream = append(*stream, prefix...)
	*stream = append(*stream, words...)
}

// Known SPIR-V opcodes this translator emits.
const (
	opCapability     = 17
	opExtInstImport  = 11
	opMemoryModel    = 14
	opEntryPoint     = 15
	opExecutionMode  = 16
	opName           = 5
	opDecorate       = 71
	opTypeVoid       = 19
	opTypeBool       = 20
	opTypeFloat      = 22
	opTypeVector     = 23
	opTypePointer    = 32
	opTypeFunction   = 33
	opConstant       = 43
	opConstantTrue   = 41
	opFunction       = 54
	opFunctionEnd    = 56
	opLabel          = 248
	opVariable       = 59
	opLoad           = 61
	opStore          = 62
	opCompositeConstruct = 80
	opVectorShuffle  = 79
	opFAdd           = 129
	opFMul           = 133
	opFMa            = 0 // not used directly: DXBC mad lowers to FMul+FAdd
	opDot            = 148
	opCompositeExtract = 81
	opExtInst        = 12
	opFOrdLessThan   = 184
	opFOrdGreaterThanEqual = 190
	opFOrdEqual      = 180
	opFUnordNotEqual = 182
	opSelect         = 169
	opReturn         = 253
)

// SCapability/SAddressing/SMemoryModel/SExecutionModel/SStorageClass are
// the fixed enumerant values this translator's output always uses:
// Shader capability, logical addressing, GLSL450 memory model, and
// Vertex/Fragment execution models.
const (
	capabilityShader    = 1
	addressingLogical   = 0
	memoryModelGLSL450  = 1
	execModelVertex     = 0
	execModelFragment   = 4
	execModeOriginUpperLeft = 7
	decorationLocation  = 30
	decorationBuiltIn   = 11
	builtInPosition     = 0
	storageClassInput   = 1
	storageClassOutput  = 3
	storageClassFunction = 7
)

// Translate implements the DXBC->SPIR-V step of the graphics core:
// given a parsed shader, emit a minimal SPIR-V module whose single
// entry point loads every input variable, runs the SM4 program mapped
// onto per-variable temporaries, and stores every output variable.
//
// This is a teaching-grade translator: it covers the straight-line part
// of the opcode set sm4.go interprets (no if/else/loop/break) and the
// type set spec.md names (void, bool, float, vec3, vec4, bvec4). Any
// other opcode is skipped without emitting anything, so Translate itself
// never returns an error; the caller (the shader cache) treats an error
// on its path as a miss, and the shader then runs only on the CPU via
// ParseDXBC+VM.Execute.
func Translate(ps *ParsedShader) ([]byte, error) {
	b := &spirvBuilder{nextID: 1}

	glslExtID := b.id()
	b.glsl450 = glslExtID
	emit(&b.decls, opCapability, capabilityShader)
	emitStr(&b.decls, opExtInstImport, []uint32{glslExtID}, "GLSL.std.450")
	emit(&b.decls, opMemoryModel, addressingLogical, memoryModelGLSL450)

	b.voidTy = b.id()
	emit(&b.body, opTypeVoid, b.voidTy)
	b.boolTy = b.id()
	emit(&b.body, opTypeBool, b.boolTy)
	b.f32Ty = b.id()
	emit(&b.body, opTypeFloat, b.f32Ty, 32)
	b.vec3Ty = b.id()
	emit(&b.body, opTypeVector, b.vec3Ty, b.f32Ty, 3)
	b.vec4Ty = b.id()
	emit(&b.body, opTypeVector, b.vec4Ty, b.f32Ty, 4)
	b.bvec4Ty = b.id()
	emit(&b.body, opTypeVector, b.bvec4Ty, b.boolTy, 4)

	b.fnVoidTy = b.id()
	emit(&b.body, opTypeFunction, b.fnVoidTy, b.voidTy)

	b.ptrIn4 = b.id()
	emit(&b.body, opTypePointer, b.ptrIn4, storageClassInput, b.vec4Ty)
	b.ptrIn3 = b.id()
	emit(&b.body, opTypePointer, b.ptrIn3, storageClassInput, b.vec3Ty)
	b.ptrOut4 = b.id()
	emit(&b.body, opTypePointer, b.ptrOut4, storageClassOutput, b.vec4Ty)
	b.ptrOut3 = b.id()
	emit(&b.body, opTypePointer, b.ptrOut3, storageClassOutput, b.vec3Ty)
	b.ptrFn4 = b.id()
	emit(&b.body, opTypePointer, b.ptrFn4, storageClassFunction, b.vec4Ty)

	zeroF := b.id()
	emit(&b.body, opConstant, b.f32Ty, zeroF, floatBits(0))
	oneF := b.id()
	emit(&b.body, opConstant, b.f32Ty, oneF, floatBits(1))
	b.constZero = zeroF
	b.constOne = oneF

	stage := execModelFragment
	if ps.Stage == StageVertex {
		stage = execModelVertex
	}

	inputVars := make([]uint32, len(ps.Inputs))
	for i, sig := range ps.Inputs {
		v := b.id()
		emit(&b.body, opVariable, b.ptrIn4, v, storageClassInput)
		emit(&b.decls, opDecorate, v, decorationLocation, uint32(i))
		inputVars[i] = v
		_ = sig
	}
	outputVars := make([]uint32, len(ps.Outputs))
	for i, sig := range ps.Outputs {
		v := b.id()
		emit(&b.body, opVariable, b.ptrOut4, v, storageClassOutput)
		if sig.SystemValue == SVPosition {
			emit(&b.decls, opDecorate, v, decorationBuiltIn, builtInPosition)
		} else {
			emit(&b.decls, opDecorate, v, decorationLocation, sig.Register)
		}
		outputVars[i] = v
	}

	mainFn := b.id()
	b.mainFn = mainFn
	mainLabel := b.id()
	b.mainLabel = mainLabel

	entryOperands := append([]uint32{uint32(stage), mainFn}, spirvString("main")...)
	entryOperands = append(entryOperands, inputVars...)
	entryOperands = append(entryOperands, outputVars...)
	b.decls = append(b.decls, opWord(len(entryOperands)+1, opEntryPoint))
	b.decls = append(b.decls, entryOperands...)
	if ps.Stage != StageVertex {
		emit(&b.decls, opExecutionMode, mainFn, execModeOriginUpperLeft)
	}

	emit(&b.body, opFunction, b.voidTy, mainFn, 0, b.fnVoidTy)
	emit(&b.body, opLabel, mainLabel)

	temps := make(map[int]uint32)
	tempVar := func(idx int) uint32 {
		if v, ok := temps[idx]; ok {
			return v
		}
		v := b.id()
		emit(&b.body, opVariable, b.ptrFn4, v, storageClassFunction)
		temps[idx] = v
		return v
	}

	// Load every input once up front into an SSA value (inLoaded),
	// mirroring the VM's v0..v7 register file; temps and outputs go
	// through SPIR-V variable loads/stores in the translation below.
	inLoaded := make(map[int]uint32)
	for i, v := range inputVars {
		loaded := b.id()
		emit(&b.body, opLoad, b.vec4Ty, loaded, v)
		inLoaded[i] = loaded
	}

	translateTokens(b, ps.Tokens, tempVar, inLoaded, outputVars)

	emit(&b.body, opReturn)
	emit(&b.body, opFunctionEnd)

	return assemble(b), nil
}

func floatBits(f float32) uint32 {
	return math.Float32bits(f)
}

// GLSL.std.450 extended-instruction enumerants this translator uses.
const (
	glslInverseSqrt = 32
	glslFMin        = 37
	glslFMax        = 40
)

// regSource identifies an SM4 register reference by register file and
// index.
type regSource struct {
	kind int // matches operandTemp/operandOutput/operandInput
	idx  int
}

// translateTokens walks the same token stream sm4.go's VM interprets
// and emits one or more SPIR-V instructions per supported opcode,
// reading/writing through tempVar/inLoaded/outputVars exactly as the
// CPU VM reads/writes through its Temp/In/Out arrays.
func translateTokens(b *spirvBuilder, tokens []uint32, tempVar func(int) uint32, inLoaded map[int]uint32, outputVars []uint32) {
	readVal := func(o operand) uint32 {
		if o.isImmediate {
			id := b.id()
			lits := make([]uint32, 4)
			for i, f := range o.imm {
				lits[i] = floatBits(f)
			}
			comp := make([]uint32, 4)
			for i, lit := range lits {
				cID := b.id()
				emit(&b.body, opConstant, b.f32Ty, cID, lit)
				comp[i] = cID
			}
			emit(&b.body, opCompositeConstruct, b.vec4Ty, id, comp[0], comp[1], comp[2], comp[3])
			return id
		}
		var raw uint32
		switch o.file {
		case operandTemp:
			loaded := b.id()
			emit(&b.body, opLoad, b.vec4Ty, loaded, tempVar(int(o.index)))
			raw = loaded
		case operandInput:
			raw = inLoaded[int(o.index)]
		case operandOutput:
			if int(o.index) < len(outputVars) {
				loaded := b.id()
				emit(&b.body, opLoad, b.vec4Ty, loaded, outputVars[o.index])
				raw = loaded
			}
		default:
			return b.constZero
		}
		if o.swizzle == [4]int{0, 1, 2, 3} {
			return raw
		}
		shuffled := b.id()
		emit(&b.body, opVectorShuffle, b.vec4Ty, shuffled, raw, raw,
			uint32(o.swizzle[0]), uint32(o.swizzle[1]), uint32(o.swizzle[2]), uint32(o.swizzle[3]))
		return shuffled
	}

	writeVal := func(o operand, v uint32) {
		var target uint32
		switch o.file {
		case operandTemp:
			target = tempVar(int(o.index))
		case operandOutput:
			if int(o.index) < len(outputVars) {
				target = outputVars[o.index]
			}
		default:
			return
		}
		if target == 0 {
			return
		}
		emit(&b.body, opStore, target, v)
	}

	broadcast := func(scalar uint32) uint32 {
		id := b.id()
		emit(&b.body, opCompositeConstruct, b.vec4Ty, id, scalar, scalar, scalar, scalar)
		return id
	}

	dotN := func(a, bID uint32, n int) uint32 {
		av, bv := a, bID
		if n == 3 {
			av3 := b.id()
			emit(&b.body, opVectorShuffle, b.vec3Ty, av3, a, a, 0, 1, 2)
			bv3 := b.id()
			emit(&b.body, opVectorShuffle, b.vec3Ty, bv3, bID, bID, 0, 1, 2)
			av, bv = av3, bv3
		}
		d := b.id()
		emit(&b.body, opDot, b.f32Ty, d, av, bv)
		return d
	}

	onesConst := b.id()
	emit(&b.body, opConstant, b.f32Ty, onesConst, 0xFFFFFFFF)

	cmpBits := func(opcode uint16, a, bID uint32) uint32 {
		bres := b.id()
		emit(&b.body, opcode, b.bvec4Ty, bres, a, bID)
		sel := b.id()
		emit(&b.body, opSelect, b.vec4Ty, sel, bres, broadcast(onesConst), broadcast(b.constZero))
		return sel
	}

	for i := 0; i < len(tokens); {
		opTok := tokens[i]
		opcode := int(opTok & 0x7FF)
		length := int((opTok >> 24) & 0x7F)
		if length == 0 {
			length = 1
		}
		body := tokens[i+1 : minInt(i+length, len(tokens))]

		switch opcode {
		case opRET:
			return
		case opMOV:
			dst, p := decodeOperand(body, 0)
			src, _ := decodeOperand(body, p)
			writeVal(dst, readVal(src))
		case opADD:
			dst, p := decodeOperand(body, 0)
			a, p2 := decodeOperand(body, p)
			bo, _ := decodeOperand(body, p2)
			r := b.id()
			emit(&b.body, opFAdd, b.vec4Ty, r, readVal(a), readVal(bo))
			writeVal(dst, r)
		case opMUL:
			dst, p := decodeOperand(body, 0)
			a, p2 := decodeOperand(body, p)
			bo, _ := decodeOperand(body, p2)
			r := b.id()
			emit(&b.body, opFMul, b.vec4Ty, r, readVal(a), readVal(bo))
			writeVal(dst, r)
		case opMAD:
			dst, p := decodeOperand(body, 0)
			a, p2 := decodeOperand(body, p)
			bo, p3 := decodeOperand(body, p2)
			c, _ := decodeOperand(body, p3)
			mul := b.id()
			emit(&b.body, opFMul, b.vec4Ty, mul, readVal(a), readVal(bo))
			r := b.id()
			emit(&b.body, opFAdd, b.vec4Ty, r, mul, readVal(c))
			writeVal(dst, r)
		case opDP3, opDP4:
			dst, p := decodeOperand(body, 0)
			a, p2 := decodeOperand(body, p)
			bo, _ := decodeOperand(body, p2)
			n := 3
			if opcode == opDP4 {
				n = 4
			}
			d := dotN(readVal(a), readVal(bo), n)
			writeVal(dst, broadcast(d))
		case opLT:
			dst, p := decodeOperand(body, 0)
			a, p2 := decodeOperand(body, p)
			bo, _ := decodeOperand(body, p2)
			writeVal(dst, cmpBits(opFOrdLessThan, readVal(a), readVal(bo)))
		case opGE:
			dst, p := decodeOperand(body, 0)
			a, p2 := decodeOperand(body, p)
			bo, _ := decodeOperand(body, p2)
			writeVal(dst, cmpBits(opFOrdGreaterThanEqual, readVal(a), readVal(bo)))
		case opEQ:
			dst, p := decodeOperand(body, 0)
			a, p2 := decodeOperand(body, p)
			bo, _ := decodeOperand(body, p2)
			writeVal(dst, cmpBits(opFOrdEqual, readVal(a), readVal(bo)))
		case opNE:
			dst, p := decodeOperand(body, 0)
			a, p2 := decodeOperand(body, p)
			bo, _ := decodeOperand(body, p2)
			writeVal(dst, cmpBits(opFUnordNotEqual, readVal(a), readVal(bo)))
		case opMIN, opMAX:
			dst, p := decodeOperand(body, 0)
			a, p2 := decodeOperand(body, p)
			bo, _ := decodeOperand(body, p2)
			inst := glslFMin
			if opcode == opMAX {
				inst = glslFMax
			}
			r := b.id()
			emit(&b.body, opExtInst, b.vec4Ty, r, b.glsl450, uint32(inst), readVal(a), readVal(bo))
			writeVal(dst, r)
		case opMOVC:
			dst, p := decodeOperand(body, 0)
			cond, p2 := decodeOperand(body, p)
			a, p3 := decodeOperand(body, p2)
			bo, _ := decodeOperand(body, p3)
			// cmpBits-style reinterpretation: treat the condition vec4's
			// bit pattern as the select mask directly (non-zero => true).
			condBool := b.id()
			emit(&b.body, opFUnordNotEqual, b.bvec4Ty, condBool, readVal(cond), broadcast(b.constZero))
			r := b.id()
			emit(&b.body, opSelect, b.vec4Ty, r, condBool, readVal(a), readVal(bo))
			writeVal(dst, r)
		case opRSQ:
			dst, p := decodeOperand(body, 0)
			a, _ := decodeOperand(body, p)
			r := b.id()
			emit(&b.body, opExtInst, b.vec4Ty, r, b.glsl450, glslInverseSqrt, readVal(a))
			writeVal(dst, r)
		}

		i += length
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// assemble concatenates the fixed SPIR-V header, the declarations
// stream, and the body stream, and writes the final `bound` value
// (next free id) into the header before returning the byte-serialized
// module.
func assemble(b *spirvBuilder) []byte {
	header := []uint32{spirvMagic, spirvVersion, 0 /* generator */, b.nextID + 1, 0 /* schema */}
	words := append(header, b.decls...)
	words = append(words, b.body...)

	out := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(out[i*4:i*4+4], w)
	}
	return out
}
