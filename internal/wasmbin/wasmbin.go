// Package wasmbin emits minimal WebAssembly modules used as script
// fixtures in tests. The canned modules implement the script ABI (alloc +
// entry points) with bodies a few instructions long, standing in for real
// user-built modules the way a mock interpreter would.
package wasmbin

import (
	"encoding/binary"
	"math"
)

// ValType is a wasm value type.
type ValType byte

const (
	I32 ValType = 0x7F
	F64 ValType = 0x7C
)

// Export is one exported function of a fixture module.
type Export struct {
	Name    string
	Params  []ValType
	Results []ValType
	Locals  []ValType // extra locals beyond params
	Body    []byte    // instructions, without the trailing end opcode
}

// Module assembles a wasm binary containing one exported linear memory
// ("memory", 1 page), a mutable i32 heap-pointer global initialized to
// 1024, and the given exported functions. Function i uses type index i.
func Module(exports ...Export) []byte {
	var types, funcs, codes, exps [][]byte

	for i, e := range exports {
		ft := []byte{0x60}
		ft = append(ft, valtypes(e.Params)...)
		ft = append(ft, valtypes(e.Results)...)
		types = append(types, ft)

		funcs = append(funcs, uleb(uint32(i)))

		var locals [][]byte
		for _, lt := range e.Locals {
			locals = append(locals, append(uleb(1), byte(lt)))
		}
		code := vec(locals)
		code = append(code, e.Body...)
		code = append(code, opEnd)
		codes = append(codes, append(uleb(uint32(len(code))), code...))

		exp := name(e.Name)
		exp = append(exp, 0x00) // func
		exp = append(exp, uleb(uint32(i))...)
		exps = append(exps, exp)
	}

	memExp := name("memory")
	memExp = append(memExp, 0x02, 0x00) // mem 0
	exps = append(exps, memExp)

	mod := []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}
	mod = append(mod, section(1, vec(types))...)
	mod = append(mod, section(3, vec(funcs))...)
	mod = append(mod, section(5, vec([][]byte{{0x00, 0x01}}))...) // 1 page min
	// heap pointer global: i32 mut, init 1024
	global := []byte{0x7F, 0x01, opI32Const}
	global = append(global, sleb(1024)...)
	global = append(global, opEnd)
	mod = append(mod, section(6, vec([][]byte{global}))...)
	mod = append(mod, section(7, vec(exps))...)
	mod = append(mod, section(10, vec(codes))...)
	return mod
}

// Instruction opcodes and helpers.
const (
	opUnreachable = 0x00
	opBlock       = 0x02
	opLoop        = 0x03
	opIf          = 0x04
	opEnd         = 0x0B
	opBr          = 0x0C
	opBrIf        = 0x0D
	opDrop        = 0x1A
	opLocalGet    = 0x20
	opLocalSet    = 0x21
	opGlobalGet   = 0x23
	opGlobalSet   = 0x24
	opF64Load     = 0x2B
	opF64Store    = 0x39
	opMemoryGrow  = 0x40
	opI32Const    = 0x41
	opF64Const    = 0x44
	opI32Eq       = 0x46
	opI32GeS      = 0x4E
	opI32Add      = 0x6A
	opI32Mul      = 0x6C
	opF64Add      = 0xA0
	opF64Mul      = 0xA2

	blockEmpty = 0x40
)

// LocalGet pushes local i.
func LocalGet(i uint32) []byte { return append([]byte{opLocalGet}, uleb(i)...) }

// LocalSet pops into local i.
func LocalSet(i uint32) []byte { return append([]byte{opLocalSet}, uleb(i)...) }

// I32Const pushes a constant i32.
func I32Const(v int32) []byte { return append([]byte{opI32Const}, sleb(v)...) }

// F64Const pushes a constant f64.
func F64Const(v float64) []byte {
	b := make([]byte, 9)
	b[0] = opF64Const
	binary.LittleEndian.PutUint64(b[1:], math.Float64bits(v))
	return b
}

// F64Load loads an f64 from the address on the stack.
func F64Load() []byte { return []byte{opF64Load, 0x03, 0x00} }

// F64Store stores an f64 at the address on the stack.
func F64Store() []byte { return []byte{opF64Store, 0x03, 0x00} }

// Instrs concatenates instruction fragments.
func Instrs(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func allocBody() []byte {
	return Instrs(
		[]byte{opGlobalGet, 0x00},
		[]byte{opGlobalGet, 0x00},
		LocalGet(0),
		[]byte{opI32Add},
		[]byte{opGlobalSet, 0x00},
	)
}

// AllocFunc is the standard bump allocator: returns the heap pointer and
// advances it by the requested size.
func AllocFunc() Export {
	return Export{
		Name:    "alloc",
		Params:  []ValType{I32},
		Results: []ValType{I32},
		Body:    allocBody(),
	}
}

// GrowingAllocFunc is AllocFunc prefixed with a one-page memory.grow, so
// every allocation moves the linear memory's backing buffer.
func GrowingAllocFunc() Export {
	return Export{
		Name:    "alloc",
		Params:  []ValType{I32},
		Results: []ValType{I32},
		Body: Instrs(
			I32Const(1),
			[]byte{opMemoryGrow, 0x00},
			[]byte{opDrop},
			allocBody(),
		),
	}
}

// scaleBody doubles src into tgt element-wise.
// Params: time,dt,partial,full f64 (0-3), src_ptr,src_len,tgt_ptr,tgt_len
// i32 (4-7). Local 8 is the loop counter.
func scaleBody() []byte {
	return Instrs(
		[]byte{opBlock, blockEmpty},
		[]byte{opLoop, blockEmpty},
		LocalGet(8), LocalGet(5), []byte{opI32GeS}, []byte{opBrIf, 0x01},
		// tgt_ptr + i*8
		LocalGet(6), LocalGet(8), I32Const(8), []byte{opI32Mul}, []byte{opI32Add},
		// src[i] * 2
		LocalGet(4), LocalGet(8), I32Const(8), []byte{opI32Mul}, []byte{opI32Add},
		F64Load(), F64Const(2), []byte{opF64Mul},
		F64Store(),
		// i++
		LocalGet(8), I32Const(1), []byte{opI32Add}, LocalSet(8),
		[]byte{opBr, 0x00},
		[]byte{opEnd},
		[]byte{opEnd},
	)
}

var performBufferParams = []ValType{F64, F64, F64, F64, I32, I32, I32, I32}

// ScaleModule exports perform_action(4×f64, src pair, tgt pair) writing
// tgt[i] = src[i] * 2 for every element.
func ScaleModule() []byte {
	return Module(
		AllocFunc(),
		Export{Name: "perform_action", Params: performBufferParams, Locals: []ValType{I32}, Body: scaleBody()},
	)
}

// vertexScaleBody writes tgt[0] = src[0] * 2 for the vertex's window.
// Params: id,coords_ptr,coords_len i32 (0-2), 4×f64 (3-6),
// src_ptr,src_len,tgt_ptr,tgt_len i32 (7-10). Assumes scalar fields.
func vertexScaleBody() []byte {
	return Instrs(
		LocalGet(9),
		LocalGet(7), F64Load(), F64Const(2), []byte{opF64Mul},
		F64Store(),
	)
}

var vertexBufferParams = []ValType{I32, I32, I32, F64, F64, F64, F64, I32, I32, I32, I32}

// postAddBody adds 1 to tgt[0]. Params: src_ptr,src_len,tgt_ptr,tgt_len.
func postAddBody() []byte {
	return Instrs(
		LocalGet(2),
		LocalGet(2), F64Load(), F64Const(1), []byte{opF64Add},
		F64Store(),
	)
}

// VertexScaleModule exports a per-vertex callback doubling the source
// value into the target (scalar fields). With withPost, a post_action hook
// adding 1 to tgt[0] is exported too. perform_action is present but inert,
// as the per-vertex mode requires.
func VertexScaleModule(withPost bool) []byte {
	exports := []Export{
		AllocFunc(),
		Export{Name: "perform_action", Params: performBufferParams},
		Export{Name: "vertex_callback", Params: vertexBufferParams, Body: vertexScaleBody()},
	}
	if withPost {
		exports = append(exports, Export{
			Name:   "post_action",
			Params: []ValType{I32, I32, I32, I32},
			Body:   postAddBody(),
		})
	}
	return Module(exports...)
}

// GrowingVertexScaleModule is VertexScaleModule(false) with an allocator
// that grows memory by one page on every call.
func GrowingVertexScaleModule() []byte {
	return Module(
		GrowingAllocFunc(),
		Export{Name: "perform_action", Params: performBufferParams},
		Export{Name: "vertex_callback", Params: vertexBufferParams, Body: vertexScaleBody()},
	)
}

// GrowingScaleModule is ScaleModule with the growing allocator.
func GrowingScaleModule() []byte {
	return Module(
		GrowingAllocFunc(),
		Export{Name: "perform_action", Params: performBufferParams, Locals: []ValType{I32}, Body: scaleBody()},
	)
}

// TrapAtVertexModule is VertexScaleModule whose callback writes its target
// value and then traps when id equals failID.
func TrapAtVertexModule(failID int32) []byte {
	body := Instrs(
		vertexScaleBody(),
		LocalGet(0), I32Const(failID), []byte{opI32Eq},
		[]byte{opIf, blockEmpty},
		[]byte{opUnreachable},
		[]byte{opEnd},
	)
	return Module(
		AllocFunc(),
		Export{Name: "perform_action", Params: performBufferParams},
		Export{Name: "vertex_callback", Params: vertexBufferParams, Body: body},
	)
}

// NoPerformModule exports alloc but no perform_action.
func NoPerformModule() []byte {
	return Module(AllocFunc())
}

// BadArityModule exports perform_action with two parameters, whatever the
// host negotiated.
func BadArityModule() []byte {
	return Module(
		AllocFunc(),
		Export{Name: "perform_action", Params: []ValType{F64, F64}},
	)
}

// TrapPerformModule exports perform_action(4×f64) that traps immediately.
func TrapPerformModule() []byte {
	return Module(
		AllocFunc(),
		Export{Name: "perform_action", Params: []ValType{F64, F64, F64, F64}, Body: []byte{opUnreachable}},
	)
}

// NoArgsModule exports perform_action(4×f64) with an empty body, for
// actions bound without source or target data.
func NoArgsModule() []byte {
	return Module(
		AllocFunc(),
		Export{Name: "perform_action", Params: []ValType{F64, F64, F64, F64}},
	)
}

func valtypes(ts []ValType) []byte {
	out := uleb(uint32(len(ts)))
	for _, t := range ts {
		out = append(out, byte(t))
	}
	return out
}

func vec(items [][]byte) []byte {
	out := uleb(uint32(len(items)))
	for _, it := range items {
		out = append(out, it...)
	}
	return out
}

func section(id byte, contents []byte) []byte {
	out := []byte{id}
	out = append(out, uleb(uint32(len(contents)))...)
	return append(out, contents...)
}

func name(s string) []byte {
	return append(uleb(uint32(len(s))), s...)
}

func uleb(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			return out
		}
	}
}

func sleb(v int32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}
