// Copyright 2022 CloudWeGo Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package fuzz

import (
	"github.com/cloudwego/heapopt/hir"
)

// BoxFields is the field layout of the synthetic object type every
// fuzzed method works on. The last slot is volatile so the inputs also
// exercise the memory barrier handling.
var BoxFields = []hir.Field{
	{Offset: 8, Type: hir.Int32},
	{Offset: 12, Type: hir.Int32},
	{Offset: 16, Type: hir.Int32},
	{Offset: 20, Type: hir.Int32},
	{Offset: 24, Type: hir.Int32, Volatile: true},
}

// Heap is a model of memory keyed by (base ordinal, slot). Arrays use
// their element index as the slot, objects the field offset. Ordinals
// 0 and 1 are the two parameters and stay visible to the caller,
// ordinals 2 and 3 are method-local allocations.
type Heap map[[2]int]int64

// Program is one straight-line method derived from fuzz input.
type Program struct {
	G    *hir.AdjacencyGraph
	Body *hir.BasicBlock
	ords map[hir.Instruction]int
}

// Build decodes data three bytes at a time into heap operations over
// two parameters and two fresh allocations. Any byte string decodes
// into a structurally valid method.
func Build(data []byte) *Program {
	g := hir.BuildAdjacencyGraph("entry", "exit", [][2]string{
		{"entry", "body"},
		{"body", "exit"},
	})
	body := g.Get("body")
	g.Entry.SetTerm(hir.MakeGoto())
	body.SetTerm(hir.MakeReturn(nil))
	g.Exit.SetTerm(hir.MakeExit())

	arr := hir.MakeParameter(0, hir.Ref)
	obj := hir.MakeParameter(1, hir.Ref)
	g.Entry.AddInstr(arr)
	g.Entry.AddInstr(obj)

	larr := hir.MakeNewArray(hir.Int32, g.IntConst(8))
	lobj := hir.MakeNewInstance("fuzz.Box")
	body.AddInstr(larr)
	body.AddInstr(lobj)

	ret := &Program{
		G:    g,
		Body: body,
		ords: map[hir.Instruction]int{arr: 0, obj: 1, larr: 2, lobj: 3},
	}
	abase := func(v byte) hir.Instruction {
		if v&1 == 0 {
			return arr
		}
		return larr
	}
	obase := func(v byte) hir.Instruction {
		if v&1 == 0 {
			return obj
		}
		return lobj
	}
	idx := func(v byte) *hir.IntConst {
		return g.IntConst(int32(v % 8))
	}
	fld := func(v byte) hir.Field {
		return BoxFields[int(v)%len(BoxFields)]
	}

	for k := 0; k+2 < len(data); k += 3 {
		op, a, b := data[k], data[k+1], data[k+2]
		switch op % 6 {
		case 0:
			body.AddInstr(hir.MakeArraySet(abase(a), idx(a>>1), g.IntConst(int32(b%16)), hir.Int32))
		case 1:
			ld := hir.MakeArrayGet(abase(a), idx(a>>1), hir.Int32)
			body.AddInstr(ld)
			body.AddInstr(hir.MakeArraySet(arr, idx(b), ld, hir.Int32))
		case 2:
			body.AddInstr(hir.MakeFieldSet(obase(a), fld(b), g.IntConst(int32(a%16))))
		case 3:
			ld := hir.MakeFieldGet(obase(a), fld(a>>1))
			body.AddInstr(ld)
			body.AddInstr(hir.MakeArraySet(arr, idx(b), ld, hir.Int32))
		case 4:
			body.AddInstr(hir.MakeInvoke("fuzz.opaque", hir.Void))
		default:
			ld := hir.MakeArrayGet(arr, idx(a), hir.Int32)
			body.AddInstr(ld)
			body.AddInstr(hir.MakeArraySet(larr, idx(b), ld, hir.Int32))
		}
	}
	return ret
}

// Interpret executes the method body once against init, treating calls
// as runtime no-ops. Unwritten cells read as zero, like fresh
// allocations do.
func (self *Program) Interpret(init Heap) Heap {
	heap := make(Heap, len(init))
	for k, v := range init {
		heap[k] = v
	}

	env := make(map[hir.Instruction]int64)
	rd := func(v hir.Instruction) int64 {
		if c, ok := v.(*hir.IntConst); ok {
			return int64(c.V)
		}
		return env[v]
	}
	akey := func(v hir.ArrayAccess) [2]int {
		return [2]int{self.ords[v.MemBase()], int(v.Index().(*hir.IntConst).V)}
	}
	fkey := func(base hir.Instruction, f hir.Field) [2]int {
		return [2]int{self.ords[base], f.Offset}
	}

	for _, p := range self.Body.Ins {
		switch v := p.(type) {
		case *hir.ArraySet:
			heap[akey(v)] = rd(v.Value())
		case *hir.ArrayGet:
			env[v] = heap[akey(v)]
		case *hir.FieldSet:
			heap[fkey(v.MemBase(), v.Field())] = rd(v.Value())
		case *hir.FieldGet:
			env[v] = heap[fkey(v.MemBase(), v.Field())]
		}
	}
	return heap
}

// Visible strips the method-local allocations from a heap, leaving the
// cells the caller can observe.
func Visible(heap Heap) Heap {
	ret := make(Heap)
	for k, v := range heap {
		if k[0] <= 1 {
			ret[k] = v
		}
	}
	return ret
}
