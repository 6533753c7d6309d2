/*
 * Copyright 2022 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package hir

import (
    `fmt`

    `github.com/cloudwego/heapopt/internal/cpu`
)

// Graph is one method's control-flow graph in SSA form. Entry and Exit
// are the unique entry and exit blocks. Dominator and loop information
// is populated by BuildDominatorTree and consumed by the optimization
// passes.
type Graph struct {
    Entry       *BasicBlock
    Exit        *BasicBlock
    Blocks      []*BasicBlock
    Loops       []*Loop
    HasSIMD     bool
    Irreducible bool
    DominatedBy map[int]*BasicBlock
    DominatorOf map[int][]*BasicBlock
    nextins     int
    nullc       *NullConst
    intc        map[int32]*IntConst
    longc       map[int64]*LongConst
    fltc        map[float32]*FloatConst
    dblc        map[float64]*DoubleConst
}

func NewGraph() *Graph {
    return &Graph {
        HasSIMD : cpu.HasSIMD,
        intc    : make(map[int32]*IntConst),
        longc   : make(map[int64]*LongConst),
        fltc    : make(map[float32]*FloatConst),
        dblc    : make(map[float64]*DoubleConst),
    }
}

func (self *Graph) instrid() int {
    self.nextins++
    return self.nextins - 1
}

// SetHasSIMD overrides the machine-derived vector capability flag.
func (self *Graph) SetHasSIMD(v bool) {
    self.HasSIMD = v
}

// NewBlock creates an empty block owned by this graph.
func (self *Graph) NewBlock() *BasicBlock {
    p := &BasicBlock { Id: len(self.Blocks), cfg: self }
    self.Blocks = append(self.Blocks, p)
    return p
}

func (self *Graph) entryconst(p Instruction) {
    if self.Entry == nil {
        panic("hir: constant requested before the entry block exists")
    }
    self.Entry.InsertFront(p)
}

// IntConst returns the cached 32-bit constant, materializing it in the
// entry block on first request.
func (self *Graph) IntConst(v int32) *IntConst {
    if p, ok := self.intc[v]; ok {
        return p
    }
    p := &IntConst { node: mknode(Int32), V: v }
    self.entryconst(p)
    self.intc[v] = p
    return p
}

// LongConst returns the cached 64-bit constant.
func (self *Graph) LongConst(v int64) *LongConst {
    if p, ok := self.longc[v]; ok {
        return p
    }
    p := &LongConst { node: mknode(Int64), V: v }
    self.entryconst(p)
    self.longc[v] = p
    return p
}

// FloatConst returns the cached 32-bit floating point constant.
func (self *Graph) FloatConst(v float32) *FloatConst {
    if p, ok := self.fltc[v]; ok {
        return p
    }
    p := &FloatConst { node: mknode(Float32), V: v }
    self.entryconst(p)
    self.fltc[v] = p
    return p
}

// DoubleConst returns the cached 64-bit floating point constant.
func (self *Graph) DoubleConst(v float64) *DoubleConst {
    if p, ok := self.dblc[v]; ok {
        return p
    }
    p := &DoubleConst { node: mknode(Float64), V: v }
    self.entryconst(p)
    self.dblc[v] = p
    return p
}

// Null returns the cached null reference constant.
func (self *Graph) Null() *NullConst {
    if self.nullc == nil {
        p := &NullConst { node: mknode(Ref) }
        self.entryconst(p)
        self.nullc = p
    }
    return self.nullc
}

// ZeroOf returns the zero value constant for a memory slot type.
func (self *Graph) ZeroOf(ty Type) Instruction {
    switch ty {
        case Bool    : fallthrough
        case Int8    : fallthrough
        case Uint16  : fallthrough
        case Int16   : fallthrough
        case Int32   : return self.IntConst(0)
        case Int64   : return self.LongConst(0)
        case Float32 : return self.FloatConst(0)
        case Float64 : return self.DoubleConst(0)
        case Ref     : return self.Null()
        default      : panic(fmt.Sprintf("hir: no zero value for type %s", ty))
    }
}

// PostOrder returns the blocks reachable from the entry, successors
// first.
func (self *Graph) PostOrder() []*BasicBlock {
    ret := make([]*BasicBlock, 0, len(self.Blocks))
    seen := make([]bool, len(self.Blocks))
    next := make([]int, 0, len(self.Blocks))

    /* iterative DFS, tracking the successor cursor per open block */
    stk := []*BasicBlock { self.Entry }
    next = append(next, 0)
    seen[self.Entry.Id] = true

    for len(stk) != 0 {
        b := stk[len(stk) - 1]
        i := next[len(next) - 1]

        /* all successors handled, emit the block */
        if i >= len(b.Succ) {
            ret = append(ret, b)
            stk = stk[:len(stk) - 1]
            next = next[:len(next) - 1]
            continue
        }

        /* descend into the next unvisited successor */
        next[len(next) - 1]++
        if s := b.Succ[i]; !seen[s.Id] {
            seen[s.Id] = true
            stk = append(stk, s)
            next = append(next, 0)
        }
    }
    return ret
}

// ReversePostOrder returns the blocks in reverse post-order: every
// block after all its non-back-edge predecessors.
func (self *Graph) ReversePostOrder() []*BasicBlock {
    po := self.PostOrder()
    for i, j := 0, len(po) - 1; i < j; i, j = i + 1, j - 1 {
        po[i], po[j] = po[j], po[i]
    }
    return po
}

// BuildDominatorTree computes the immediate dominator relation and the
// loop forest. Passes require it; drivers may call it again after
// structural CFG changes.
func (self *Graph) BuildDominatorTree() {
    buildDominatorTree(self)
    buildLoops(self)
}
