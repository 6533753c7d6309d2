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
)

// BasicBlock is a straight-line run of instructions. Phi holds the
// merge instructions, Ins the body in execution order, Term the closing
// control instruction. Pred and Succ order is significant: phi operands
// follow Pred order, and an If branches to Succ[0] on true.
type BasicBlock struct {
    Id   int
    Phi  []*Phi
    Ins  []Instruction
    Term Terminator
    Pred []*BasicBlock
    Succ []*BasicBlock
    Loop *Loop
    cfg  *Graph
}

// AddSuccessor wires a CFG edge from self to b, keeping both edge lists
// in sync.
func (self *BasicBlock) AddSuccessor(b *BasicBlock) {
    self.Succ = append(self.Succ, b)
    b.Pred = append(b.Pred, self)
}

// PredIndex returns the position of p in the predecessor list.
func (self *BasicBlock) PredIndex(p *BasicBlock) int {
    for i, b := range self.Pred {
        if b == p {
            return i
        }
    }
    panic(fmt.Sprintf("hir: b%d is not a predecessor of b%d", p.Id, self.Id))
}

func (self *BasicBlock) attach(p Instruction) {
    n := p.ibase()
    if n.blk != nil {
        panic(fmt.Sprintf("hir: instruction already attached: %s", p))
    }
    n.blk = self
    n.self = p
    n.id = self.cfg.instrid()
    for i, v := range n.in {
        v.ibase().adduse(p, i)
    }
}

func (self *BasicBlock) detach(p Instruction) {
    n := p.ibase()
    for i, v := range n.in {
        v.ibase().deluse(p, i)
    }
    n.blk = nil
}

// AddInstr appends an instruction to the block body and links it into
// the graph. Constants referenced as operands must already be attached.
func (self *BasicBlock) AddInstr(p Instruction) {
    if _, ok := p.(Terminator); ok {
        panic(fmt.Sprintf("hir: terminator added as body instruction: %s", p))
    }
    self.attach(p)
    self.Ins = append(self.Ins, p)
}

// AddPhi adds a phi; its inputs must match the predecessor list.
func (self *BasicBlock) AddPhi(p *Phi) {
    self.attach(p)
    self.Phi = append(self.Phi, p)
}

// SetTerm installs the closing control instruction.
func (self *BasicBlock) SetTerm(p Terminator) {
    if self.Term != nil {
        panic(fmt.Sprintf("hir: b%d is already terminated", self.Id))
    }
    self.attach(p)
    self.Term = p
}

// InsertBefore places p immediately before mark, which must be a body
// instruction of this block.
func (self *BasicBlock) InsertBefore(p Instruction, mark Instruction) {
    for i, v := range self.Ins {
        if v == mark {
            self.attach(p)
            self.Ins = append(self.Ins, nil)
            copy(self.Ins[i + 1:], self.Ins[i:])
            self.Ins[i] = p
            return
        }
    }
    panic(fmt.Sprintf("hir: mark not found in b%d: %s", self.Id, mark))
}

// InsertFront places p before every body instruction but after the
// phis.
func (self *BasicBlock) InsertFront(p Instruction) {
    if len(self.Ins) != 0 {
        self.InsertBefore(p, self.Ins[0])
    } else {
        self.AddInstr(p)
    }
}

// Remove unlinks a phi or body instruction from the graph. The
// instruction must have no remaining uses; redirect them first with
// ReplaceUses. After removal Block() reports nil.
func (self *BasicBlock) Remove(p Instruction) {
    if len(p.Uses()) != 0 {
        panic(fmt.Sprintf("hir: removing an instruction that still has uses: %s", p))
    }
    if q, ok := p.(*Phi); ok {
        for i, v := range self.Phi {
            if v == q {
                self.detach(p)
                self.Phi = append(self.Phi[:i], self.Phi[i + 1:]...)
                return
            }
        }
    } else {
        for i, v := range self.Ins {
            if v == p {
                self.detach(p)
                self.Ins = append(self.Ins[:i], self.Ins[i + 1:]...)
                return
            }
        }
    }
    panic(fmt.Sprintf("hir: instruction not found in b%d: %s", self.Id, p))
}

func (self *BasicBlock) String() string {
    return fmt.Sprintf("b%d", self.Id)
}
