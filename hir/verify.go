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

// Verify checks the structural well-formedness of the graph: edge list
// symmetry, terminator arities, phi shapes, use list consistency and
// the dominance of every definition over its uses. Passes may assume a
// verified graph; drivers should verify before running passes and
// after mutating the CFG by hand.
func (self *Graph) Verify() error {
    if self.Entry == nil || self.Exit == nil {
        return fmt.Errorf("hir: graph has no entry or exit block")
    }
    if len(self.Entry.Pred) != 0 {
        return fmt.Errorf("hir: entry block b%d has predecessors", self.Entry.Id)
    }
    if len(self.Exit.Succ) != 0 {
        return fmt.Errorf("hir: exit block b%d has successors", self.Exit.Id)
    }

    /* dominance checks need the tree */
    if self.DominatedBy == nil {
        self.BuildDominatorTree()
    }

    /* only reachable blocks participate */
    for _, b := range self.ReversePostOrder() {
        if err := self.verifyblock(b); err != nil {
            return err
        }
    }
    return nil
}

func (self *Graph) verifyblock(b *BasicBlock) error {
    if err := self.verifyedges(b); err != nil {
        return err
    }
    if err := self.verifyterm(b); err != nil {
        return err
    }

    /* body positions for same-block dominance */
    pos := make(map[Instruction]int, len(b.Ins))
    for i, p := range b.Ins {
        pos[p] = i + 1
    }

    /* phis merge one value per predecessor */
    for _, p := range b.Phi {
        if p.Block() != b {
            return fmt.Errorf("hir: b%d: phi %s belongs to another block", b.Id, p)
        }
        if len(p.Inputs()) != len(b.Pred) {
            return fmt.Errorf("hir: b%d: phi %s has %d inputs for %d predecessors", b.Id, p, len(p.Inputs()), len(b.Pred))
        }
        if err := self.verifyuses(b, p, pos, 0); err != nil {
            return err
        }
    }

    /* body instructions in execution order, then the terminator */
    for i, p := range b.Ins {
        if p.Block() != b {
            return fmt.Errorf("hir: b%d: instruction %s belongs to another block", b.Id, p)
        }
        if err := self.verifyuses(b, p, pos, i + 1); err != nil {
            return err
        }
    }
    return self.verifyuses(b, b.Term, pos, len(b.Ins) + 1)
}

func (self *Graph) verifyedges(b *BasicBlock) error {
    for _, s := range b.Succ {
        if b.countedges(b.Succ, s) != s.countedges(s.Pred, b) {
            return fmt.Errorf("hir: asymmetric edge b%d -> b%d", b.Id, s.Id)
        }
        if b.countedges(b.Succ, s) != 1 {
            return fmt.Errorf("hir: duplicate edge b%d -> b%d", b.Id, s.Id)
        }
    }
    for _, p := range b.Pred {
        if b.countedges(b.Pred, p) != p.countedges(p.Succ, b) {
            return fmt.Errorf("hir: asymmetric edge b%d <- b%d", b.Id, p.Id)
        }
    }
    return nil
}

func (self *BasicBlock) countedges(v []*BasicBlock, b *BasicBlock) int {
    n := 0
    for _, p := range v {
        if p == b {
            n++
        }
    }
    return n
}

func (self *Graph) verifyterm(b *BasicBlock) error {
    switch p := b.Term.(type) {
        default: {
            return fmt.Errorf("hir: b%d: unknown terminator %s", b.Id, p)
        }

        /* fallthrough edge */
        case *Goto: {
            if len(b.Succ) != 1 {
                return fmt.Errorf("hir: b%d: goto with %d successors", b.Id, len(b.Succ))
            }
        }

        /* conditional branch, true target first */
        case *If: {
            if len(b.Succ) != 2 {
                return fmt.Errorf("hir: b%d: if with %d successors", b.Id, len(b.Succ))
            }
        }

        /* returns flow into the exit block */
        case *Return: {
            if len(b.Succ) != 1 || b.Succ[0] != self.Exit {
                return fmt.Errorf("hir: b%d: return does not lead to the exit block", b.Id)
            }
        }

        /* only the exit block ends the method */
        case *Exit: {
            if b != self.Exit {
                return fmt.Errorf("hir: b%d: exit instruction outside the exit block", b.Id)
            }
        }

        case nil: {
            return fmt.Errorf("hir: b%d is not terminated", b.Id)
        }
    }
    return nil
}

func (self *Graph) verifyuses(b *BasicBlock, p Instruction, pos map[Instruction]int, at int) error {
    _, isphi := p.(*Phi)

    /* every operand must be live, linked back, and dominate this use */
    for i, v := range p.Inputs() {
        if v == nil {
            return fmt.Errorf("hir: b%d: %s: operand %d is nil", b.Id, p, i)
        }
        if IsRemoved(v) {
            return fmt.Errorf("hir: b%d: %s: operand %d was removed from the graph", b.Id, p, i)
        }
        if !hasuse(v, p, i) {
            return fmt.Errorf("hir: b%d: %s: operand %d does not list this use", b.Id, p, i)
        }
        if isphi {
            if !self.Dominates(v.Block(), b.Pred[i]) {
                return fmt.Errorf("hir: b%d: phi %s: operand %d does not dominate the b%d edge", b.Id, p, i, b.Pred[i].Id)
            }
        } else if v.Block() == b {
            /* phis precede every body instruction of their block */
            if _, ok := v.(*Phi); !ok {
                if q, ok := pos[v]; !ok || q >= at {
                    return fmt.Errorf("hir: b%d: %s: operand %d is defined after its use", b.Id, p, i)
                }
            }
        } else {
            if !self.Dominates(v.Block(), b) {
                return fmt.Errorf("hir: b%d: %s: operand %d does not dominate the use", b.Id, p, i)
            }
        }
    }

    /* the use list must point back at real operands */
    for _, u := range p.Uses() {
        if u.User.Inputs()[u.Index] != p {
            return fmt.Errorf("hir: b%d: %s: stale use record for %s", b.Id, p, u.User)
        }
    }
    return nil
}

func hasuse(v Instruction, p Instruction, i int) bool {
    for _, u := range v.Uses() {
        if u.User == p && u.Index == i {
            return true
        }
    }
    return false
}
