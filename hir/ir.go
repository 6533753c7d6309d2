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
    `strings`
)

// Use is one entry of an instruction's use list: the using instruction
// and the operand slot it occupies there.
type Use struct {
    User  Instruction
    Index int
}

// Instruction is the generic instruction API every IR node implements.
// Values are the instructions that produce them; operand lists and use
// lists are kept consistent by the structural mutation operations on
// BasicBlock and by SetInput.
type Instruction interface {
    Id() int
    Type() Type
    Block() *BasicBlock
    Inputs() []Instruction
    SetInput(i int, v Instruction)
    Uses() []*Use
    String() string
    ibase() *node
}

// Terminator is the control instruction closing a basic block.
type Terminator interface {
    Instruction
    isTerminator()
}

type node struct {
    id   int
    ty   Type
    blk  *BasicBlock
    self Instruction
    in   []Instruction
    uses []*Use
}

func (self *node) Id() int                { return self.id }
func (self *node) Type() Type             { return self.ty }
func (self *node) Block() *BasicBlock     { return self.blk }
func (self *node) Inputs() []Instruction  { return self.in }
func (self *node) Uses() []*Use           { return self.uses }
func (self *node) ibase() *node           { return self }

func (self *node) SetInput(i int, v Instruction) {
    if self.self == nil {
        panic("hir: SetInput on a detached instruction")
    }
    if old := self.in[i]; old != nil {
        old.ibase().deluse(self.self, i)
    }
    self.in[i] = v
    v.ibase().adduse(self.self, i)
}

func (self *node) adduse(user Instruction, idx int) {
    self.uses = append(self.uses, &Use { User: user, Index: idx })
}

func (self *node) deluse(user Instruction, idx int) {
    for i, u := range self.uses {
        if u.User == user && u.Index == idx {
            self.uses = append(self.uses[:i], self.uses[i + 1:]...)
            return
        }
    }
    panic("hir: use list out of sync")
}

func (self *node) vname() string {
    return fmt.Sprintf("v%d", self.id)
}

func mknode(ty Type, in ...Instruction) node {
    return node { ty: ty, in: in }
}

// ReplaceUses redirects every use of old onto rep, leaving old with an
// empty use list. old itself stays in its block until removed.
func ReplaceUses(old Instruction, rep Instruction) {
    uses := append([]*Use(nil), old.Uses()...)
    for _, u := range uses {
        u.User.SetInput(u.Index, rep)
    }
}

// IsRemoved reports whether an instruction has been unlinked from the
// graph.
func IsRemoved(p Instruction) bool {
    return p.Block() == nil
}

/** Values **/

// Parameter is a method argument, defined in the entry block.
type Parameter struct {
    node
    Index int
}

func MakeParameter(idx int, ty Type) *Parameter {
    return &Parameter { node: mknode(ty), Index: idx }
}

func (self *Parameter) String() string {
    return fmt.Sprintf("%s = param.%d : %s", self.vname(), self.Index, self.ty)
}

// IntConst is a 32-bit integer constant, cached per graph.
type IntConst struct {
    node
    V int32
}

func (self *IntConst) String() string {
    return fmt.Sprintf("%s = const %d : %s", self.vname(), self.V, self.ty)
}

// LongConst is a 64-bit integer constant, cached per graph.
type LongConst struct {
    node
    V int64
}

func (self *LongConst) String() string {
    return fmt.Sprintf("%s = const %d : %s", self.vname(), self.V, self.ty)
}

// FloatConst is a 32-bit floating point constant, cached per graph.
type FloatConst struct {
    node
    V float32
}

func (self *FloatConst) String() string {
    return fmt.Sprintf("%s = const %g : %s", self.vname(), self.V, self.ty)
}

// DoubleConst is a 64-bit floating point constant, cached per graph.
type DoubleConst struct {
    node
    V float64
}

func (self *DoubleConst) String() string {
    return fmt.Sprintf("%s = const %g : %s", self.vname(), self.V, self.ty)
}

// NullConst is the null reference constant, cached per graph.
type NullConst struct {
    node
}

func (self *NullConst) String() string {
    return fmt.Sprintf("%s = null", self.vname())
}

// IsZero reports whether p is a constant holding the zero value of its
// type.
func IsZero(p Instruction) bool {
    switch v := p.(type) {
        case *IntConst    : return v.V == 0
        case *LongConst   : return v.V == 0
        case *FloatConst  : return v.V == 0
        case *DoubleConst : return v.V == 0
        case *NullConst   : return true
        default           : return false
    }
}

// SameConst reports whether a and b are constants of the same type
// holding the same value. Identical instructions are trivially the same.
func SameConst(a Instruction, b Instruction) bool {
    if a == b {
        return true
    }
    switch x := a.(type) {
        case *IntConst    : y, ok := b.(*IntConst)    ; return ok && x.V == y.V
        case *LongConst   : y, ok := b.(*LongConst)   ; return ok && x.V == y.V
        case *FloatConst  : y, ok := b.(*FloatConst)  ; return ok && x.V == y.V
        case *DoubleConst : y, ok := b.(*DoubleConst) ; return ok && x.V == y.V
        case *NullConst   : _, ok := b.(*NullConst)   ; return ok
        default           : return false
    }
}

// Phi merges one value per predecessor, in predecessor list order.
type Phi struct {
    node
}

func MakePhi(ty Type, in ...Instruction) *Phi {
    return &Phi { node: mknode(ty, in...) }
}

func (self *Phi) String() string {
    args := make([]string, 0, len(self.in))
    for _, v := range self.in {
        args = append(args, v.ibase().vname())
    }
    return fmt.Sprintf("%s = phi %s : %s", self.vname(), strings.Join(args, ", "), self.ty)
}

// BinOp is the operator of a Binary instruction.
type BinOp uint8

const (
    OpAdd BinOp = iota
    OpSub
    OpMul
    OpAnd
    OpOr
    OpXor
    OpShl
    OpShr
)

var _BinNames = [...]string {
    OpAdd : "add",
    OpSub : "sub",
    OpMul : "mul",
    OpAnd : "and",
    OpOr  : "or",
    OpXor : "xor",
    OpShl : "shl",
    OpShr : "shr",
}

func (self BinOp) String() string {
    if int(self) < len(_BinNames) {
        return _BinNames[self]
    } else {
        panic("invalid BinOp")
    }
}

// Binary is a two-operand arithmetic or logical instruction.
type Binary struct {
    node
    Op BinOp
}

func MakeBinary(op BinOp, ty Type, x Instruction, y Instruction) *Binary {
    return &Binary { node: mknode(ty, x, y), Op: op }
}

func (self *Binary) LHS() Instruction { return self.in[0] }
func (self *Binary) RHS() Instruction { return self.in[1] }

func (self *Binary) String() string {
    return fmt.Sprintf(
        "%s = %s %s, %s : %s",
        self.vname(),
        self.Op,
        self.in[0].ibase().vname(),
        self.in[1].ibase().vname(),
        self.ty,
    )
}

// Invoke is a call into opaque code. It may read or write any reachable
// heap memory, let any reference argument escape, and throw.
type Invoke struct {
    node
    Method string
}

func MakeInvoke(method string, ret Type, args ...Instruction) *Invoke {
    return &Invoke { node: mknode(ret, args...), Method: method }
}

func (self *Invoke) String() string {
    args := make([]string, 0, len(self.in))
    for _, v := range self.in {
        args = append(args, v.ibase().vname())
    }
    return fmt.Sprintf("%s = call %s(%s) : %s", self.vname(), self.Method, strings.Join(args, ", "), self.ty)
}

// SuspendCheck is a safepoint where the runtime may suspend the thread
// and run garbage collection. It does not touch the heap.
type SuspendCheck struct {
    node
}

func MakeSuspendCheck() *SuspendCheck {
    return &SuspendCheck { node: mknode(Void) }
}

func (self *SuspendCheck) String() string {
    return "suspend_check"
}

/** Terminators **/

// Goto transfers control to the single successor.
type Goto struct {
    node
}

func MakeGoto() *Goto {
    return &Goto { node: mknode(Void) }
}

func (self *Goto) isTerminator() {}

func (self *Goto) String() string {
    if self.blk != nil && len(self.blk.Succ) == 1 {
        return fmt.Sprintf("goto b%d", self.blk.Succ[0].Id)
    } else {
        return "goto"
    }
}

// If branches on its condition: successor 0 on true, successor 1 on
// false.
type If struct {
    node
}

func MakeIf(cond Instruction) *If {
    return &If { node: mknode(Void, cond) }
}

func (self *If) isTerminator() {}

func (self *If) Cond() Instruction { return self.in[0] }

func (self *If) String() string {
    if self.blk != nil && len(self.blk.Succ) == 2 {
        return fmt.Sprintf(
            "if %s then b%d else b%d",
            self.in[0].ibase().vname(),
            self.blk.Succ[0].Id,
            self.blk.Succ[1].Id,
        )
    } else {
        return fmt.Sprintf("if %s", self.in[0].ibase().vname())
    }
}

// Return leaves the method, optionally with a value.
type Return struct {
    node
}

func MakeReturn(v Instruction) *Return {
    if v == nil {
        return &Return { node: mknode(Void) }
    } else {
        return &Return { node: mknode(Void, v) }
    }
}

func (self *Return) isTerminator() {}

func (self *Return) Value() Instruction {
    if len(self.in) == 0 {
        return nil
    } else {
        return self.in[0]
    }
}

func (self *Return) String() string {
    if len(self.in) == 0 {
        return "ret"
    } else {
        return fmt.Sprintf("ret %s", self.in[0].ibase().vname())
    }
}

// Exit closes the single exit block.
type Exit struct {
    node
}

func MakeExit() *Exit {
    return &Exit { node: mknode(Void) }
}

func (self *Exit) isTerminator() {}

func (self *Exit) String() string {
    return "exit"
}
