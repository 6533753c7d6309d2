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

// Field identifies an object field slot: byte offset within the object,
// slot type, and whether accesses are volatile.
type Field struct {
    Offset   int
    Type     Type
    Volatile bool
}

// MemAccess is the capability interface shared by every heap access
// instruction: scalar field and array accesses and vector loads and
// stores. The alias analysis and the eliminator only ever need this
// surface plus FieldAccess / ArrayAccess below.
type MemAccess interface {
    Instruction
    MemBase() Instruction
    IsStore() bool
    AccessType() Type
}

// HeapStore is a MemAccess that writes.
type HeapStore interface {
    MemAccess
    Value() Instruction
}

// FieldAccess is a scalar access to an object field.
type FieldAccess interface {
    MemAccess
    Field() Field
}

// ArrayAccess is an access to one or more array elements. VecLen is 0
// for scalar accesses and the element count for vector ones.
type ArrayAccess interface {
    MemAccess
    Index() Instruction
    VecLen() int
}

// VecOp marks instructions producing or consuming whole vector values.
type VecOp interface {
    Instruction
    VecLen() int
    isVector()
}

/** Allocations **/

// NewInstance allocates a fresh object.
type NewInstance struct {
    node
    Class string
}

func MakeNewInstance(class string) *NewInstance {
    return &NewInstance { node: mknode(Ref), Class: class }
}

func (self *NewInstance) String() string {
    return fmt.Sprintf("%s = new %s", self.vname(), self.Class)
}

// NewArray allocates a fresh array of Elem typed elements; input 0 is
// the length.
type NewArray struct {
    node
    Elem Type
}

func MakeNewArray(elem Type, length Instruction) *NewArray {
    return &NewArray { node: mknode(Ref, length), Elem: elem }
}

func (self *NewArray) Length() Instruction { return self.in[0] }

func (self *NewArray) String() string {
    return fmt.Sprintf("%s = newarray %s[%s]", self.vname(), self.Elem, self.in[0].ibase().vname())
}

// ArrayLength reads the length of an array.
type ArrayLength struct {
    node
}

func MakeArrayLength(array Instruction) *ArrayLength {
    return &ArrayLength { node: mknode(Int32, array) }
}

func (self *ArrayLength) String() string {
    return fmt.Sprintf("%s = arraylength %s", self.vname(), self.in[0].ibase().vname())
}

/** Reference pass-throughs **/

// NullCheck throws if its input is null, else forwards the reference
// unchanged.
type NullCheck struct {
    node
}

func MakeNullCheck(ref Instruction) *NullCheck {
    return &NullCheck { node: mknode(Ref, ref) }
}

func (self *NullCheck) String() string {
    return fmt.Sprintf("%s = nullcheck %s", self.vname(), self.in[0].ibase().vname())
}

// BoundType narrows the static type of a reference without changing it.
type BoundType struct {
    node
}

func MakeBoundType(ref Instruction) *BoundType {
    return &BoundType { node: mknode(Ref, ref) }
}

func (self *BoundType) String() string {
    return fmt.Sprintf("%s = boundtype %s", self.vname(), self.in[0].ibase().vname())
}

// IntermediateAddress folds a constant data offset into a reference for
// addressing; the underlying object stays the same.
type IntermediateAddress struct {
    node
}

func MakeIntermediateAddress(ref Instruction, off Instruction) *IntermediateAddress {
    return &IntermediateAddress { node: mknode(Ref, ref, off) }
}

func (self *IntermediateAddress) String() string {
    return fmt.Sprintf("%s = lea %s + %s", self.vname(), self.in[0].ibase().vname(), self.in[1].ibase().vname())
}

// HuntOriginalReference walks reference pass-through wrappers down to
// the reference they forward, so that differently wrapped accesses to
// one object collapse onto one base.
func HuntOriginalReference(ref Instruction) Instruction {
    for {
        switch p := ref.(type) {
            case *NullCheck           : ref = p.in[0]
            case *BoundType           : ref = p.in[0]
            case *IntermediateAddress : ref = p.in[0]
            default                   : return ref
        }
    }
}

/** Scalar field accesses **/

// FieldGet loads an object field; input 0 is the object.
type FieldGet struct {
    node
    F Field
}

func MakeFieldGet(obj Instruction, f Field) *FieldGet {
    return &FieldGet { node: mknode(f.Type, obj), F: f }
}

func (self *FieldGet) MemBase() Instruction { return self.in[0] }
func (self *FieldGet) IsStore() bool        { return false }
func (self *FieldGet) AccessType() Type     { return self.F.Type }
func (self *FieldGet) Field() Field         { return self.F }

func (self *FieldGet) String() string {
    return fmt.Sprintf("%s = iget %s.%d : %s", self.vname(), self.in[0].ibase().vname(), self.F.Offset, self.ty)
}

// FieldSet stores into an object field; input 0 is the object, input 1
// the value.
type FieldSet struct {
    node
    F Field
}

func MakeFieldSet(obj Instruction, f Field, v Instruction) *FieldSet {
    return &FieldSet { node: mknode(Void, obj, v), F: f }
}

func (self *FieldSet) MemBase() Instruction { return self.in[0] }
func (self *FieldSet) IsStore() bool        { return true }
func (self *FieldSet) AccessType() Type     { return self.F.Type }
func (self *FieldSet) Field() Field         { return self.F }
func (self *FieldSet) Value() Instruction   { return self.in[1] }

func (self *FieldSet) String() string {
    return fmt.Sprintf("iset %s.%d, %s", self.in[0].ibase().vname(), self.F.Offset, self.in[1].ibase().vname())
}

/** Scalar array accesses **/

// ArrayGet loads one array element; input 0 is the array, input 1 the
// index.
type ArrayGet struct {
    node
}

func MakeArrayGet(array Instruction, index Instruction, ty Type) *ArrayGet {
    return &ArrayGet { node: mknode(ty, array, index) }
}

func (self *ArrayGet) MemBase() Instruction { return self.in[0] }
func (self *ArrayGet) IsStore() bool        { return false }
func (self *ArrayGet) AccessType() Type     { return self.ty }
func (self *ArrayGet) Index() Instruction   { return self.in[1] }
func (self *ArrayGet) VecLen() int          { return 0 }

func (self *ArrayGet) String() string {
    return fmt.Sprintf("%s = aget %s[%s] : %s", self.vname(), self.in[0].ibase().vname(), self.in[1].ibase().vname(), self.ty)
}

// ArraySet stores one array element; inputs are array, index, value.
type ArraySet struct {
    node
    Elem Type
}

func MakeArraySet(array Instruction, index Instruction, v Instruction, elem Type) *ArraySet {
    return &ArraySet { node: mknode(Void, array, index, v), Elem: elem }
}

func (self *ArraySet) MemBase() Instruction { return self.in[0] }
func (self *ArraySet) IsStore() bool        { return true }
func (self *ArraySet) AccessType() Type     { return self.Elem }
func (self *ArraySet) Index() Instruction   { return self.in[1] }
func (self *ArraySet) VecLen() int          { return 0 }
func (self *ArraySet) Value() Instruction   { return self.in[2] }

func (self *ArraySet) String() string {
    return fmt.Sprintf("aset %s[%s], %s", self.in[0].ibase().vname(), self.in[1].ibase().vname(), self.in[2].ibase().vname())
}

/** Vector operations **/

// VecReplicate broadcasts a scalar into a Len wide vector value.
type VecReplicate struct {
    node
    Len int
}

func MakeVecReplicate(scalar Instruction, elem Type, length int) *VecReplicate {
    return &VecReplicate { node: mknode(elem, scalar), Len: length }
}

func (self *VecReplicate) VecLen() int { return self.Len }
func (self *VecReplicate) isVector()   {}

func (self *VecReplicate) String() string {
    return fmt.Sprintf("%s = vdup.%d %s : %s", self.vname(), self.Len, self.in[0].ibase().vname(), self.ty)
}

// VecLoad loads Len consecutive elements starting at the index; inputs
// are array and index. Its type is the element type.
type VecLoad struct {
    node
    Len int
}

func MakeVecLoad(array Instruction, index Instruction, elem Type, length int) *VecLoad {
    return &VecLoad { node: mknode(elem, array, index), Len: length }
}

func (self *VecLoad) MemBase() Instruction { return self.in[0] }
func (self *VecLoad) IsStore() bool        { return false }
func (self *VecLoad) AccessType() Type     { return self.ty }
func (self *VecLoad) Index() Instruction   { return self.in[1] }
func (self *VecLoad) VecLen() int          { return self.Len }
func (self *VecLoad) isVector()            {}

func (self *VecLoad) String() string {
    return fmt.Sprintf("%s = vload.%d %s[%s] : %s", self.vname(), self.Len, self.in[0].ibase().vname(), self.in[1].ibase().vname(), self.ty)
}

// VecStore stores a Len wide vector value at the index; inputs are
// array, index, value.
type VecStore struct {
    node
    Len  int
    Elem Type
}

func MakeVecStore(array Instruction, index Instruction, v Instruction, elem Type, length int) *VecStore {
    return &VecStore { node: mknode(Void, array, index, v), Len: length, Elem: elem }
}

func (self *VecStore) MemBase() Instruction { return self.in[0] }
func (self *VecStore) IsStore() bool        { return true }
func (self *VecStore) AccessType() Type     { return self.Elem }
func (self *VecStore) Index() Instruction   { return self.in[1] }
func (self *VecStore) VecLen() int          { return self.Len }
func (self *VecStore) Value() Instruction   { return self.in[2] }
func (self *VecStore) isVector()            {}

func (self *VecStore) String() string {
    return fmt.Sprintf("vstore.%d %s[%s], %s", self.Len, self.in[0].ibase().vname(), self.in[1].ibase().vname(), self.in[2].ibase().vname())
}
