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

package opt

import (
    `github.com/cloudwego/heapopt/hir`
)

// NotFound marks a heap location query that matched nothing.
const NotFound = -1

// ReferenceInfo is the per-base-reference escape summary. A singleton
// is an allocation this method provably holds the only reference to; a
// removable singleton additionally never reaches the caller, so the
// allocation itself may be deleted once its stores are folded away.
type ReferenceInfo struct {
    ref       hir.Instruction
    pos       int
    singleton bool
    removable bool
}

func newReferenceInfo(ref hir.Instruction, pos int) *ReferenceInfo {
    ret := &ReferenceInfo { ref: ref, pos: pos }
    ret.singleton, ret.removable = calculateEscape(ref)
    return ret
}

// calculateEscape classifies a reference from its use list. Only fresh
// allocations can be singletons; passing the reference to a call,
// storing it into the heap or merging it through a phi publishes it,
// and wrapped uses are treated conservatively. Returning it keeps the
// fields foldable but pins the allocation.
func calculateEscape(ref hir.Instruction) (bool, bool) {
    returned := false
    switch ref.(type) {
        case *hir.NewInstance : break
        case *hir.NewArray    : break
        default               : return false, false
    }
    for _, u := range ref.Uses() {
        switch q := u.User.(type) {
            case *hir.NullCheck           : return false, false
            case *hir.BoundType           : return false, false
            case *hir.IntermediateAddress : return false, false
            case *hir.Phi                 : return false, false
            case *hir.Invoke              : return false, false
            case *hir.Return              : returned = true
            default: {
                if s, ok := q.(hir.HeapStore); ok && s.Value() == ref {
                    return false, false
                }
            }
        }
    }
    return true, !returned
}

func (self *ReferenceInfo) Reference() hir.Instruction {
    return self.ref
}

func (self *ReferenceInfo) IsSingleton() bool {
    return self.singleton
}

func (self *ReferenceInfo) IsSingletonAndRemovable() bool {
    return self.singleton && self.removable
}

func (self *ReferenceInfo) IsSingletonAndNonRemovable() bool {
    return self.singleton && !self.removable
}

// HeapLocation names one memory slot: a field of a base reference, or
// an element span of a base array. Field slots carry the byte offset
// and a nil index; array slots carry the index instruction and the
// span width in elements, 1 for scalar accesses.
type HeapLocation struct {
    ref    *ReferenceInfo
    ty     hir.Type
    offset int
    index  hir.Instruction
    span   int
}

func (self *HeapLocation) ReferenceInfo() *ReferenceInfo { return self.ref }
func (self *HeapLocation) Type() hir.Type                { return self.ty }
func (self *HeapLocation) Offset() int                   { return self.offset }
func (self *HeapLocation) Index() hir.Instruction        { return self.index }
func (self *HeapLocation) Span() int                     { return self.span }

func (self *HeapLocation) IsArray() bool {
    return self.index != nil
}

// HeapLocationCollector finds every heap location a method touches and
// precomputes which pairs may alias. It is a pure analysis: it never
// rejects input, only over-approximates.
type HeapLocationCollector struct {
    g         *hir.Graph
    refs      []*ReferenceInfo
    refmap    map[hir.Instruction]*ReferenceInfo
    locs      []*HeapLocation
    aliases   *bitmatrix
    hasStores bool
}

// CollectHeapLocations scans the whole graph once and builds the
// aliasing matrix.
func CollectHeapLocations(g *hir.Graph) *HeapLocationCollector {
    ret := &HeapLocationCollector {
        g      : g,
        refmap : make(map[hir.Instruction]*ReferenceInfo),
    }
    for _, b := range g.ReversePostOrder() {
        for _, p := range b.Ins {
            if v, ok := p.(hir.MemAccess); ok {
                ret.visit(v)
            }
        }
    }
    ret.BuildAliasingMatrix()
    return ret
}

func (self *HeapLocationCollector) visit(p hir.MemAccess) {
    if p.IsStore() {
        self.hasStores = true
    }
    switch v := p.(type) {
        case hir.FieldAccess : self.createFieldLocation(v.MemBase(), v.Field())
        case hir.ArrayAccess : self.createArrayLocation(v.MemBase(), v.Index(), v.AccessType(), v.VecLen())
        default              : panic("unreachable")
    }
}

func (self *HeapLocationCollector) getOrCreateReferenceInfo(ref hir.Instruction) *ReferenceInfo {
    ref = hir.HuntOriginalReference(ref)
    if r, ok := self.refmap[ref]; ok {
        return r
    }
    r := newReferenceInfo(ref, len(self.refs))
    self.refs = append(self.refs, r)
    self.refmap[ref] = r
    return r
}

func (self *HeapLocationCollector) createFieldLocation(obj hir.Instruction, f hir.Field) int {
    return self.getOrCreateLocation(self.getOrCreateReferenceInfo(obj), f.Type, f.Offset, nil, 1)
}

func (self *HeapLocationCollector) createArrayLocation(array hir.Instruction, index hir.Instruction, ty hir.Type, vlen int) int {
    return self.getOrCreateLocation(self.getOrCreateReferenceInfo(array), ty, 0, index, spanof(vlen))
}

func (self *HeapLocationCollector) getOrCreateLocation(ref *ReferenceInfo, ty hir.Type, offset int, index hir.Instruction, span int) int {
    if i := self.FindHeapLocationIndex(ref, ty, offset, index, span); i != NotFound {
        return i
    }
    self.locs = append(self.locs, &HeapLocation {
        ref    : ref,
        ty     : ty.ToSigned(),
        offset : offset,
        index  : index,
        span   : span,
    })
    return len(self.locs) - 1
}

func spanof(vlen int) int {
    if vlen == 0 {
        return 1
    }
    return vlen
}

// GetNumberOfHeapLocations returns how many distinct slots the scan
// found.
func (self *HeapLocationCollector) GetNumberOfHeapLocations() int {
    return len(self.locs)
}

// HasHeapStores reports whether the method writes the heap at all;
// without stores the eliminator has nothing to do beyond load
// forwarding from defaults.
func (self *HeapLocationCollector) HasHeapStores() bool {
    return self.hasStores
}

// GetHeapLocation returns the location registered under idx.
func (self *HeapLocationCollector) GetHeapLocation(idx int) *HeapLocation {
    return self.locs[idx]
}

// FindReferenceInfoOf returns the summary of a base reference, hunting
// through pass-through wrappers first, or nil when the reference never
// partakes in a heap access.
func (self *HeapLocationCollector) FindReferenceInfoOf(ref hir.Instruction) *ReferenceInfo {
    return self.refmap[hir.HuntOriginalReference(ref)]
}

// FindHeapLocationIndex looks up the location with the exact same
// identity: same reference summary, signed type, offset, index
// instruction and span. Distinct index instructions are distinct
// locations even when provably equal in value.
func (self *HeapLocationCollector) FindHeapLocationIndex(ref *ReferenceInfo, ty hir.Type, offset int, index hir.Instruction, span int) int {
    want := ty.ToSigned()
    for i, loc := range self.locs {
        if loc.ref == ref && loc.ty == want && loc.offset == offset && loc.index == index && loc.span == span {
            return i
        }
    }
    return NotFound
}

// GetFieldHeapLocation returns the location of a field slot.
func (self *HeapLocationCollector) GetFieldHeapLocation(obj hir.Instruction, f hir.Field) int {
    ref := self.refmap[hir.HuntOriginalReference(obj)]
    if ref == nil {
        return NotFound
    }
    return self.FindHeapLocationIndex(ref, f.Type, f.Offset, nil, 1)
}

// GetArrayHeapLocation returns the location of an array access.
func (self *HeapLocationCollector) GetArrayHeapLocation(p hir.ArrayAccess) int {
    ref := self.refmap[hir.HuntOriginalReference(p.MemBase())]
    if ref == nil {
        return NotFound
    }
    return self.FindHeapLocationIndex(ref, p.AccessType(), 0, p.Index(), spanof(p.VecLen()))
}

// GetAccessHeapLocation returns the location a load or store touches.
func (self *HeapLocationCollector) GetAccessHeapLocation(p hir.MemAccess) int {
    switch v := p.(type) {
        case hir.FieldAccess : return self.GetFieldHeapLocation(v.MemBase(), v.Field())
        case hir.ArrayAccess : return self.GetArrayHeapLocation(v)
        default              : panic("unreachable")
    }
}

// CanReferencesAlias reports whether two base references can name the
// same object: a singleton aliases nothing else, and two distinct
// allocation sites are always distinct objects.
func (self *HeapLocationCollector) CanReferencesAlias(a *ReferenceInfo, b *ReferenceInfo) bool {
    if a == b {
        return true
    }
    if a.IsSingleton() || b.IsSingleton() {
        return false
    }
    if isallocation(a.ref) && isallocation(b.ref) {
        return false
    }
    return true
}

func isallocation(ref hir.Instruction) bool {
    switch ref.(type) {
        case *hir.NewInstance : return true
        case *hir.NewArray    : return true
        default               : return false
    }
}

// BuildAliasingMatrix precomputes pairwise may-alias bits. Quadratic in
// the location count, run once after the scan.
func (self *HeapLocationCollector) BuildAliasingMatrix() {
    n := len(self.locs)
    self.aliases = newbitmatrix(n)
    for j := 1; j < n; j++ {
        for i := 0; i < j; i++ {
            if self.computeMayAlias(self.locs[i], self.locs[j]) {
                self.aliases.set(i, j)
            }
        }
    }
}

// MayAlias answers from the precomputed matrix; a location trivially
// aliases itself.
func (self *HeapLocationCollector) MayAlias(i int, j int) bool {
    if i == j {
        return true
    }
    return self.aliases.get(i, j)
}

func (self *HeapLocationCollector) computeMayAlias(a *HeapLocation, b *HeapLocation) bool {
    if a.offset != b.offset {
        return false
    }
    if a.IsArray() != b.IsArray() {
        return false
    }
    if !self.CanReferencesAlias(a.ref, b.ref) {
        return false
    }
    if a.IsArray() && b.IsArray() {
        return canArrayElementsAlias(a.index, a.span, b.index, b.span)
    }
    return true
}

/** Array index aliasing **/

const _Wrap = int64(1) << 32

// canArrayElementsAlias decides whether the element ranges
// [idx1, idx1+span1) and [idx2, idx2+span2) can overlap for some
// execution. Indexes are 32-bit values, so two affine expressions over
// the same variable may also meet after the offset difference wraps
// around the 32-bit space.
func canArrayElementsAlias(idx1 hir.Instruction, span1 int, idx2 hir.Instruction, span2 int) bool {
    c1, ok1 := constindex(idx1)
    c2, ok2 := constindex(idx2)

    /* constant ranges overlap plainly */
    if ok1 && ok2 {
        return maxint64(c1, c2) <= minint64(c1 + int64(span1) - 1, c2 + int64(span2) - 1)
    }

    /* decompose affine forms around one variable */
    v1, o1, a1 := affineindex(idx1)
    v2, o2, a2 := affineindex(idx2)

    /* opaque indexes alias anything on the same base */
    if !a1 || !a2 {
        return true
    }

    /* unrelated variables may always coincide */
    if v1 != v2 {
        return true
    }

    /* same variable: ranges meet iff the offset difference, possibly
     * off by one full 32-bit wrap, lands inside the combined span */
    d := o1 - o2
    for _, k := range [3]int64 { d, d - _Wrap, d + _Wrap } {
        if -int64(span1) < k && k < int64(span2) {
            return true
        }
    }
    return false
}

func constindex(idx hir.Instruction) (int64, bool) {
    if c, ok := idx.(*hir.IntConst); ok {
        return int64(c.V), true
    }
    return 0, false
}

// affineindex splits an index into variable plus signed constant
// offset. Only addition with a constant on either side and subtraction
// with a constant on the right are affine; everything else is opaque.
func affineindex(idx hir.Instruction) (hir.Instruction, int64, bool) {
    v, ok := idx.(*hir.Binary)
    if !ok {
        return idx, 0, true
    }
    switch v.Op {
        case hir.OpAdd: {
            if c, ok := v.RHS().(*hir.IntConst); ok {
                return v.LHS(), int64(c.V), true
            }
            if c, ok := v.LHS().(*hir.IntConst); ok {
                return v.RHS(), int64(c.V), true
            }
        }
        case hir.OpSub: {
            if c, ok := v.RHS().(*hir.IntConst); ok {
                return v.LHS(), -int64(c.V), true
            }
        }
    }
    return idx, 0, false
}

// loopVariantIndex reports whether the subscript of an array location
// takes a new value on each iteration of lp. Affine forms vary with
// their variable, opaque subscripts with the whole expression;
// anything defined inside the loop varies.
func loopVariantIndex(loc *HeapLocation, lp *hir.Loop) bool {
    if !loc.IsArray() {
        return false
    }
    v, _, _ := affineindex(loc.index)
    return v.Block() != nil && lp.Contains(v.Block())
}

// crossIterationAlias reports whether two locations that share a base
// can still name the same element on different iterations: affine
// subscripts over one loop-defined variable shift together, so the
// single-iteration distance between them is no proof of disjointness.
func crossIterationAlias(a *HeapLocation, b *HeapLocation) bool {
    if a.ref != b.ref || !a.IsArray() || !b.IsArray() {
        return false
    }
    v1, _, a1 := affineindex(a.index)
    v2, _, a2 := affineindex(b.index)
    if !a1 || !a2 || v1 != v2 {
        return false
    }
    return v1.Block() != nil && v1.Block().Loop != nil
}

func minint64(a int64, b int64) int64 {
    if a < b {
        return a
    }
    return b
}

func maxint64(a int64, b int64) int64 {
    if a > b {
        return a
    }
    return b
}

/** Triangular bit matrix **/

type bitmatrix struct {
    bits []uint64
}

func newbitmatrix(n int) *bitmatrix {
    return &bitmatrix { bits: make([]uint64, (n * (n - 1) / 2 + 63) >> 6) }
}

func (self *bitmatrix) pos(i int, j int) int {
    if i > j {
        i, j = j, i
    }
    return j * (j - 1) / 2 + i
}

func (self *bitmatrix) set(i int, j int) {
    p := self.pos(i, j)
    self.bits[p >> 6] |= 1 << (p & 63)
}

func (self *bitmatrix) get(i int, j int) bool {
    p := self.pos(i, j)
    return self.bits[p >> 6] & (1 << (p & 63)) != 0
}
