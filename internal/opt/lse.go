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
    `github.com/cloudwego/heapopt/internal/opts`
    `github.com/davecgh/go-spew/spew`
    `github.com/oleiade/lane`
)

type _HKind uint8

const (
    _HvUnknown _HKind = iota
    _HvDefault
    _HvKnown
    _HvPhi
)

// _HVal is one heap value table slot. Unknown means the real heap must
// be consulted; Default means the slot belongs to a fresh allocation
// and still holds its zero value; Known carries the SSA value last
// stored or loaded; Phi defers a loop header merge to a placeholder.
type _HVal struct {
    kind _HKind
    ins  hir.Instruction
    ph   *_PhiPlaceholder
}

func hvDefault() _HVal {
    return _HVal { kind: _HvDefault }
}

func hvKnown(v hir.Instruction) _HVal {
    return _HVal { kind: _HvKnown, ins: v }
}

func hvPhi(ph *_PhiPlaceholder) _HVal {
    return _HVal { kind: _HvPhi, ph: ph }
}

func (self _HVal) equals(o _HVal) bool {
    return self.kind == o.kind && self.ins == o.ins && self.ph == o.ph
}

// _PhiPlaceholder stands for the still-unknown merge of a heap value
// at a loop header. It never materializes as a real phi: after the
// walk it either collapses back to the loop entry value, when every
// back edge carries that value or the placeholder itself around, or
// degrades to Unknown. Array slots subscripted by a value computed
// inside the loop always degrade: the same location names a different
// element on every iteration.
type _PhiPlaceholder struct {
    loc    int
    header *hir.BasicBlock
    entry  _HVal
}

type _LoadRec struct {
    load hir.Instruction
    ph   *_PhiPlaceholder
}

// LoadStoreElimination removes heap loads whose value is already known
// and stores that cannot be observed, tracking one heap value table
// per basic block. Conservative throughout: anything it cannot prove
// stays in the graph.
type LoadStoreElimination struct {
    Options opts.Options
}

func CreateLoadStoreElimination() LoadStoreElimination {
    return LoadStoreElimination { Options: opts.GetDefaultOptions() }
}

func (self LoadStoreElimination) Apply(g *hir.Graph) {
    countrun()
    if g.Irreducible {
        countskip()
        return
    }

    /* nothing to eliminate without stores */
    hlc := CollectHeapLocations(g)
    if !hlc.HasHeapStores() {
        return
    }

    /* very large methods are not worth the quadratic matrix */
    if !self.Options.CanAnalyze(hlc.GetNumberOfHeapLocations()) {
        countskip()
        return
    }

    lse := &_LseContext {
        g       : g,
        opts    : self.Options,
        hlc     : hlc,
        nloc    : hlc.GetNumberOfHeapLocations(),
        shd     : make([]hir.HeapStore, hlc.GetNumberOfHeapLocations()),
        loads   : lane.NewQueue(),
        values  : make(map[int][]_HVal, len(g.Blocks)),
        phval   : make(map[*_PhiPlaceholder]_HVal),
        phbusy  : make(map[*_PhiPlaceholder]bool),
        subst   : make(map[hir.Instruction]hir.Instruction),
        pending : make(map[hir.HeapStore]bool),
        pendloc : make(map[hir.HeapStore]int),
    }

    /* store sinking changes block membership, summarize effects after */
    if self.Options.PartialEscape {
        lse.sinkPartialEscapeStores()
    }
    lse.se = ComputeEffects(g)
    lse.run()
}

type _LseContext struct {
    g          *hir.Graph
    se         *Effects
    opts       opts.Options
    hlc        *HeapLocationCollector
    nloc       int
    shd        []hir.HeapStore
    values     map[int][]_HVal
    phval      map[*_PhiPlaceholder]_HVal
    phbusy     map[*_PhiPlaceholder]bool
    subst      map[hir.Instruction]hir.Instruction
    loads      *lane.Queue
    allocs     []hir.Instruction
    pending    map[hir.HeapStore]bool
    pendloc    map[hir.HeapStore]int
    pendorder  []hir.HeapStore
    deadloads  []hir.Instruction
    deadstores []hir.HeapStore
}

func (self *_LseContext) run() {
    for _, b := range self.g.ReversePostOrder() {
        self.visitBlock(b)
    }
    self.resolveLoads()

    /* optionally dump the final per-block tables */
    if self.opts.DumpPassState {
        spew.Config.SortKeys = true
        spew.Config.DisablePointerMethods = true
        spew.Dump(self.values)
    }
    self.removeInstructions()
}

/** Heap value table construction **/

func (self *_LseContext) visitBlock(b *hir.BasicBlock) {
    vals := self.mergeEntryState(b)
    for i := range self.shd {
        self.shd[i] = nil
    }
    for _, p := range b.Ins {
        switch v := p.(type) {
            case *hir.NewInstance : self.visitAlloc(v, vals)
            case *hir.NewArray    : self.visitAlloc(v, vals)
            case *hir.Invoke      : self.visitInvoke(vals)
            case *hir.ArrayGet    : self.visitLoad(v, vals)
            case *hir.VecLoad     : self.visitLoad(v, vals)
            case *hir.ArraySet    : self.visitStore(v, vals)
            case *hir.VecStore    : self.visitStore(v, vals)

            case *hir.FieldGet: {
                if v.F.Volatile {
                    self.visitVolatile(vals)
                } else {
                    self.visitLoad(v, vals)
                }
            }

            case *hir.FieldSet: {
                if v.F.Volatile {
                    self.visitVolatile(vals)
                } else {
                    self.visitStore(v, vals)
                }
            }
        }
    }
    self.values[b.Id] = vals
}

func (self *_LseContext) mergeEntryState(b *hir.BasicBlock) []_HVal {
    vals := make([]_HVal, self.nloc)

    /* the entry starts from a fully unknown heap */
    if len(b.Pred) == 0 {
        return vals
    }

    /* loop headers merge the entry edges, then degrade whatever the
     * loop body may overwrite */
    if b.Loop != nil && b.Loop.Header == b {
        return self.loopHeaderState(b)
    }

    /* plain merge: keep a value iff every predecessor agrees on it */
    copy(vals, self.values[b.Pred[0].Id])
    for _, p := range b.Pred[1:] {
        pv := self.values[p.Id]
        for i := range vals {
            vals[i] = mergeVal(vals[i], pv[i])
        }
    }
    self.resolveExited(b, vals)
    return vals
}

// mergeVal joins two heap values at a control merge. A fresh slot and
// an explicit zero store describe the same memory, every other
// disagreement degrades to Unknown.
func mergeVal(a _HVal, b _HVal) _HVal {
    if a.equals(b) {
        return a
    }
    if a.kind == _HvDefault && b.kind == _HvKnown && hir.IsZero(b.ins) {
        return a
    }
    if b.kind == _HvDefault && a.kind == _HvKnown && hir.IsZero(a.ins) {
        return b
    }
    return _HVal{}
}

// resolveExited collapses placeholders of loops the walk has already
// left behind. Back edges with no table yet keep theirs deferred, the
// loads seeing them resolve after the walk instead.
func (self *_LseContext) resolveExited(b *hir.BasicBlock, vals []_HVal) {
    for i, hv := range vals {
        if hv.kind != _HvPhi || hv.ph.header.Loop.Contains(b) {
            continue
        }
        if rv, ok := self.resolvePlaceholder(hv.ph); ok {
            vals[i] = rv
        }
    }
}

func (self *_LseContext) loopHeaderState(b *hir.BasicBlock) []_HVal {
    lp := b.Loop
    first := true
    entry := make([]_HVal, self.nloc)

    /* merge the out-of-loop predecessors; back edges are deferred to
     * placeholder resolution */
    for _, p := range b.Pred {
        if lp.Contains(p) {
            continue
        }
        pv := self.values[p.Id]
        if first {
            first = false
            copy(entry, pv)
            continue
        }
        for i := range entry {
            entry[i] = mergeVal(entry[i], pv[i])
        }
    }
    self.resolveExited(b, entry)

    /* locations the loop body cannot overwrite keep their pre-loop
     * value across every iteration, the rest go behind a placeholder
     * until the back edges are known */
    eff := self.se.LoopEffects(lp)
    vals := make([]_HVal, self.nloc)
    for i := range vals {
        ev := entry[i]
        if ev.kind == _HvUnknown {
            continue
        }
        loc := self.hlc.GetHeapLocation(i)
        if !eff.DoesAnyWrite() || !locReadEffect(loc).MayDependOn(eff) {
            vals[i] = ev
            continue
        }
        vals[i] = hvPhi(&_PhiPlaceholder { loc: i, header: b, entry: ev })
    }
    return vals
}

func locReadEffect(loc *HeapLocation) SideEffects {
    if loc.IsArray() {
        return ArrayReadOfType(loc.Type())
    }
    return FieldReadOfType(loc.Type())
}

/** Per-instruction rules **/

func (self *_LseContext) visitAlloc(p hir.Instruction, vals []_HVal) {
    ri := self.hlc.FindReferenceInfoOf(p)
    if ri == nil {
        return
    }
    if ri.IsSingletonAndRemovable() {
        self.allocs = append(self.allocs, p)
    }

    /* a fresh object holds zero in every slot */
    for i := range vals {
        if self.hlc.GetHeapLocation(i).ReferenceInfo() == ri {
            vals[i] = hvDefault()
        }
    }
}

func (self *_LseContext) visitInvoke(vals []_HVal) {
    for i := range vals {
        if !self.hlc.GetHeapLocation(i).ReferenceInfo().IsSingleton() {
            vals[i] = _HVal{}
        }
    }
}

func (self *_LseContext) visitVolatile(vals []_HVal) {
    for i := range vals {
        vals[i] = _HVal{}
    }
}

func (self *_LseContext) visitLoad(p hir.MemAccess, vals []_HVal) {
    idx := self.hlc.GetAccessHeapLocation(p)
    switch hv := vals[idx]; hv.kind {
        case _HvKnown: {
            self.removeLoad(p, hv.ins)
        }

        /* fresh slots fold to zero, but only scalar loads: the vector
         * default cannot be materialized, so a retained vector load
         * becomes the known value instead */
        case _HvDefault: {
            if isvec(p) {
                vals[idx] = hvKnown(p)
            } else {
                self.removeLoad(p, self.g.ZeroOf(p.Type()))
            }
        }

        case _HvPhi: {
            self.loads.Enqueue(_LoadRec { load: p, ph: hv.ph })
            self.clearShadows(idx)
            vals[idx] = hvKnown(p)
        }

        case _HvUnknown: {
            self.keepStoresFor(idx)
            self.clearShadows(idx)
            vals[idx] = hvKnown(p)
        }
    }
}

func (self *_LseContext) visitStore(p hir.HeapStore, vals []_HVal) {
    idx := self.hlc.GetAccessHeapLocation(p)
    val := self.findSubstitute(p.Value())

    /* writing the value the slot already holds is a no-op */
    hv := vals[idx]
    if hv.kind == _HvKnown && (hv.ins == val || hir.SameConst(hv.ins, val)) {
        self.deadstores = append(self.deadstores, p)
        return
    }
    if hv.kind == _HvDefault && hir.IsZero(val) {
        self.deadstores = append(self.deadstores, p)
        return
    }

    /* an earlier store to the very same slot dies right here: nothing
     * between the two observed the location */
    if prior := self.shd[idx]; prior != nil {
        self.deadstores = append(self.deadstores, prior)
        self.pending[prior] = false
    }

    /* the write lands on every location it may alias */
    for i := range vals {
        if i != idx && self.hlc.MayAlias(idx, i) {
            vals[i] = _HVal{}
        }
    }
    vals[idx] = hvKnown(val)

    /* singleton stores shadow within the block; stores into removable
     * singletons further stay candidates for removal until some
     * retained load observes the location */
    ri := self.hlc.GetHeapLocation(idx).ReferenceInfo()
    if ri.IsSingleton() {
        self.shd[idx] = p
    }
    if ri.IsSingletonAndRemovable() {
        self.pending[p] = true
        self.pendloc[p] = idx
        self.pendorder = append(self.pendorder, p)
    }
}

func (self *_LseContext) removeLoad(p hir.Instruction, sub hir.Instruction) {
    self.subst[p] = sub
    self.deadloads = append(self.deadloads, p)
}

// keepStoresFor pins every pending store the observation of idx may
// reach. Within one block the alias matrix is exact, but a location
// can also be revisited on a later iteration under a shifted
// subscript, so same-base stores behind a loop-defined index variable
// count as reachable no matter what the matrix proved.
func (self *_LseContext) keepStoresFor(idx int) {
    loc := self.hlc.GetHeapLocation(idx)
    for st, live := range self.pending {
        if !live {
            continue
        }
        at := self.pendloc[st]
        if self.hlc.MayAlias(at, idx) || crossIterationAlias(self.hlc.GetHeapLocation(at), loc) {
            self.pending[st] = false
        }
    }
}

// clearShadows forgets block-local stores a retained load right here
// may observe.
func (self *_LseContext) clearShadows(idx int) {
    for i, st := range self.shd {
        if st != nil && self.hlc.MayAlias(i, idx) {
            self.shd[i] = nil
        }
    }
}

func (self *_LseContext) findSubstitute(v hir.Instruction) hir.Instruction {
    for {
        s, ok := self.subst[v]
        if !ok {
            return v
        }
        v = s
    }
}

/** Placeholder resolution **/

// resolvePlaceholder collapses a placeholder to the loop entry value
// iff every back edge carries that value or the placeholder itself
// back to the header; any other back-edge value degrades the slot to
// Unknown, as does a subscript computed inside the loop. Entry values
// that are themselves placeholders of enclosing loops resolve outward.
// Reports failure while some back edge still has no table.
func (self *_LseContext) resolvePlaceholder(ph *_PhiPlaceholder) (_HVal, bool) {
    if v, ok := self.phval[ph]; ok {
        return v, true
    }
    if self.phbusy[ph] {
        return _HVal{}, true
    }
    for _, be := range ph.header.Loop.BackEdges {
        if self.values[be.Id] == nil {
            return _HVal{}, false
        }
    }

    /* a loop-variant subscript proves nothing about the element the
     * location will name next time around */
    ret := ph.entry
    if loopVariantIndex(self.hlc.GetHeapLocation(ph.loc), ph.header.Loop) {
        ret = _HVal{}
    }

    self.phbusy[ph] = true
    for _, be := range ph.header.Loop.BackEdges {
        if ret.kind == _HvUnknown {
            break
        }
        bv := self.values[be.Id][ph.loc]
        if bv.kind == _HvPhi && bv.ph == ph {
            continue
        }
        ret = mergeVal(ret, bv)
    }
    if ret.kind == _HvPhi {
        var ok bool
        if ret, ok = self.resolvePlaceholder(ret.ph); !ok {
            delete(self.phbusy, ph)
            return _HVal{}, false
        }
    }

    delete(self.phbusy, ph)
    self.phval[ph] = ret
    return ret, true
}

func (self *_LseContext) resolveLoads() {
    for !self.loads.Empty() {
        r := self.loads.Dequeue().(_LoadRec)
        hv, _ := self.resolvePlaceholder(r.ph)
        switch {
            case hv.kind == _HvKnown: {
                self.removeLoad(r.load, hv.ins)
            }

            case hv.kind == _HvDefault && !isvec(r.load): {
                self.removeLoad(r.load, self.g.ZeroOf(r.load.Type()))
            }

            default: {
                /* the load survives and observes its location */
                self.keepStoresFor(r.ph.loc)
            }
        }
    }
}

/** Partial escape store sinking **/

// sinkPartialEscapeStores moves a store ahead of a two-way branch into
// the single arm that lets its object escape, so the store only
// executes when the escape does. Restricted to plain diamonds with one
// escaping call, a globally unique store per location, and no load
// anywhere that could observe the slot; everything else is retained
// as-is.
func (self *_LseContext) sinkPartialEscapeStores() {
    for _, b := range self.g.ReversePostOrder() {
        for _, p := range b.Ins {
            if isallocation(p) {
                self.trySinkStores(p)
            }
        }
    }
}

func (self *_LseContext) trySinkStores(ref hir.Instruction) {
    ri := self.hlc.FindReferenceInfoOf(ref)
    if ri == nil || ri.IsSingleton() {
        return
    }

    /* the reference must escape through exactly one call and otherwise
     * only ever serve as a heap access base */
    var call *hir.Invoke
    var stores []hir.HeapStore
    for _, u := range ref.Uses() {
        switch q := u.User.(type) {
            case *hir.Invoke: {
                if call != nil {
                    return
                }
                call = q
            }
            default: {
                v, ok := q.(hir.MemAccess)
                if !ok || hir.HuntOriginalReference(v.MemBase()) != ref {
                    return
                }
                if st, ok := v.(hir.HeapStore); ok {
                    if st.Value() == ref {
                        return
                    }
                    stores = append(stores, st)
                }
            }
        }
    }
    if call == nil {
        return
    }

    /* the call arm must sit in a simple two-way diamond */
    arm := call.Block()
    if len(arm.Pred) != 1 || len(arm.Succ) != 1 {
        return
    }
    branch := arm.Pred[0]
    if _, ok := branch.Term.(*hir.If); !ok {
        return
    }
    join := arm.Succ[0]
    other := branch.Succ[0]
    if other == arm {
        other = branch.Succ[1]
    }
    if other != join {
        if len(other.Pred) != 1 || len(other.Succ) != 1 || other.Succ[0] != join {
            return
        }
    }

    for _, st := range stores {
        self.trySinkOneStore(st, branch, arm)
    }
}

func (self *_LseContext) trySinkOneStore(st hir.HeapStore, branch *hir.BasicBlock, arm *hir.BasicBlock) {
    blk := st.Block()
    if blk == arm || !self.g.Dominates(blk, branch) {
        return
    }
    if blk.Loop != branch.Loop || blk.Loop != arm.Loop {
        return
    }

    /* any load that may observe the slot, or a second store to it,
     * forces retention in place */
    idx := self.hlc.GetAccessHeapLocation(st)
    for _, b := range self.g.ReversePostOrder() {
        for _, p := range b.Ins {
            v, ok := p.(hir.MemAccess)
            if !ok || p == hir.Instruction(st) {
                continue
            }
            at := self.hlc.GetAccessHeapLocation(v)
            if !v.IsStore() && self.hlc.MayAlias(at, idx) {
                return
            }
            if v.IsStore() && at == idx {
                return
            }
        }
    }

    /* move it into the escaping arm */
    blk.Remove(st)
    arm.InsertFront(st)
    countsunk()
}

/** Graph rewriting **/

func (self *_LseContext) removeInstructions() {
    for _, st := range self.deadstores {
        st.Block().Remove(st)
        countstore()
    }
    for _, st := range self.pendorder {
        if self.pending[st] {
            st.Block().Remove(st)
            countstore()
        }
    }
    for _, ld := range self.deadloads {
        sub := self.findSubstitute(ld)
        hir.ReplaceUses(ld, sub)
        ld.Block().Remove(ld)
        countload()
    }
    for _, p := range self.allocs {
        if len(p.Uses()) == 0 {
            p.Block().Remove(p)
            countalloc()
        }
    }
}

func isvec(p hir.Instruction) bool {
    _, ok := p.(hir.VecOp)
    return ok
}
