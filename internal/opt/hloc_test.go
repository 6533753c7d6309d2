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
    `math`
    `testing`

    `github.com/cloudwego/heapopt/hir`
    `github.com/stretchr/testify/require`
)

func straightline() (*hir.AdjacencyGraph, *hir.BasicBlock) {
    g := hir.BuildAdjacencyGraph("entry", "exit", [][2]string {
        { "entry", "body" },
        { "body" , "exit" },
    })
    return g, g.Get("body")
}

func TestHeapLocationCollector_Fields(t *testing.T) {
    g, b := straightline()
    obj := hir.MakeParameter(0, hir.Ref)
    oth := hir.MakeParameter(1, hir.Ref)
    g.Get("entry").AddInstr(obj)
    g.Get("entry").AddInstr(oth)

    f8 := hir.Field { Offset: 8, Type: hir.Int32 }
    f12 := hir.Field { Offset: 12, Type: hir.Int32 }
    s8 := hir.MakeFieldSet(obj, f8, g.IntConst(1))
    g8 := hir.MakeFieldGet(obj, f8)
    s12 := hir.MakeFieldSet(obj, f12, g.IntConst(2))
    o8 := hir.MakeFieldSet(oth, f8, g.IntConst(3))
    b.AddInstr(s8)
    b.AddInstr(g8)
    b.AddInstr(s12)
    b.AddInstr(o8)

    hlc := CollectHeapLocations(g.Graph)
    require.True(t, hlc.HasHeapStores())
    require.Equal(t, 3, hlc.GetNumberOfHeapLocations())

    /* loads and stores of the same field share one location */
    l8 := hlc.GetFieldHeapLocation(obj, f8)
    require.NotEqual(t, NotFound, l8)
    require.Equal(t, l8, hlc.GetAccessHeapLocation(s8))
    require.Equal(t, l8, hlc.GetAccessHeapLocation(g8))
    require.Equal(t, 8, hlc.GetHeapLocation(l8).Offset())
    require.False(t, hlc.GetHeapLocation(l8).IsArray())

    /* distinct offsets never alias, distinct bases may */
    l12 := hlc.GetAccessHeapLocation(s12)
    lo8 := hlc.GetAccessHeapLocation(o8)
    require.True(t, hlc.MayAlias(l8, l8))
    require.False(t, hlc.MayAlias(l8, l12))
    require.True(t, hlc.MayAlias(l8, lo8))

    require.NotNil(t, hlc.FindReferenceInfoOf(obj))
    require.False(t, hlc.FindReferenceInfoOf(obj).IsSingleton())
    require.Equal(t, NotFound, hlc.GetFieldHeapLocation(obj, hir.Field { Offset: 999, Type: hir.Int32 }))
}

func TestHeapLocationCollector_ArrayIndexAliasing(t *testing.T) {
    g, b := straightline()
    arr := hir.MakeParameter(0, hir.Ref)
    i := hir.MakeParameter(1, hir.Int32)
    j := hir.MakeParameter(2, hir.Int32)
    g.Get("entry").AddInstr(arr)
    g.Get("entry").AddInstr(i)
    g.Get("entry").AddInstr(j)

    iadd1 := hir.MakeBinary(hir.OpAdd, hir.Int32, i, g.IntConst(1))
    iadd1b := hir.MakeBinary(hir.OpAdd, hir.Int32, g.IntConst(1), i)
    isub1 := hir.MakeBinary(hir.OpSub, hir.Int32, i, g.IntConst(1))
    imul := hir.MakeBinary(hir.OpMul, hir.Int32, i, g.IntConst(2))
    b.AddInstr(iadd1)
    b.AddInstr(iadd1b)
    b.AddInstr(isub1)
    b.AddInstr(imul)

    mkset := func(idx hir.Instruction) *hir.ArraySet {
        p := hir.MakeArraySet(arr, idx, g.IntConst(7), hir.Int32)
        b.AddInstr(p)
        return p
    }
    sc0 := mkset(g.IntConst(0))
    sc1 := mkset(g.IntConst(1))
    si := mkset(i)
    sa1 := mkset(iadd1)
    sa1b := mkset(iadd1b)
    ss1 := mkset(isub1)
    sm2 := mkset(imul)
    sj := mkset(j)

    hlc := CollectHeapLocations(g.Graph)
    at := func(p *hir.ArraySet) int {
        return hlc.GetAccessHeapLocation(p)
    }

    /* distinct constants are disjoint */
    require.False(t, hlc.MayAlias(at(sc0), at(sc1)))
    require.True(t, hlc.MayAlias(at(sc0), at(sc0)))

    /* same variable, distinct offsets are disjoint within one iteration */
    require.False(t, hlc.MayAlias(at(si), at(sa1)))
    require.False(t, hlc.MayAlias(at(sa1), at(ss1)))
    require.True(t, hlc.MayAlias(at(sa1), at(sa1b)))
    require.NotEqual(t, at(sa1), at(sa1b))

    /* unknown relations alias */
    require.True(t, hlc.MayAlias(at(si), at(sj)))
    require.True(t, hlc.MayAlias(at(si), at(sc0)))
    require.True(t, hlc.MayAlias(at(sm2), at(sc0)))
    require.True(t, hlc.MayAlias(at(sm2), at(si)))
}

func TestHeapLocationCollector_IndexWraparound(t *testing.T) {
    g, b := straightline()
    arr := hir.MakeParameter(0, hir.Ref)
    i := hir.MakeParameter(1, hir.Int32)
    g.Get("entry").AddInstr(arr)
    g.Get("entry").AddInstr(i)

    addMin := hir.MakeBinary(hir.OpAdd, hir.Int32, i, g.IntConst(math.MinInt32))
    subMin := hir.MakeBinary(hir.OpSub, hir.Int32, i, g.IntConst(math.MinInt32))
    addMax := hir.MakeBinary(hir.OpAdd, hir.Int32, i, g.IntConst(math.MaxInt32))
    b.AddInstr(addMin)
    b.AddInstr(subMin)
    b.AddInstr(addMax)

    s1 := hir.MakeArraySet(arr, addMin, g.IntConst(0), hir.Int32)
    s2 := hir.MakeArraySet(arr, subMin, g.IntConst(0), hir.Int32)
    s3 := hir.MakeArraySet(arr, addMax, g.IntConst(0), hir.Int32)
    rep := hir.MakeVecReplicate(g.IntConst(0), hir.Int32, 4)
    v1 := hir.MakeVecStore(arr, addMax, rep, hir.Int32, 4)
    v2 := hir.MakeVecStore(arr, subMin, rep, hir.Int32, 4)
    for _, p := range []hir.Instruction { s1, s2, s3, rep, v1, v2 } {
        b.AddInstr(p)
    }

    hlc := CollectHeapLocations(g.Graph)

    /* i+0x80000000 and i-0x80000000 are the same 32-bit value */
    require.True(t, hlc.MayAlias(hlc.GetAccessHeapLocation(s1), hlc.GetAccessHeapLocation(s2)))

    /* i+0x7fffffff and i-0x80000000 differ by one even after wrapping */
    require.False(t, hlc.MayAlias(hlc.GetAccessHeapLocation(s3), hlc.GetAccessHeapLocation(s2)))

    /* but their four-element spans do overlap */
    require.True(t, hlc.MayAlias(hlc.GetAccessHeapLocation(v1), hlc.GetAccessHeapLocation(v2)))
}

func TestHeapLocationCollector_VecSpans(t *testing.T) {
    g, b := straightline()
    arr := hir.MakeParameter(0, hir.Ref)
    i := hir.MakeParameter(1, hir.Int32)
    g.Get("entry").AddInstr(arr)
    g.Get("entry").AddInstr(i)

    iadd1 := hir.MakeBinary(hir.OpAdd, hir.Int32, i, g.IntConst(1))
    iadd4 := hir.MakeBinary(hir.OpAdd, hir.Int32, i, g.IntConst(4))
    b.AddInstr(iadd1)
    b.AddInstr(iadd4)

    rep := hir.MakeVecReplicate(g.IntConst(1), hir.Int32, 4)
    b.AddInstr(rep)
    sc1 := hir.MakeArraySet(arr, g.IntConst(1), g.IntConst(0), hir.Int32)
    sc4 := hir.MakeArraySet(arr, g.IntConst(4), g.IntConst(0), hir.Int32)
    sci := hir.MakeArraySet(arr, i, g.IntConst(0), hir.Int32)
    sc1i := hir.MakeArraySet(arr, iadd1, g.IntConst(0), hir.Int32)
    vc0 := hir.MakeVecStore(arr, g.IntConst(0), rep, hir.Int32, 4)
    vc1 := hir.MakeVecStore(arr, g.IntConst(1), rep, hir.Int32, 4)
    vc4 := hir.MakeVecStore(arr, g.IntConst(4), rep, hir.Int32, 4)
    vi := hir.MakeVecStore(arr, i, rep, hir.Int32, 4)
    vi1 := hir.MakeVecStore(arr, iadd1, rep, hir.Int32, 4)
    vi4 := hir.MakeVecStore(arr, iadd4, rep, hir.Int32, 4)
    for _, p := range []hir.Instruction { sc1, sc4, sci, sc1i, vc0, vc1, vc4, vi, vi1, vi4 } {
        b.AddInstr(p)
    }

    hlc := CollectHeapLocations(g.Graph)
    at := hlc.GetAccessHeapLocation

    /* scalar and vector accesses of one array slot are distinct
     * locations that overlap by range */
    require.NotEqual(t, at(sc1), at(vc1))
    require.Equal(t, 4, hlc.GetHeapLocation(at(vc1)).Span())
    require.True(t, hlc.MayAlias(at(sc1), at(vc0)))
    require.False(t, hlc.MayAlias(at(sc4), at(vc0)))
    require.True(t, hlc.MayAlias(at(vc1), at(vc4)))
    require.False(t, hlc.MayAlias(at(vc0), at(vc4)))

    /* variable spans follow the same range rule */
    require.False(t, hlc.MayAlias(at(vi), at(vi4)))
    require.True(t, hlc.MayAlias(at(vi), at(vi1)))
    require.True(t, hlc.MayAlias(at(vi), at(sc1i)))
    require.False(t, hlc.MayAlias(at(sci), at(vi1)))
    require.False(t, hlc.MayAlias(at(vi1), at(sci)))
}

func TestHeapLocationCollector_References(t *testing.T) {
    g, b := straightline()
    arr := hir.MakeParameter(0, hir.Ref)
    g.Get("entry").AddInstr(arr)
    f := hir.Field { Offset: 8, Type: hir.Int32 }

    /* only ever read and written: removable singleton */
    fresh := hir.MakeNewArray(hir.Int32, g.IntConst(8))
    b.AddInstr(fresh)
    b.AddInstr(hir.MakeArraySet(fresh, g.IntConst(0), g.IntConst(1), hir.Int32))

    /* returned: fields fold but the allocation must stay */
    ret := hir.MakeNewInstance("pkg.Box")
    b.AddInstr(ret)
    b.AddInstr(hir.MakeFieldSet(ret, f, g.IntConst(1)))

    /* handed to a call: escapes completely */
    leaked := hir.MakeNewInstance("pkg.Box")
    b.AddInstr(leaked)
    b.AddInstr(hir.MakeFieldGet(leaked, f))
    b.AddInstr(hir.MakeInvoke("pkg.sink", hir.Void, leaked))

    /* stored into another object: escapes */
    stored := hir.MakeNewInstance("pkg.Box")
    b.AddInstr(stored)
    b.AddInstr(hir.MakeFieldSet(stored, f, g.IntConst(1)))
    b.AddInstr(hir.MakeArraySet(arr, g.IntConst(0), stored, hir.Ref))

    /* wrapped accesses resolve to the original reference */
    checked := hir.MakeNewArray(hir.Int32, g.IntConst(8))
    b.AddInstr(checked)
    nc := hir.MakeNullCheck(checked)
    b.AddInstr(nc)
    direct := hir.MakeArraySet(checked, g.IntConst(3), g.IntConst(1), hir.Int32)
    viaNc := hir.MakeArrayGet(nc, g.IntConst(3), hir.Int32)
    b.AddInstr(direct)
    b.AddInstr(viaNc)

    b.SetTerm(hir.MakeReturn(ret))
    g.Exit.SetTerm(hir.MakeExit())

    hlc := CollectHeapLocations(g.Graph)
    require.True(t, hlc.FindReferenceInfoOf(fresh).IsSingletonAndRemovable())
    require.True(t, hlc.FindReferenceInfoOf(ret).IsSingletonAndNonRemovable())
    require.True(t, hlc.FindReferenceInfoOf(ret).IsSingleton())
    require.False(t, hlc.FindReferenceInfoOf(leaked).IsSingleton())
    require.False(t, hlc.FindReferenceInfoOf(stored).IsSingleton())
    require.False(t, hlc.FindReferenceInfoOf(checked).IsSingleton())
    require.False(t, hlc.FindReferenceInfoOf(arr).IsSingleton())
    require.Equal(t, fresh, hlc.FindReferenceInfoOf(fresh).Reference())

    /* the wrapper names the same location as the original */
    require.Equal(t, hlc.GetAccessHeapLocation(direct), hlc.GetAccessHeapLocation(viaNc))
    require.Equal(t, hlc.FindReferenceInfoOf(checked), hlc.FindReferenceInfoOf(nc))

    /* aliasing between base references */
    a := hlc.FindReferenceInfoOf(arr)
    require.True(t, hlc.CanReferencesAlias(a, a))
    require.False(t, hlc.CanReferencesAlias(hlc.FindReferenceInfoOf(fresh), a))
    require.False(t, hlc.CanReferencesAlias(hlc.FindReferenceInfoOf(leaked), hlc.FindReferenceInfoOf(stored)))
    require.True(t, hlc.CanReferencesAlias(hlc.FindReferenceInfoOf(leaked), a))
}

func TestHeapLocationCollector_TypeNormalization(t *testing.T) {
    g, b := straightline()
    arr := hir.MakeParameter(0, hir.Ref)
    i := hir.MakeParameter(1, hir.Int32)
    g.Get("entry").AddInstr(arr)
    g.Get("entry").AddInstr(i)

    set := hir.MakeArraySet(arr, i, g.IntConst(1), hir.Int16)
    get := hir.MakeArrayGet(arr, i, hir.Uint16)
    b.AddInstr(set)
    b.AddInstr(get)

    hlc := CollectHeapLocations(g.Graph)
    require.Equal(t, 1, hlc.GetNumberOfHeapLocations())
    require.Equal(t, hlc.GetAccessHeapLocation(set), hlc.GetAccessHeapLocation(get))
    require.Equal(t, hir.Int16, hlc.GetHeapLocation(hlc.GetAccessHeapLocation(get)).Type())
}

func TestHeapLocationCollector_AffineIndexForms(t *testing.T) {
    g, b := straightline()
    i := hir.MakeParameter(0, hir.Int32)
    g.Get("entry").AddInstr(i)

    iadd2 := hir.MakeBinary(hir.OpAdd, hir.Int32, i, g.IntConst(2))
    addl := hir.MakeBinary(hir.OpAdd, hir.Int32, g.IntConst(2), i)
    isub2 := hir.MakeBinary(hir.OpSub, hir.Int32, i, g.IntConst(2))
    subl := hir.MakeBinary(hir.OpSub, hir.Int32, g.IntConst(2), i)
    ixor := hir.MakeBinary(hir.OpXor, hir.Int32, i, g.IntConst(2))
    for _, p := range []hir.Instruction { iadd2, addl, isub2, subl, ixor } {
        b.AddInstr(p)
    }

    v, off, ok := affineindex(iadd2)
    require.True(t, ok)
    require.Equal(t, hir.Instruction(i), v)
    require.Equal(t, int64(2), off)

    v, off, ok = affineindex(addl)
    require.True(t, ok)
    require.Equal(t, hir.Instruction(i), v)
    require.Equal(t, int64(2), off)

    v, off, ok = affineindex(isub2)
    require.True(t, ok)
    require.Equal(t, hir.Instruction(i), v)
    require.Equal(t, int64(-2), off)

    /* constant-minus-variable is not affine in the variable */
    _, _, ok = affineindex(subl)
    require.False(t, ok)
    _, _, ok = affineindex(ixor)
    require.False(t, ok)

    /* plain values are affine with zero offset */
    v, off, ok = affineindex(i)
    require.True(t, ok)
    require.Equal(t, hir.Instruction(i), v)
    require.Equal(t, int64(0), off)
}
