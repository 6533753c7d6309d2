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
    `testing`

    `github.com/stretchr/testify/require`
)

func storediamond() (*AdjacencyGraph, *Phi) {
    g := diamond()
    fd := Field { Offset: 12, Type: Int32 }
    obj := MakeParameter(0, Ref)
    cnd := MakeParameter(1, Bool)

    g.Get("entry").AddInstr(obj)
    g.Get("entry").AddInstr(cnd)
    g.Get("entry").SetTerm(MakeGoto())
    g.Get("if").SetTerm(MakeIf(cnd))

    g.Get("left").AddInstr(MakeFieldSet(obj, fd, g.IntConst(1)))
    g.Get("left").SetTerm(MakeGoto())
    g.Get("right").AddInstr(MakeFieldSet(obj, fd, g.IntConst(2)))
    g.Get("right").SetTerm(MakeGoto())

    phi := MakePhi(Int32, g.IntConst(1), g.IntConst(2))
    g.Get("join").AddPhi(phi)
    g.Get("join").SetTerm(MakeReturn(phi))
    g.Get("exit").SetTerm(MakeExit())
    return g, phi
}

func TestVerify_WellFormed(t *testing.T) {
    g, _ := storediamond()
    require.NoError(t, g.Verify())
}

func TestVerify_PhiShape(t *testing.T) {
    g, _ := storediamond()
    bad := MakePhi(Int32, g.IntConst(1))
    g.Get("join").AddPhi(bad)
    require.ErrorContains(t, g.Verify(), "inputs for")
}

func TestVerify_Unterminated(t *testing.T) {
    g := diamond()
    g.Get("entry").SetTerm(MakeGoto())
    require.ErrorContains(t, g.Verify(), "not terminated")
}

func TestVerify_ReturnPlacement(t *testing.T) {
    g, _ := storediamond()
    left := g.Get("left")
    term := left.Term
    left.Term = nil
    left.detach(term)
    left.SetTerm(MakeReturn(nil))
    require.ErrorContains(t, g.Verify(), "exit block")
}

func TestVerify_DefAfterUse(t *testing.T) {
    g, _ := storediamond()
    x := MakeBinary(OpAdd, Int32, g.IntConst(1), g.IntConst(2))
    y := MakeBinary(OpMul, Int32, x, g.IntConst(3))
    g.Get("join").InsertFront(y)
    g.Get("join").AddInstr(x)
    require.ErrorContains(t, g.Verify(), "defined after its use")
}

func TestVerify_NoDominance(t *testing.T) {
    g, _ := storediamond()

    /* value from one arm used in the join */
    v := MakeBinary(OpAdd, Int32, g.IntConst(1), g.IntConst(2))
    g.Get("left").AddInstr(v)
    g.Get("join").AddInstr(MakeBinary(OpMul, Int32, v, g.IntConst(3)))
    require.ErrorContains(t, g.Verify(), "does not dominate")
}

func TestVerify_DuplicateEdge(t *testing.T) {
    g := BuildAdjacencyGraph("entry", "exit", [][2]string {
        { "entry", "a"    },
        { "entry", "a"    },
        { "a"    , "exit" },
    })
    g.Get("entry").SetTerm(MakeIf(MakeParameter(0, Bool)))
    require.Error(t, g.Verify())
}
