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
    `sort`

    `gonum.org/v1/gonum/graph/simple`
    `gonum.org/v1/gonum/graph/topo`
)

// Loop is one loop of the loop forest. Header is the unique entry
// block for reducible loops, BackEdges the in-loop predecessors of the
// header, Parent the innermost enclosing loop. The header itself is
// part of the loop.
type Loop struct {
    Header    *BasicBlock
    Parent    *Loop
    BackEdges []*BasicBlock
    blocks    map[int]struct{}
}

// Contains reports whether b belongs to the loop.
func (self *Loop) Contains(b *BasicBlock) bool {
    _, ok := self.blocks[b.Id]
    return ok
}

// IsIn reports whether the loop equals other or nests anywhere inside
// it.
func (self *Loop) IsIn(other *Loop) bool {
    for p := self; p != nil; p = p.Parent {
        if p == other {
            return true
        }
    }
    return false
}

// buildLoops constructs the nested loop forest by repeated strongly
// connected component decomposition: every multi-block SCC (or block
// with a self edge) is a loop, and peeling its header exposes the
// loops nested inside. A loop whose SCC has no single dominating entry
// block is irreducible and flags the whole graph.
func buildLoops(cfg *Graph) {
    cfg.Loops = nil
    cfg.Irreducible = false

    /* reset stale annotations */
    for _, b := range cfg.Blocks {
        b.Loop = nil
    }

    /* peel from the full reachable set downward */
    world := make(map[int]*BasicBlock, len(cfg.Blocks))
    for _, b := range cfg.ReversePostOrder() {
        world[b.Id] = b
    }
    looppeel(cfg, world, nil)

    /* deterministic order for dumps and debugging */
    sort.Slice(cfg.Loops, func(i int, j int) bool {
        return cfg.Loops[i].Header.Id < cfg.Loops[j].Header.Id
    })
}

func looppeel(cfg *Graph, world map[int]*BasicBlock, parent *Loop) {
    inscc := make(map[int]bool)

    /* multi-block components, self edges excluded (the component
     * structure does not depend on them) */
    dg := simple.NewDirectedGraph()
    for _, b := range world {
        for _, s := range b.Succ {
            if s != b {
                if _, ok := world[s.Id]; ok {
                    dg.SetEdge(dg.NewEdge(simple.Node(b.Id), simple.Node(s.Id)))
                }
            }
        }
    }

    /* every non-trivial component is a loop */
    for _, scc := range topo.TarjanSCC(dg) {
        if len(scc) > 1 {
            body := make(map[int]struct{}, len(scc))
            for _, n := range scc {
                body[int(n.ID())] = struct{}{}
                inscc[int(n.ID())] = true
            }
            loopmake(cfg, world, body, parent)
        }
    }

    /* single blocks looping onto themselves */
    for _, b := range world {
        if !inscc[b.Id] && selfedge(b) {
            loopmake(cfg, world, map[int]struct{}{ b.Id: {} }, parent)
        }
    }
}

func selfedge(b *BasicBlock) bool {
    for _, s := range b.Succ {
        if s == b {
            return true
        }
    }
    return false
}

func loopmake(cfg *Graph, world map[int]*BasicBlock, body map[int]struct{}, parent *Loop) {
    var entries []*BasicBlock

    /* entry blocks, reached from outside the component */
    for id := range body {
        for _, p := range world[id].Pred {
            if _, ok := body[p.Id]; !ok {
                entries = append(entries, world[id])
                break
            }
        }
    }

    /* the header must be the unique entry and dominate the body; fall
     * back to the lowest-id candidate for irreducible components */
    header := loophead(cfg, world, body, entries)
    if header == nil {
        cfg.Irreducible = true
        header = lowestblock(world, body, entries)
    }

    /* construct the loop */
    lp := &Loop {
        Header : header,
        Parent : parent,
        blocks : body,
    }

    /* back edges come from in-loop predecessors of the header */
    for _, p := range header.Pred {
        if _, ok := body[p.Id]; ok {
            lp.BackEdges = append(lp.BackEdges, p)
        }
    }

    /* innermost annotation wins, recursion below overwrites */
    cfg.Loops = append(cfg.Loops, lp)
    for id := range body {
        world[id].Loop = lp
    }

    /* peel the header to expose nested loops */
    inner := make(map[int]*BasicBlock, len(body))
    for id := range body {
        if id != header.Id {
            inner[id] = world[id]
        }
    }
    if len(inner) != 0 {
        looppeel(cfg, inner, lp)
    }
}

func loophead(cfg *Graph, world map[int]*BasicBlock, body map[int]struct{}, entries []*BasicBlock) *BasicBlock {
    if len(entries) != 1 {
        return nil
    }
    for id := range body {
        if !cfg.Dominates(entries[0], world[id]) {
            return nil
        }
    }
    return entries[0]
}

func lowestblock(world map[int]*BasicBlock, body map[int]struct{}, entries []*BasicBlock) *BasicBlock {
    cand := entries

    /* components only reachable through themselves have no entries at
     * all, pick from the body instead */
    if len(cand) == 0 {
        for id := range body {
            cand = append(cand, world[id])
        }
    }

    head := cand[0]
    for _, e := range cand[1:] {
        if e.Id < head.Id {
            head = e
        }
    }
    return head
}
