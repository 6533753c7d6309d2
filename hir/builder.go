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

// AdjacencyGraph is a Graph assembled from a named edge list. It keeps
// the name of every block around so fixtures and dumps can refer to
// blocks by name instead of by numeric id.
type AdjacencyGraph struct {
    *Graph
    names map[string]*BasicBlock
    tags  map[int]string
}

// BuildAdjacencyGraph creates a graph from named edges. The first
// mention of a name creates its block; edge insertion order defines
// the predecessor and successor order, which phi operands and branch
// targets rely on. Dominators and loops are computed before returning.
func BuildAdjacencyGraph(entry string, exit string, edges [][2]string) *AdjacencyGraph {
    ret := &AdjacencyGraph {
        Graph : NewGraph(),
        names : make(map[string]*BasicBlock),
        tags  : make(map[int]string),
    }

    /* entry must exist first so constants have a home */
    ret.Graph.Entry = ret.block(entry)
    ret.Graph.Exit = ret.block(exit)

    /* wire the edges in order */
    for _, e := range edges {
        ret.block(e[0]).AddSuccessor(ret.block(e[1]))
    }

    /* analysis results are part of the fixture */
    ret.BuildDominatorTree()
    return ret
}

func (self *AdjacencyGraph) block(name string) *BasicBlock {
    if p, ok := self.names[name]; ok {
        return p
    }
    p := self.NewBlock()
    self.names[name] = p
    self.tags[p.Id] = name
    return p
}

// Get returns the block created for name.
func (self *AdjacencyGraph) Get(name string) *BasicBlock {
    if p, ok := self.names[name]; ok {
        return p
    }
    panic(fmt.Sprintf("hir: no block named %q", name))
}

// Name returns the name a block was created under, or its numeric form
// for blocks added after construction.
func (self *AdjacencyGraph) Name(b *BasicBlock) string {
    if s, ok := self.tags[b.Id]; ok {
        return s
    }
    return b.String()
}
