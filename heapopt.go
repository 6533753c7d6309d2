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

// Package heapopt removes redundant heap loads and dead heap stores
// from method graphs in SSA form. Drivers build a graph with the hir
// package, then hand it to Optimize; the graph is rewritten in place.
package heapopt

import (
	"github.com/cloudwego/heapopt/hir"
	"github.com/cloudwego/heapopt/internal/opt"
	"github.com/cloudwego/heapopt/internal/opts"
)

// Optimize runs the optimization pipeline over one method graph. The
// graph is verified first and the dominator tree and loop forest are
// rebuilt before the passes run. A panic inside a pass aborts this
// method's optimization and surfaces as a *PassError; the graph may be
// partially rewritten at that point.
func Optimize(g *hir.Graph, options ...Option) error {
	o := opts.GetDefaultOptions()
	for _, fn := range options {
		fn(&o)
	}
	if err := g.Verify(); err != nil {
		return &VerifyError{Reason: err}
	}
	g.BuildDominatorTree()
	for _, p := range opt.PassesWith(o) {
		if err := runPass(p, g); err != nil {
			return err
		}
	}
	return nil
}

// Analyze collects the heap locations, the aliasing matrix and the
// per-reference escape summaries of a method without rewriting
// anything.
func Analyze(g *hir.Graph) (*opt.HeapLocationCollector, error) {
	if err := g.Verify(); err != nil {
		return nil, &VerifyError{Reason: err}
	}
	return opt.CollectHeapLocations(g), nil
}

func runPass(p opt.PassDescriptor, g *hir.Graph) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &PassError{Pass: p.Name, Cause: v}
		}
	}()
	p.Pass.Apply(g)
	return
}
