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
)

type Pass interface {
    Apply(*hir.Graph)
}

type PassDescriptor struct {
    Pass Pass
    Name string
}

// Passes returns the standard pipeline with the default options.
func Passes() []PassDescriptor {
    return PassesWith(opts.GetDefaultOptions())
}

// PassesWith returns the standard pipeline under explicit options. The
// pipeline requires a verified graph with dominator tree and loop
// forest built.
func PassesWith(o opts.Options) []PassDescriptor {
    return []PassDescriptor {
        { Name: "Load-Store Elimination", Pass: LoadStoreElimination { Options: o } },
    }
}
