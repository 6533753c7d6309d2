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
    `sync/atomic`
)

// Process-wide optimization counters. Updated atomically, many graphs
// may be optimized concurrently.
var (
    RunCount   uint64 = 0
    SkipCount  uint64 = 0
    LoadCount  uint64 = 0
    StoreCount uint64 = 0
    AllocCount uint64 = 0
    SunkCount  uint64 = 0
)

func countrun()   { atomic.AddUint64(&RunCount, 1) }
func countskip()  { atomic.AddUint64(&SkipCount, 1) }
func countload()  { atomic.AddUint64(&LoadCount, 1) }
func countstore() { atomic.AddUint64(&StoreCount, 1) }
func countalloc() { atomic.AddUint64(&AllocCount, 1) }
func countsunk()  { atomic.AddUint64(&SunkCount, 1) }
