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

package debug

import (
	"sync/atomic"

	"github.com/cloudwego/heapopt/internal/opt"
)

// A Stats records statistics about the optimizer.
type Stats struct {
	Passes PassStats
	Elim   ElimStats
}

// A PassStats records statistics about pass scheduling.
type PassStats struct {
	Runs    int
	Skipped int
}

// A ElimStats records statistics about eliminated instructions.
type ElimStats struct {
	Loads  int
	Stores int
	Allocs int
	Sunk   int
}

// GetStats returns statistics of the optimizer.
func GetStats() Stats {
	return Stats{
		Passes: PassStats{
			Runs:    int(atomic.LoadUint64(&opt.RunCount)),
			Skipped: int(atomic.LoadUint64(&opt.SkipCount)),
		},
		Elim: ElimStats{
			Loads:  int(atomic.LoadUint64(&opt.LoadCount)),
			Stores: int(atomic.LoadUint64(&opt.StoreCount)),
			Allocs: int(atomic.LoadUint64(&opt.AllocCount)),
			Sunk:   int(atomic.LoadUint64(&opt.SunkCount)),
		},
	}
}
