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

package opts

import (
	"os"
	"strconv"
)

const (
	_DefaultMaxHeapLocations = 32 // cutoff at 32 tracked heap locations per method
)

var (
	MaxHeapLocations = parseOrDefault("HEAPOPT_MAX_HEAP_LOCATIONS", _DefaultMaxHeapLocations, 4)
	DebugPasses      = os.Getenv("HEAPOPT_DEBUG_PASSES") != ""
	NoPartialEscape  = os.Getenv("HEAPOPT_NO_PARTIAL_LSE") != ""
)

func parseOrDefault(key string, def int, min int) int {
	if env := os.Getenv(key); env == "" {
		return def
	} else if val, err := strconv.ParseUint(env, 0, 64); err != nil {
		panic("heapopt: invalid value for " + key)
	} else if ret := int(val); ret <= min {
		panic("heapopt: value too small for " + key)
	} else {
		return ret
	}
}
