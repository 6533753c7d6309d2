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

package cpu

import (
    `github.com/klauspost/cpuid/v2`
)

var (
    HasAVX2  = cpuid.CPU.Has(cpuid.AVX2)
    HasASIMD = cpuid.CPU.Has(cpuid.ASIMD)
)

// HasSIMD reports whether the host can run the vector forms the IR can
// express; graphs default their SIMD capability from it.
var HasSIMD = HasAVX2 || HasASIMD
