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

package heapopt

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cloudwego/heapopt/internal/opts"
)

// Option is the property setter function for opts.Options.
type Option func(*opts.Options)

// WithMaxHeapLocations sets the largest number of distinct heap
// locations a method may touch before load-store elimination leaves
// the method alone.
//
// Raising this limit lets the pass handle bigger methods at the cost
// of a quadratically larger aliasing matrix, and vice versa.
//
// Set this option to "0" disables this limit.
//
// The default value of this option is "32".
func WithMaxHeapLocations(n int) Option {
	if n < 0 {
		panic(fmt.Sprintf("heapopt: invalid heap location limit: %d", n))
	} else {
		return func(o *opts.Options) { o.MaxHeapLocations = n }
	}
}

// WithPartialEscape enables or disables sinking stores into the branch
// arm where their object escapes.
//
// The default value of this option is "true", unless the
// `HEAPOPT_NO_PARTIAL_LSE` environment variable is set.
func WithPartialEscape(on bool) Option {
	return func(o *opts.Options) { o.PartialEscape = on }
}

// WithDumpPassState makes the passes dump their internal state to
// standard output while running. Intended for debugging the passes
// themselves.
//
// The default value of this option is "false", unless the
// `HEAPOPT_DEBUG_PASSES` environment variable is set.
func WithDumpPassState(on bool) Option {
	return func(o *opts.Options) { o.DumpPassState = on }
}

// SetMaxHeapLocations sets the default heap location limit for all
// optimizations from now on.
//
// This value can also be configured with the `HEAPOPT_MAX_HEAP_LOCATIONS`
// environment variable.
//
// Returns the old opts.MaxHeapLocations value.
func SetMaxHeapLocations(n int) int {
	n, opts.MaxHeapLocations = opts.MaxHeapLocations, n
	return n
}

// OptionsFile is the on-disk form of the optimizer tunables. Absent
// fields keep their defaults.
type OptionsFile struct {
	MaxHeapLocations     int  `yaml:"max-heap-locations"`
	DisablePartialEscape bool `yaml:"disable-partial-escape"`
	DumpPassState        bool `yaml:"dump-pass-state"`
}

// LoadOptions reads a YAML tunables file and converts it into setter
// options for Optimize.
func LoadOptions(fn string) ([]Option, error) {
	var of OptionsFile
	buf, err := os.ReadFile(fn)
	if err != nil {
		return nil, fmt.Errorf("heapopt: cannot read options file: %w", err)
	}
	if err = yaml.Unmarshal(buf, &of); err != nil {
		return nil, fmt.Errorf("heapopt: cannot parse options file: %w", err)
	}
	var ret []Option
	if of.MaxHeapLocations != 0 {
		ret = append(ret, WithMaxHeapLocations(of.MaxHeapLocations))
	}
	if of.DisablePartialEscape {
		ret = append(ret, WithPartialEscape(false))
	}
	if of.DumpPassState {
		ret = append(ret, WithDumpPassState(true))
	}
	return ret, nil
}
