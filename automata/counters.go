/*
SPDX-FileCopyrightText: Copyright (c) 2026 NVIDIA CORPORATION & AFFILIATES. All rights reserved.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.

SPDX-License-Identifier: Apache-2.0
*/

// Package automata holds the building blocks of application evaluation
// functions: PLC-style delay counters, run-length occurrence history and the
// finite automata deriving current state and status from it.
package automata

// OnDelayCounter debounces a boolean condition the way a PLC TON block
// does: the output turns on only after the condition held for preset
// consecutive ticks, and any break resets the count.
type OnDelayCounter struct {
	Counts int
	Out    bool

	preset int
}

// NewOnDelayCounter restores a counter from a persisted count. The output
// starts off regardless of the count; the first tick re-establishes it.
func NewOnDelayCounter(counts, preset int) *OnDelayCounter {
	if preset <= 0 {
		preset = 1
	}
	return &OnDelayCounter{Counts: counts, preset: preset}
}

func (c *OnDelayCounter) Tick(cond bool) {
	if !cond {
		c.Reset()
		return
	}
	c.Counts++
	if c.Counts >= c.preset {
		c.Counts = c.preset
		c.Out = true
	}
}

func (c *OnDelayCounter) Reset() {
	c.Counts = 0
	c.Out = false
}
