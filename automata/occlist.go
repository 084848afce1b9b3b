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

package automata

import (
	"encoding/json"
	"fmt"
)

// OccCluster is one run of equal values in an occurrence history.
type OccCluster struct {
	Value int
	Count int
}

// OccClusterList is a run-length encoded value history, e.g.
// [[1,33],[2,4],[1,15]]: 33 ones, then 4 twos, then 15 ones. It keeps
// months of per-minute current-state history small enough to live in the
// application's persisted state.
type OccClusterList []OccCluster

// MarshalJSON keeps the persisted wire form as an array of [value, count]
// pairs.
func (l OccClusterList) MarshalJSON() ([]byte, error) {
	pairs := make([][2]int, len(l))
	for i, c := range l {
		pairs[i] = [2]int{c.Value, c.Count}
	}
	return json.Marshal(pairs)
}

func (l *OccClusterList) UnmarshalJSON(data []byte) error {
	var pairs [][2]int
	if err := json.Unmarshal(data, &pairs); err != nil {
		return fmt.Errorf("occurrence cluster list: %w", err)
	}
	out := make(OccClusterList, len(pairs))
	for i, p := range pairs {
		out[i] = OccCluster{Value: p[0], Count: p[1]}
	}
	*l = out
	return nil
}

// TotalOccurrences is the summed length of the history.
func (l OccClusterList) TotalOccurrences() int {
	total := 0
	for _, c := range l {
		total += c.Count
	}
	return total
}

// AppendOccurrence extends the history by one value, merging into the tail
// cluster when the value repeats.
func (l *OccClusterList) AppendOccurrence(value int) {
	n := len(*l)
	if n > 0 && (*l)[n-1].Value == value {
		(*l)[n-1].Count++
		return
	}
	*l = append(*l, OccCluster{Value: value, Count: 1})
}

// CountValue sums the occurrences of one value.
func (l OccClusterList) CountValue(value int) int {
	num := 0
	for _, c := range l {
		if c.Value == value {
			num += c.Count
		}
	}
	return num
}

// LastN returns the newest n occurrences, splitting the oldest included
// cluster when it straddles the boundary.
func (l OccClusterList) LastN(n int) OccClusterList {
	var reversed OccClusterList
	for i := len(l) - 1; i >= 0 && n > 0; i-- {
		if n >= l[i].Count {
			reversed = append(reversed, l[i])
			n -= l[i].Count
			continue
		}
		reversed = append(reversed, OccCluster{Value: l[i].Value, Count: n})
		n = 0
	}

	out := make(OccClusterList, 0, len(reversed))
	for i := len(reversed) - 1; i >= 0; i-- {
		out = append(out, reversed[i])
	}
	return out
}
