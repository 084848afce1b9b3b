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
	"reflect"
	"testing"
)

func TestOccClusterListAppendMergesTail(t *testing.T) {
	var l OccClusterList
	for _, v := range []int{1, 1, 2, 2, 2, 1} {
		l.AppendOccurrence(v)
	}
	want := OccClusterList{{1, 2}, {2, 3}, {1, 1}}
	if !reflect.DeepEqual(l, want) {
		t.Fatalf("got %v, want %v", l, want)
	}
	if l.TotalOccurrences() != 6 {
		t.Fatalf("total = %d, want 6", l.TotalOccurrences())
	}
}

func TestOccClusterListCountValue(t *testing.T) {
	l := OccClusterList{{1, 33}, {2, 4}, {1, 15}}
	if n := l.CountValue(1); n != 48 {
		t.Fatalf("count of 1 = %d, want 48", n)
	}
	if n := l.CountValue(0); n != 0 {
		t.Fatalf("count of 0 = %d, want 0", n)
	}
}

func TestOccClusterListLastN(t *testing.T) {
	l := OccClusterList{{1, 5}, {2, 3}, {1, 2}}
	tests := []struct {
		name string
		n    int
		want OccClusterList
	}{
		{"zero", 0, OccClusterList{}},
		{"within tail cluster", 2, OccClusterList{{1, 2}}},
		{"splits straddling cluster", 4, OccClusterList{{2, 2}, {1, 2}}},
		{"exact boundary", 5, OccClusterList{{2, 3}, {1, 2}}},
		{"longer than history", 100, OccClusterList{{1, 5}, {2, 3}, {1, 2}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := l.LastN(tc.n)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("LastN(%d) = %v, want %v", tc.n, got, tc.want)
			}
		})
	}
}

func TestOccClusterListJSON(t *testing.T) {
	l := OccClusterList{{1, 33}, {2, 4}}
	data, err := json.Marshal(l)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != "[[1,33],[2,4]]" {
		t.Fatalf("wire form = %s", data)
	}

	var back OccClusterList
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(back, l) {
		t.Fatalf("round trip: got %v, want %v", back, l)
	}

	if err := json.Unmarshal([]byte(`{"no":"list"}`), &back); err == nil {
		t.Fatal("expected error for malformed history")
	}
}
