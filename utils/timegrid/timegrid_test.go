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

package timegrid

import (
	"errors"
	"testing"
)

func TestFloorCeil(t *testing.T) {
	tests := []struct {
		name      string
		ts        int64
		interval  int64
		wantFloor int64
		wantCeil  int64
	}{
		{"on grid", 60000, 60000, 60000, 60000},
		{"between points", 61000, 60000, 60000, 120000},
		{"just below point", 119999, 60000, 60000, 120000},
		{"just above point", 120001, 60000, 120000, 180000},
		{"zero", 0, 60000, 0, 0},
		{"one second grid", 1500, 1000, 1000, 2000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Floor(tt.ts, tt.interval); got != tt.wantFloor {
				t.Errorf("Floor(%d, %d) = %d, want %d", tt.ts, tt.interval, got, tt.wantFloor)
			}
			if got := Ceil(tt.ts, tt.interval); got != tt.wantCeil {
				t.Errorf("Ceil(%d, %d) = %d, want %d", tt.ts, tt.interval, got, tt.wantCeil)
			}
		})
	}
}

func TestFloorCeilIdempotent(t *testing.T) {
	// Aligning an already aligned timestamp must be a no-op.
	for _, interval := range []int64{1000, 5000, 60000, 86400000} {
		for _, ts := range []int64{0, interval, 17 * interval} {
			if got := Floor(ts, interval); got != ts {
				t.Errorf("Floor(%d, %d) = %d, want unchanged", ts, interval, got)
			}
			if got := Ceil(ts, interval); got != ts {
				t.Errorf("Ceil(%d, %d) = %d, want unchanged", ts, interval, got)
			}
		}
	}
}

func TestCreateGrid(t *testing.T) {
	grid, err := CreateGrid(60000, 300000, 60000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []int64{60000, 120000, 180000, 240000, 300000}
	if len(grid) != len(want) {
		t.Fatalf("grid length = %d, want %d", len(grid), len(want))
	}
	for i := range want {
		if grid[i] != want[i] {
			t.Errorf("grid[%d] = %d, want %d", i, grid[i], want[i])
		}
	}
}

func TestCreateGridSinglePoint(t *testing.T) {
	grid, err := CreateGrid(60000, 60000, 60000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(grid) != 1 || grid[0] != 60000 {
		t.Errorf("grid = %v, want [60000]", grid)
	}
}

func TestCreateGridShiftedBounds(t *testing.T) {
	// Bounds need not be multiples of the interval, only congruent.
	grid, err := CreateGrid(61000, 181000, 60000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []int64{61000, 121000, 181000}
	if len(grid) != len(want) {
		t.Fatalf("grid = %v, want %v", grid, want)
	}
	for i := range want {
		if grid[i] != want[i] {
			t.Fatalf("grid = %v, want %v", grid, want)
		}
	}
}

func TestCreateGridInvalid(t *testing.T) {
	tests := []struct {
		name  string
		start int64
		end   int64
	}{
		{"end before start", 120000, 60000},
		{"incongruent start", 61000, 120000},
		{"incongruent end", 60000, 121000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := CreateGrid(tt.start, tt.end, 60000); !errors.Is(err, ErrInvalidGrid) {
				t.Errorf("CreateGrid(%d, %d) error = %v, want ErrInvalidGrid", tt.start, tt.end, err)
			}
		})
	}
}
