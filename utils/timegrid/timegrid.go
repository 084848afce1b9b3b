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

// Package timegrid provides millisecond-timestamp alignment onto regular
// resampling grids. All timestamps are Unix epoch milliseconds.
package timegrid

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidGrid reports grid construction over an invalid range.
var ErrInvalidGrid = errors.New("invalid grid range")

// Floor aligns ts down to the nearest multiple of interval.
// A timestamp already on the grid is returned unchanged.
func Floor(ts, interval int64) int64 {
	q := ts / interval
	r := ts % interval
	if r != 0 && ts < 0 {
		q--
	}
	return q * interval
}

// Ceil aligns ts up to the nearest multiple of interval.
// A timestamp already on the grid is returned unchanged.
func Ceil(ts, interval int64) int64 {
	q := ts / interval
	r := ts % interval
	if r == 0 {
		return ts
	}
	if ts > 0 {
		q++
	}
	return q * interval
}

// CreateGrid returns every grid point from start to end inclusive, stepping
// by interval. The bounds must be congruent modulo the interval and end must
// not precede start.
func CreateGrid(start, end, interval int64) ([]int64, error) {
	if end < start {
		return nil, fmt.Errorf("%w: end %d before start %d", ErrInvalidGrid, end, start)
	}
	if (end-start)%interval != 0 {
		return nil, fmt.Errorf("%w: bounds %d..%d not congruent modulo %d", ErrInvalidGrid, start, end, interval)
	}
	grid := make([]int64, 0, (end-start)/interval+1)
	for ts := start; ts <= end; ts += interval {
		grid = append(grid, ts)
	}
	return grid, nil
}

// NowMs returns the current time as Unix epoch milliseconds.
func NowMs() int64 {
	return time.Now().UnixMilli()
}
