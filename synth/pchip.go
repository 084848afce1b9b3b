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

package synth

import (
	"fmt"
	"math"
	"sort"

	"go.corp.nvidia.com/monapps/models"
)

// pchip is a shape-preserving piecewise cubic Hermite interpolant with
// Fritsch-Carlson slopes (weighted harmonic mean of the secants, zero at
// local extrema). The interpolant never overshoots the data, which is what
// makes it safe for filling measurement gaps.
type pchip struct {
	xs, ys, slopes []float64
}

// newPCHIP builds the interpolant over at least two strictly increasing
// knots.
func newPCHIP(xs, ys []float64) (*pchip, error) {
	n := len(xs)
	if n < 2 || len(ys) != n {
		return nil, fmt.Errorf("%w: pchip needs at least two knots", models.ErrValidation)
	}

	h := make([]float64, n-1)
	delta := make([]float64, n-1)
	for i := 0; i < n-1; i++ {
		h[i] = xs[i+1] - xs[i]
		if h[i] <= 0 {
			return nil, fmt.Errorf("%w: pchip knots must increase", models.ErrValidation)
		}
		delta[i] = (ys[i+1] - ys[i]) / h[i]
	}

	d := make([]float64, n)
	if n == 2 {
		d[0], d[1] = delta[0], delta[0]
		return &pchip{xs: xs, ys: ys, slopes: d}, nil
	}

	for k := 1; k < n-1; k++ {
		if delta[k-1]*delta[k] <= 0 {
			continue // extremum or flat segment: zero slope
		}
		w1 := 2*h[k] + h[k-1]
		w2 := h[k] + 2*h[k-1]
		d[k] = (w1 + w2) / (w1/delta[k-1] + w2/delta[k])
	}
	d[0] = edgeSlope(h[0], h[1], delta[0], delta[1])
	d[n-1] = edgeSlope(h[n-2], h[n-3], delta[n-2], delta[n-3])

	return &pchip{xs: xs, ys: ys, slopes: d}, nil
}

// edgeSlope is the one-sided three-point endpoint estimate, limited so the
// boundary segment stays monotone.
func edgeSlope(h0, h1, d0, d1 float64) float64 {
	s := ((2*h0+h1)*d0 - h0*d1) / (h0 + h1)
	if sign(s) != sign(d0) {
		return 0
	}
	if sign(d0) != sign(d1) && math.Abs(s) > 3*math.Abs(d0) {
		return 3 * d0
	}
	return s
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

// at evaluates the interpolant. Arguments outside the knot range are clamped
// to the boundary segments.
func (p *pchip) at(x float64) float64 {
	n := len(p.xs)
	i := sort.SearchFloat64s(p.xs, x)
	if i > 0 {
		i--
	}
	if i > n-2 {
		i = n - 2
	}

	h := p.xs[i+1] - p.xs[i]
	t := (x - p.xs[i]) / h
	t2 := t * t
	t3 := t2 * t

	h00 := 2*t3 - 3*t2 + 1
	h10 := t3 - 2*t2 + t
	h01 := -2*t3 + 3*t2
	h11 := t3 - t2

	return p.ys[i]*h00 + h*p.slopes[i]*h10 + p.ys[i+1]*h01 + h*p.slopes[i+1]*h11
}
