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
	"slices"

	"go.corp.nvidia.com/monapps/models"
	"go.corp.nvidia.com/monapps/utils/timegrid"
)

// numPrevNativeReadings is how many already-persisted non-restored readings
// are pulled in front of the batch so the first cluster can continue the
// spline of the previous one.
const numPrevNativeReadings = 3

func sortedPointers(m readingMap) []*models.DfReading {
	pts := make([]*models.DfReading, 0, len(m))
	for _, dfr := range m {
		pts = append(pts, dfr)
	}
	slices.SortFunc(pts, func(a, b *models.DfReading) int {
		return int(a.Time - b.Time)
	})
	return pts
}

// restoreContinuousAvg fills the gaps of a resampled CONTINUOUS+AVG map with
// PCHIP-interpolated readings. Readings are grouped into clusters whose
// internal gaps do not exceed timeChange; a gap wider than that is a genuine
// outage and stays empty.
//
// The tail of the last cluster cannot be trusted yet: a cluster shorter than
// four readings is tagged not-to-use entirely and its gaps stay empty, a
// longer one keeps its final reading provisional and interpolates only up to
// the penultimate one.
func restoreContinuousAvg(
	m readingMap,
	df *models.Datafeed,
	timeChange, startRts int64,
	prevNative []models.DfReading,
) (readingMap, error) {
	resample := df.TimeResample

	pts := sortedPointers(m)
	for _, p := range pts {
		p.NotToUse = models.UseOK
	}
	if len(pts) == 0 {
		return m, nil
	}
	for i := len(prevNative) - 1; i >= 0; i-- {
		if pts[0].Time-prevNative[i].Time > timeChange {
			break
		}
		p := prevNative[i]
		pts = append([]*models.DfReading{&p}, pts...)
	}

	clusters := [][]*models.DfReading{{pts[0]}}
	for i := 1; i < len(pts); i++ {
		if pts[i].Time-pts[i-1].Time > timeChange {
			clusters = append(clusters, nil)
		}
		last := len(clusters) - 1
		clusters[last] = append(clusters[last], pts[i])
	}

	out := make(readingMap, len(m))
	for ts, dfr := range m {
		out[ts] = dfr
	}

	for ci, cl := range clusters {
		isLast := ci == len(clusters)-1
		// An unsettled short tail must not produce usable restored readings:
		// they would mask the not-to-use tags the batching logic keys on.
		if len(cl) >= 2 && (!isLast || len(cl) >= 4) {
			if err := interpolateCluster(out, cl, df, resample, startRts, isLast); err != nil {
				return nil, err
			}
		}
		if !isLast {
			continue
		}
		switch len(cl) {
		case 1, 2, 3:
			for _, p := range cl {
				p.NotToUse = models.SplineNotToUse
			}
		default:
			cl[len(cl)-1].NotToUse = models.SplineUnclosed
		}
	}
	return out, nil
}

func interpolateCluster(
	out readingMap,
	cl []*models.DfReading,
	df *models.Datafeed,
	resample, startRts int64,
	isLast bool,
) error {
	xs := make([]float64, len(cl))
	ys := make([]float64, len(cl))
	native := make(map[int64]struct{}, len(cl))
	for i, p := range cl {
		xs[i] = float64(p.Time)
		ys[i] = p.Value
		native[p.Time] = struct{}{}
	}

	sp, err := newPCHIP(xs, ys)
	if err != nil {
		return err
	}
	grid, err := timegrid.CreateGrid(cl[0].Time, cl[len(cl)-1].Time, resample)
	if err != nil {
		return err
	}

	var stopAt int64
	if isLast && len(cl) >= 4 {
		stopAt = cl[len(cl)-2].Time
	}
	for _, rts := range grid {
		if stopAt != 0 && rts >= stopAt {
			break
		}
		if _, ok := native[rts]; ok {
			continue
		}
		if rts <= startRts {
			continue
		}
		dfr := models.NewDfReading(df, rts, sp.at(float64(rts)), true)
		out[rts] = &dfr
	}
	return nil
}

// restoreTotalizer linearly interpolates the gaps of a resampled totalizer
// map. A totalizer only ever grows, so a straight line between two known
// counter values is the best available estimate. The final pair is left
// alone: its right end may still move.
func restoreTotalizer(
	m readingMap,
	df *models.Datafeed,
	timeChange, startRts int64,
	prevNative *models.DfReading,
) readingMap {
	resample := df.TimeResample

	pts := sortedPointers(m)
	if prevNative != nil {
		p := *prevNative
		pts = append([]*models.DfReading{&p}, pts...)
	}
	if len(pts) < 2 {
		return m
	}
	pts[len(pts)-1].NotToUse = models.SplineUnclosed

	out := make(readingMap, len(m))
	for ts, dfr := range m {
		out[ts] = dfr
	}

	for i := 1; i < len(pts); i++ {
		if i-1 == len(pts)-2 {
			break
		}
		prev, curr := pts[i-1], pts[i]
		gap := curr.Time - prev.Time
		if gap <= resample || gap > timeChange {
			continue
		}
		slope := (curr.Value - prev.Value) / float64(gap)
		for rts := prev.Time + resample; rts < curr.Time; rts += resample {
			if rts <= startRts {
				continue
			}
			if _, ok := out[rts]; ok {
				continue
			}
			dfr := models.NewDfReading(df, rts, prev.Value+slope*float64(rts-prev.Time), true)
			out[rts] = &dfr
		}
	}
	return out
}
