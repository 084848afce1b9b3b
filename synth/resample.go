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

// aggFunc collapses the readings of one grid bin into a single value. It is
// only ever called with a non-empty, time-ordered slice.
type aggFunc func([]models.DsReading) float64

func aggAvg(rs []models.DsReading) float64 {
	var sum float64
	for _, r := range rs {
		sum += r.Value
	}
	return sum / float64(len(rs))
}

func aggSum(rs []models.DsReading) float64 {
	var sum float64
	for _, r := range rs {
		sum += r.Value
	}
	return sum
}

func aggLast(rs []models.DsReading) float64 {
	return rs[len(rs)-1].Value
}

// readingMap is the working set of one synthesis batch, keyed by the
// grid-aligned reading time.
type readingMap map[int64]*models.DfReading

func (m readingMap) sortedTs() []int64 {
	tss := make([]int64, 0, len(m))
	for ts := range m {
		tss = append(tss, ts)
	}
	slices.Sort(tss)
	return tss
}

// resampleBins aggregates readings into grid bins. A reading at time t lands
// in the bin labeled ceil(t); the newest bin is tagged unclosed because more
// readings may still arrive for it.
func resampleBins(readings []models.DsReading, df *models.Datafeed, agg aggFunc) readingMap {
	resample := df.TimeResample
	sorted := slices.Clone(readings)
	slices.SortFunc(sorted, func(a, b models.DsReading) int {
		return int(a.Time - b.Time)
	})

	m := make(readingMap)
	var lastRts int64
	for i := 0; i < len(sorted); {
		rts := timegrid.Ceil(sorted[i].Time, resample)
		j := i
		for j < len(sorted) && sorted[j].Time <= rts {
			j++
		}
		dfr := models.NewDfReading(df, rts, agg(sorted[i:j]), false)
		m[rts] = &dfr
		if rts > lastRts {
			lastRts = rts
		}
		i = j
	}
	if lastRts != 0 {
		m[lastRts].NotToUse = models.Unclosed
	}
	return m
}

// binItem is one element of the merged reading/marker stream. A nil reading
// is a nodata marker.
type binItem struct {
	time    int64
	reading *models.DsReading
}

func mergeReadingsAndMarkers(readings []models.DsReading, markers []models.NoDataMarker) []binItem {
	items := make([]binItem, 0, len(readings)+len(markers))
	i, j := 0, 0
	for i < len(readings) || j < len(markers) {
		// On a tie the reading goes first so the marker closes the moment.
		if j >= len(markers) || (i < len(readings) && readings[i].Time <= markers[j].Time) {
			items = append(items, binItem{time: readings[i].Time, reading: &readings[i]})
			i++
			continue
		}
		items = append(items, binItem{time: markers[j].Time})
		j++
	}
	return items
}

// resampleAndAugment aggregates an RBE stream over the full grid
// (startRts, endRts], filling bins the device stayed silent in: a SUM feed
// gets a zero, a LAST feed repeats the previous value. Augmentation is
// suspended while a nodata period is open, i.e. after a marker that no later
// reading has closed yet.
//
// dfrAtStart, when present, is the already-synthesized reading at startRts;
// it anchors the first augmented bin and is removed from the result. Without
// an anchor, a SUM feed evaluated till now starts from a restored zero
// unless the stream entered the window inside a nodata period.
func resampleAndAugment(
	readings []models.DsReading,
	markers []models.NoDataMarker,
	df *models.Datafeed,
	startRts, endRts int64,
	ndPeriodOpen bool,
	dfrAtStart *models.DfReading,
	agg aggFunc,
	isSum bool,
) readingMap {
	resample := df.TimeResample
	items := mergeReadingsAndMarkers(readings, markers)

	m := make(readingMap)
	ndPeriod := ndPeriodOpen
	switch {
	case dfrAtStart != nil:
		seed := *dfrAtStart
		m[startRts] = &seed
		ndPeriod = false
	case isSum && df.AugPolicy == models.TillNow && !ndPeriodOpen:
		seed := models.NewDfReading(df, startRts, 0, true)
		m[startRts] = &seed
	}

	idx := 0
	var lastRts int64
	for rts := startRts + resample; rts <= endRts; rts += resample {
		var binReadings []models.DsReading
		lastIsMarker := false
		for idx < len(items) && items[idx].time <= rts {
			if items[idx].reading != nil {
				binReadings = append(binReadings, *items[idx].reading)
				lastIsMarker = false
			} else {
				lastIsMarker = true
			}
			idx++
		}

		switch {
		case len(binReadings) > 0:
			dfr := models.NewDfReading(df, rts, agg(binReadings), false)
			m[rts] = &dfr
			lastRts = rts
			ndPeriod = lastIsMarker
		case lastIsMarker:
			ndPeriod = true
		case !ndPeriod:
			prev, ok := m[rts-resample]
			if !ok {
				break
			}
			value := prev.Value
			if isSum {
				value = 0
			}
			dfr := models.NewDfReading(df, rts, value, true)
			m[rts] = &dfr
			lastRts = rts
		}
	}

	delete(m, startRts)
	if lastRts != 0 {
		m[lastRts].NotToUse = models.Unclosed
	}
	return m
}
