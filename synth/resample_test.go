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
	"testing"

	"go.corp.nvidia.com/monapps/models"
)

const res = int64(60000)

func testDatafeed(agg models.DataAggType, vt models.VariableType) *models.Datafeed {
	return &models.Datafeed{
		ID:           7,
		Name:         "test feed",
		DatastreamID: 3,
		TimeResample: res,
		DataType:     &models.DataType{AggType: agg, VarType: vt},
	}
}

func dsReadings(pairs ...float64) []models.DsReading {
	out := make([]models.DsReading, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, models.DsReading{DatastreamID: 3, Time: int64(pairs[i]), Value: pairs[i+1]})
	}
	return out
}

func markersAt(tss ...int64) []models.NoDataMarker {
	out := make([]models.NoDataMarker, 0, len(tss))
	for _, ts := range tss {
		out = append(out, models.NoDataMarker{DatastreamID: 3, Time: ts})
	}
	return out
}

func TestResampleBinsAvg(t *testing.T) {
	df := testDatafeed(models.AggAvg, models.VarContinuous)
	readings := dsReadings(
		10000, 10,
		50000, 20, // same bin as the first: ceil -> 60000
		70000, 7, // bin 120000
	)

	m := resampleBins(readings, df, aggAvg)
	if len(m) != 2 {
		t.Fatalf("Bin count = %d, want 2", len(m))
	}
	if m[60000].Value != 15 || m[60000].NotToUse != models.UseOK {
		t.Errorf("Bin 60000 = %+v, want mean 15 untagged", m[60000])
	}
	if m[120000].Value != 7 || m[120000].NotToUse != models.Unclosed {
		t.Errorf("Bin 120000 = %+v, want 7 tagged unclosed", m[120000])
	}
	if m[60000].Restored || m[120000].Restored {
		t.Error("Aggregated readings must not be marked restored")
	}
}

func TestResampleBinsOnGridReadingStaysInItsBin(t *testing.T) {
	df := testDatafeed(models.AggSum, models.VarContinuous)
	readings := dsReadings(
		60000, 1, // exactly on the grid: bin 60000
		60001, 2, // first moment of the next bin
	)

	m := resampleBins(readings, df, aggSum)
	if m[60000] == nil || m[60000].Value != 1 {
		t.Errorf("Bin 60000 = %+v, want 1", m[60000])
	}
	if m[120000] == nil || m[120000].Value != 2 {
		t.Errorf("Bin 120000 = %+v, want 2", m[120000])
	}
}

func TestResampleBinsLastRounds(t *testing.T) {
	df := testDatafeed(models.AggLast, models.VarDiscrete)
	m := resampleBins(dsReadings(10000, 1.6, 20000, 2.4), df, aggLast)

	if got := m[60000]; got == nil || got.Value != 2 {
		t.Errorf("Bin 60000 = %+v, want last value 2.4 rounded to 2", got)
	}
}

func TestResampleAndAugmentLastRepeatsValue(t *testing.T) {
	df := testDatafeed(models.AggLast, models.VarDiscrete)
	df.IsAugOn = true
	df.AugPolicy = models.TillNow

	// One change at 30000, then silence, then a nodata marker at 150000.
	m := resampleAndAugment(
		dsReadings(30000, 5), markersAt(150000), df,
		0, 300000, false, nil, aggLast, false)

	wantTss := []int64{60000, 120000}
	if got := m.sortedTs(); !slices.Equal(got, wantTss) {
		t.Fatalf("Bins = %v, want %v (augmentation stops at the marker)", got, wantTss)
	}
	if m[60000].Value != 5 || m[60000].Restored {
		t.Errorf("Bin 60000 = %+v, want native 5", m[60000])
	}
	if m[120000].Value != 5 || !m[120000].Restored {
		t.Errorf("Bin 120000 = %+v, want restored repeat of 5", m[120000])
	}
	if m[120000].NotToUse != models.Unclosed {
		t.Errorf("Newest bin must be tagged unclosed, got %v", m[120000].NotToUse)
	}
}

func TestResampleAndAugmentSumFillsZeros(t *testing.T) {
	df := testDatafeed(models.AggSum, models.VarDiscrete)
	df.IsAugOn = true
	df.AugPolicy = models.TillNow

	// No anchor and no open nodata period: a SUM till-now feed starts from a
	// restored zero seed, so the empty leading bins fill with zeros.
	m := resampleAndAugment(
		dsReadings(150000, 3), nil, df,
		0, 240000, false, nil, aggSum, true)

	wantTss := []int64{60000, 120000, 180000, 240000}
	if got := m.sortedTs(); !slices.Equal(got, wantTss) {
		t.Fatalf("Bins = %v, want %v", got, wantTss)
	}
	for _, ts := range []int64{60000, 120000, 240000} {
		if m[ts].Value != 0 || !m[ts].Restored {
			t.Errorf("Bin %d = %+v, want restored zero", ts, m[ts])
		}
	}
	if m[180000].Value != 3 || m[180000].Restored {
		t.Errorf("Bin 180000 = %+v, want native 3", m[180000])
	}
	if m[240000].NotToUse != models.Unclosed {
		t.Errorf("Newest bin must be tagged unclosed, got %v", m[240000].NotToUse)
	}
}

func TestResampleAndAugmentOpenNdPeriodBlocksLeadingBins(t *testing.T) {
	df := testDatafeed(models.AggSum, models.VarDiscrete)
	df.IsAugOn = true
	df.AugPolicy = models.TillNow

	m := resampleAndAugment(
		dsReadings(150000, 3), nil, df,
		0, 240000, true, nil, aggSum, true)

	// The open period suppresses the zero seed; bins start at the reading.
	wantTss := []int64{180000, 240000}
	if got := m.sortedTs(); !slices.Equal(got, wantTss) {
		t.Fatalf("Bins = %v, want %v", got, wantTss)
	}
}

func TestResampleAndAugmentAnchorContinuesSeries(t *testing.T) {
	df := testDatafeed(models.AggLast, models.VarDiscrete)
	df.IsAugOn = true
	df.AugPolicy = models.TillLastDfReading

	anchor := models.DfReading{DatafeedID: 7, Time: 60000, Value: 9}
	m := resampleAndAugment(nil, nil, df,
		60000, 180000, true, &anchor, aggLast, false)

	// The anchor closes the nodata period and is itself removed.
	wantTss := []int64{120000, 180000}
	if got := m.sortedTs(); !slices.Equal(got, wantTss) {
		t.Fatalf("Bins = %v, want %v", got, wantTss)
	}
	for _, ts := range wantTss {
		if m[ts].Value != 9 || !m[ts].Restored {
			t.Errorf("Bin %d = %+v, want restored repeat of 9", ts, m[ts])
		}
	}
}

func TestResampleAndAugmentMarkerThenReadingInOneBin(t *testing.T) {
	df := testDatafeed(models.AggLast, models.VarDiscrete)
	df.IsAugOn = true
	df.AugPolicy = models.TillNow

	// The reading arrives after the marker inside the same bin, so the bin
	// produces a value and the nodata period closes again.
	m := resampleAndAugment(
		dsReadings(50000, 4), markersAt(20000), df,
		0, 120000, false, nil, aggLast, false)

	wantTss := []int64{60000, 120000}
	if got := m.sortedTs(); !slices.Equal(got, wantTss) {
		t.Fatalf("Bins = %v, want %v", got, wantTss)
	}
	if m[60000].Value != 4 || m[60000].Restored {
		t.Errorf("Bin 60000 = %+v, want native 4", m[60000])
	}
}

func TestResampleAndAugmentReadingThenMarkerOpensPeriod(t *testing.T) {
	df := testDatafeed(models.AggLast, models.VarDiscrete)
	df.IsAugOn = true
	df.AugPolicy = models.TillNow

	// Marker after the reading in the same bin: the bin still gets its
	// value, but nothing is augmented past it.
	m := resampleAndAugment(
		dsReadings(20000, 4), markersAt(50000), df,
		0, 180000, false, nil, aggLast, false)

	wantTss := []int64{60000}
	if got := m.sortedTs(); !slices.Equal(got, wantTss) {
		t.Fatalf("Bins = %v, want %v", got, wantTss)
	}
}
