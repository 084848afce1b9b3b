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

package rawdata

import (
	"context"
	"slices"

	"go.corp.nvidia.com/monapps/models"
	"go.corp.nvidia.com/monapps/store"
)

// ClassifiedReadings is the outcome of running one batch of raw values
// through the classification pipeline. Only Used readings feed the
// synthesizer; the other classes are kept for diagnostics.
type ClassifiedReadings struct {
	Used    []models.DsReading
	Unused  []models.DsReading
	Invalid []models.DsReading
	NonRoc  []models.DsReading
}

// ClassifyReadings runs the three classification stages over a batch of raw
// (ts, value) pairs:
//
//  1. time window: usable iff ts_to_start_with < ts < now;
//  2. plausibility: usable iff min_plausible <= value <= max_plausible;
//  3. rate-of-change clamp, CONTINUOUS+AVG datastreams only.
//
// The ROC stage keeps the reading but clamps its value to the reachable
// limit, recording the original in NonRoc. The base point is the last
// persisted reading before the batch, so the clamp is stable across
// messages.
func ClassifyReadings(
	ctx context.Context,
	q store.Querier,
	ds *models.Datastream,
	pairs map[int64]float64,
	now int64,
) (ClassifiedReadings, error) {
	var out ClassifiedReadings

	for ts, val := range pairs {
		if ts > ds.TsToStartWith && ts < now {
			out.Used = append(out.Used, models.NewDsReading(ds, ts, val))
		} else {
			out.Unused = append(out.Unused, models.NewDsReading(ds, ts, val))
		}
	}

	valid := out.Used[:0]
	for _, r := range out.Used {
		if r.Value <= ds.MaxPlausibleValue && r.Value >= ds.MinPlausibleValue {
			valid = append(valid, r)
		} else {
			out.Invalid = append(out.Invalid, r)
		}
	}
	out.Used = valid

	if ds.DataType.AggType == models.AggAvg && ds.DataType.VarType == models.VarContinuous {
		if err := rocFilter(ctx, q, ds, &out); err != nil {
			return ClassifiedReadings{}, err
		}
	}
	return out, nil
}

func rocFilter(ctx context.Context, q store.Querier, ds *models.Datastream, out *ClassifiedReadings) error {
	if len(out.Used) == 0 {
		return nil
	}
	slices.SortFunc(out.Used, func(a, b models.DsReading) int {
		switch {
		case a.Time < b.Time:
			return -1
		case a.Time > b.Time:
			return 1
		}
		return 0
	})

	base, err := store.LastDsReadingBefore(ctx, q, ds.ID, out.Used[0].Time)
	if err != nil {
		return err
	}
	prevVal, prevTs := out.Used[0].Value, out.Used[0].Time
	if base != nil {
		prevVal, prevTs = base.Value, base.Time
	}

	for i := range out.Used {
		r := &out.Used[i]
		sign := 1.0
		if r.Value-prevVal < 0 {
			sign = -1.0
		}
		limit := prevVal + sign*ds.MaxRateOfChange*float64(r.Time-prevTs)/1000
		if (sign > 0 && limit < r.Value) || (sign < 0 && limit > r.Value) {
			out.NonRoc = append(out.NonRoc, *r)
			r.Value = limit
		}
		prevVal, prevTs = r.Value, r.Time
	}
	return nil
}

// ClassifyMarkers splits nodata-marker timestamps by the same time window as
// readings.
func ClassifyMarkers(ds *models.Datastream, tss map[int64]struct{}, now int64) (markers, unused []models.NoDataMarker) {
	for ts := range tss {
		m := models.NoDataMarker{DatastreamID: ds.ID, Time: ts}
		if ts > ds.TsToStartWith && ts < now {
			markers = append(markers, m)
		} else {
			unused = append(unused, m)
		}
	}
	return markers, unused
}
