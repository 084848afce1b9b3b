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

package models

import "math"

// NormalizeValue rounds v to the nearest integer for non-continuous
// variables. Continuous values keep their full float precision.
func NormalizeValue(vt VariableType, v float64) float64 {
	if vt != VarContinuous {
		return math.Round(v)
	}
	return v
}

// DsReading is one (datastream, time) value. The composite primary key
// (datastream_id, time) deduplicates replayed messages on insert.
type DsReading struct {
	DatastreamID int64
	Time         int64
	Value        float64
}

// NewDsReading builds a reading with the datastream's value normalization
// applied.
func NewDsReading(ds *Datastream, ts int64, value float64) DsReading {
	return DsReading{
		DatastreamID: ds.ID,
		Time:         ts,
		Value:        NormalizeValue(ds.DataType.VarType, value),
	}
}

// NoDataMarker records a moment a datastream was known to produce no data
// (an error was "in"). The synthesizer uses markers to close augmentation
// periods.
type NoDataMarker struct {
	DatastreamID int64
	Time         int64
}

// DfReading is one synthesized (datafeed, time) value. NotToUse is a
// transient tag: tagged readings are never persisted.
type DfReading struct {
	DatafeedID int64
	Time       int64
	Value      float64
	Restored   bool

	NotToUse NotToUse
}

// NewDfReading builds a derived reading with the datafeed's value
// normalization applied.
func NewDfReading(df *Datafeed, ts int64, value float64, restored bool) DfReading {
	return DfReading{
		DatafeedID: df.ID,
		Time:       ts,
		Value:      NormalizeValue(df.DataType.VarType, value),
		Restored:   restored,
	}
}

// MaxReadingTs returns the maximum timestamp across readings, or 0 when
// empty.
func MaxReadingTs(readings []DsReading) int64 {
	var maxTs int64
	for _, r := range readings {
		if r.Time > maxTs {
			maxTs = r.Time
		}
	}
	return maxTs
}

// MaxMarkerTs returns the maximum timestamp across markers, or 0 when
// empty.
func MaxMarkerTs(markers []NoDataMarker) int64 {
	var maxTs int64
	for _, m := range markers {
		if m.Time > maxTs {
			maxTs = m.Time
		}
	}
	return maxTs
}
