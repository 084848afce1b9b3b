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

// Package models defines the domain entities of the monitoring engine and
// the small algebra that operates on them: alarm maps, the changed-field
// tracker, conditional setters and child-to-parent grade aggregation.
package models

// Grade is the common value scale for health, status and current state.
// The ordering matters: aggregations take the maximum grade.
type Grade int16

const (
	GradeUndefined Grade = 0
	GradeOK        Grade = 1
	GradeWarning   Grade = 2
	GradeError     Grade = 3
)

func (g Grade) String() string {
	switch g {
	case GradeUndefined:
		return "UNDEFINED"
	case GradeOK:
		return "OK"
	case GradeWarning:
		return "WARNING"
	case GradeError:
		return "ERROR"
	}
	return "UNKNOWN"
}

// MaxGrade returns the worse of two grades.
func MaxGrade(a, b Grade) Grade {
	if a > b {
		return a
	}
	return b
}

// NullGrade is a grade that may be absent. A parent asset whose children all
// lost their status acquires an absent status itself.
type NullGrade struct {
	Grade Grade
	Valid bool
}

// SomeGrade wraps a concrete grade value.
func SomeGrade(g Grade) NullGrade {
	return NullGrade{Grade: g, Valid: true}
}

// NoGrade is the absent value.
var NoGrade = NullGrade{}

// ChildUse reshapes how a child's ERROR grade is interpreted when
// aggregating into a parent asset.
type ChildUse int16

const (
	DontUse      ChildUse = 0
	AsIs         ChildUse = 1
	AsWarning    ChildUse = 2
	AsErrorIfAll ChildUse = 3
)

// VariableType classifies the measured variable.
type VariableType int16

const (
	VarContinuous VariableType = 0
	VarDiscrete   VariableType = 1
	VarNominal    VariableType = 3
	VarOrdinal    VariableType = 4
)

// DataAggType selects the per-bin aggregation of the resampler.
type DataAggType int16

const (
	AggAvg  DataAggType = 0 // continuous data only
	AggSum  DataAggType = 1
	AggLast DataAggType = 2
)

// NotToUse tags a synthesized reading that must not be committed yet.
type NotToUse int16

const (
	UseOK          NotToUse = 0
	SplineNotToUse NotToUse = 1
	Unclosed       NotToUse = 2
	SplineUnclosed NotToUse = 3
)

// AugPolicy controls how far augmentation of an RBE stream extends.
type AugPolicy int16

const (
	TillLastDfReading AugPolicy = 1
	TillNow           AugPolicy = 2
)

// Datafeed roles. Datafeeds named StatusFieldName / CurrStateFieldName feed
// the application's status and current state directly.
const (
	StatusFieldName    = "Status"
	CurrStateFieldName = "Current state"
)

// AllowedIntervalsMs lists the valid resample / scheduling intervals.
var AllowedIntervalsMs = []int64{
	1000, 5000, 10000, 30000, 60000, 300000, 600000, 1800000, 3600000, 86400000,
}

// IsAllowedInterval reports whether ms is one of AllowedIntervalsMs.
func IsAllowedInterval(ms int64) bool {
	for _, v := range AllowedIntervalsMs {
		if v == ms {
			return true
		}
	}
	return false
}

const (
	DefaultTimeResample       int64 = 60000
	DefaultTimeStatusStale    int64 = 15 * 86400000
	DefaultTimeCurrStateStale int64 = 600000
	DefaultTimeAppHealthError int64 = 600000
)
