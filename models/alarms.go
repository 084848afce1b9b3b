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

import "slices"

// Alarm statuses.
const (
	AlarmIn  = "in"
	AlarmOut = "out"
)

// AlarmState is one alarm inside an entity's errors or warnings map.
// A persistent alarm stays "in" until cleared explicitly (or implicitly by a
// healthy reading); a non-persistent one must be re-reported every message.
type AlarmState struct {
	Persist         bool   `json:"persist"`
	St              string `json:"st"`
	LastTransTs     int64  `json:"lastTransTs"`
	LastInPayloadTs int64  `json:"lastInPayloadTs"`
}

// AlarmMap maps alarm names to their state. Stored as a JSONB column.
type AlarmMap map[string]AlarmState

// Clone returns a deep copy. The alarm-map merger works copy-on-write so a
// failed transaction never leaves a half-merged map on the entity.
func (m AlarmMap) Clone() AlarmMap {
	out := make(AlarmMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Equal reports whether both maps hold the same alarms in the same states.
func (m AlarmMap) Equal(other AlarmMap) bool {
	if len(m) != len(other) {
		return false
	}
	for k, v := range m {
		ov, ok := other[k]
		if !ok || ov != v {
			return false
		}
	}
	return true
}

// AtLeastOneIn reports whether any alarm has status "in".
func (m AlarmMap) AtLeastOneIn() bool {
	for _, a := range m {
		if a.St == AlarmIn {
			return true
		}
	}
	return false
}

// IncomingAlarm is one alarm object inside a message row: {} for a
// non-persistent event or {"st": "in"|"out"} for a persistent one.
type IncomingAlarm struct {
	St string `json:"st,omitempty"`
}

// IsPersistent reports whether the incoming object carries an explicit
// in/out status.
func (a IncomingAlarm) IsPersistent() bool {
	return a.St == AlarmIn || a.St == AlarmOut
}

// IncomingAlarmDict is the per-timestamp set of incoming alarms, keyed by
// alarm name.
type IncomingAlarmDict map[string]IncomingAlarm

// AlarmPayloadForTs is the "e"/"w"/"i" triple an app function or device row
// reports for one timestamp.
type AlarmPayloadForTs struct {
	Errors   IncomingAlarmDict `json:"e,omitempty"`
	Warnings IncomingAlarmDict `json:"w,omitempty"`
	Infos    []string          `json:"i,omitempty"`
}

// AlarmPayload maps timestamps to alarm payloads. App functions accumulate
// their alarm transitions here; the executor merges them into the
// application's alarm maps in timestamp order.
type AlarmPayload map[int64]*AlarmPayloadForTs

// AddError records an error event at ts.
func (p AlarmPayload) AddError(ts int64, name string, alarm IncomingAlarm) {
	row := p.row(ts)
	if row.Errors == nil {
		row.Errors = IncomingAlarmDict{}
	}
	row.Errors[name] = alarm
}

// AddWarning records a warning event at ts.
func (p AlarmPayload) AddWarning(ts int64, name string, alarm IncomingAlarm) {
	row := p.row(ts)
	if row.Warnings == nil {
		row.Warnings = IncomingAlarmDict{}
	}
	row.Warnings[name] = alarm
}

// AddInfo records an info string at ts.
func (p AlarmPayload) AddInfo(ts int64, info string) {
	row := p.row(ts)
	row.Infos = append(row.Infos, info)
}

// Touch ensures a row exists at ts even when no alarm fired there. An empty
// row is meaningful: merging it clears non-persistent alarms for that bin.
func (p AlarmPayload) Touch(ts int64) {
	p.row(ts)
}

func (p AlarmPayload) row(ts int64) *AlarmPayloadForTs {
	row, ok := p[ts]
	if !ok {
		row = &AlarmPayloadForTs{}
		p[ts] = row
	}
	return row
}

// SortedTs returns the payload timestamps in ascending order.
func (p AlarmPayload) SortedTs() []int64 {
	out := make([]int64, 0, len(p))
	for ts := range p {
		out = append(out, ts)
	}
	slices.Sort(out)
	return out
}
