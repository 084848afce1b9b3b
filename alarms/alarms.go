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

// Package alarms merges incoming alarm events into the persistent alarm maps
// of devices, datastreams and applications, and records every transition in
// the alarm log.
package alarms

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.corp.nvidia.com/monapps/models"
)

// Kind selects which alarm map of an entity is being updated.
type Kind string

const (
	KindErrors   Kind = "errors"
	KindWarnings Kind = "warnings"
)

func (k Kind) logLevel() slog.Level {
	if k == KindErrors {
		return slog.LevelError
	}
	return slog.LevelWarn
}

// LogFunc records one alarm transition. entity is the owning device,
// datastream or application.
type LogFunc func(level slog.Level, entity fmt.Stringer, name string, ts int64, status string)

// NewLog returns a LogFunc writing transitions through the service logger.
func NewLog(logger *slog.Logger) LogFunc {
	return func(level slog.Level, entity fmt.Stringer, name string, ts int64, status string) {
		logger.Log(context.Background(), level, name,
			"entity", entity.String(),
			"status", strings.ToUpper(status),
			"at", time.UnixMilli(ts).UTC().Format(time.RFC3339Nano),
		)
	}
}

// UpdateAlarmMap merges the incoming alarms reported for one timestamp into a
// copy of the current map and returns it together with a flag telling whether
// a nodata marker must be written (errors only).
//
// An incoming alarm carrying an explicit "st" of in/out is persistent: it is
// reported once and holds until cleared with "out". An incoming alarm with an
// empty object is non-persistent: it must be re-reported with every message
// and falls back to "out" as soon as a message arrives without it.
//
// hasValue tells that a measured value arrived in parallel at the same
// timestamp; it implicitly clears persistent errors that were not re-reported
// (if the source were still failing there would be no value), and it forces a
// nodata marker when an error IS re-reported, so the synthesizer can fence
// off the suspect value.
func UpdateAlarmMap(
	entity fmt.Stringer,
	current models.AlarmMap,
	incoming models.IncomingAlarmDict,
	ts int64,
	kind Kind,
	hasValue bool,
	log LogFunc,
) (models.AlarmMap, bool) {
	level := kind.logLevel()
	ndMarkerNeeded := false
	upd := current.Clone()

	for name, obj := range incoming {
		status := strings.ToLower(obj.St)
		persistent := status == models.AlarmIn || status == models.AlarmOut

		state, known := upd[name]
		switch {
		case known && persistent:
			state.Persist = true
			state.LastInPayloadTs = ts
			// A repeat of the same "in" alarm alone does not warrant a
			// marker, but a value arriving alongside it does.
			if kind == KindErrors && status == models.AlarmIn && hasValue {
				ndMarkerNeeded = true
			}
			if state.St != status {
				state.St = status
				state.LastTransTs = ts
				log(level, entity, name, ts, status)
				if kind == KindErrors && status == models.AlarmIn {
					ndMarkerNeeded = true
				}
			}
			upd[name] = state

		case known: // non-persistent repeat
			state.Persist = false
			state.LastInPayloadTs = ts
			if kind == KindErrors && hasValue {
				ndMarkerNeeded = true
			}
			if state.St != models.AlarmIn {
				state.St = models.AlarmIn
				state.LastTransTs = ts
				log(level, entity, name, ts, models.AlarmIn)
				if kind == KindErrors {
					ndMarkerNeeded = true
				}
			}
			upd[name] = state

		case persistent:
			// First appearance. An initial "out" is stored but not logged.
			upd[name] = models.AlarmState{
				Persist:         true,
				St:              status,
				LastTransTs:     ts,
				LastInPayloadTs: ts,
			}
			if status == models.AlarmIn {
				log(level, entity, name, ts, models.AlarmIn)
				if kind == KindErrors {
					ndMarkerNeeded = true
				}
			}

		default:
			upd[name] = models.AlarmState{
				Persist:         false,
				St:              models.AlarmIn,
				LastTransTs:     ts,
				LastInPayloadTs: ts,
			}
			log(level, entity, name, ts, models.AlarmIn)
			if kind == KindErrors {
				ndMarkerNeeded = true
			}
		}
	}

	for name, state := range upd {
		if state.Persist {
			// A value without a re-reported error clears the error.
			if kind == KindErrors && state.St == models.AlarmIn &&
				state.LastInPayloadTs < ts && hasValue {
				state.St = models.AlarmOut
				state.LastTransTs = ts
				upd[name] = state
				log(level, entity, name, ts, models.AlarmOut)
			}
			continue
		}
		if state.St != models.AlarmIn {
			continue
		}
		if _, reported := incoming[name]; !reported {
			state.St = models.AlarmOut
			state.LastTransTs = ts
			upd[name] = state
			log(level, entity, name, ts, models.AlarmOut)
		}
	}

	return upd, ndMarkerNeeded
}
