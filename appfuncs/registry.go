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

// Package appfuncs bundles the application evaluation functions. Each
// function reads the datafeed values behind an application's cursor,
// produces derived readings and reports cursor movement, alarms, health and
// persisted state back to the executor. Functions are looked up by the
// (func name, version) pair stored on the application and its type.
package appfuncs

import (
	"context"
	"encoding/json"
	"fmt"

	"go.corp.nvidia.com/monapps/models"
	"go.corp.nvidia.com/monapps/store"
)

// Update is what a function reports back besides readings. The executor
// applies it to the application after the readings are persisted.
type Update struct {
	// CursorTs is the new cursor position; functions never move it
	// backwards. Zero means the function had nothing to process.
	CursorTs int64

	// IsCatchingUp reports whether the batch cap truncated the window.
	// Nil when the function does not track catch-up.
	IsCatchingUp *bool

	// AlarmPayload carries per-timestamp alarm transitions. An empty row
	// at a timestamp is meaningful and clears non-persistent alarms.
	AlarmPayload models.AlarmPayload

	// Health is the function's own health verdict for this invocation.
	Health models.Grade

	// State replaces the application's persisted state when non-nil.
	State json.RawMessage
}

// Result is one function invocation's output. Derived readings are keyed by
// datafeed name; a present key with no readings still marks the feed as
// owned by the function.
type Result struct {
	DerivedReadings map[string][]models.DfReading
	Update          Update
}

// Func evaluates one application over its datafeeds. It runs inside the
// executor's transaction and must not write through q.
type Func func(
	ctx context.Context,
	q store.Querier,
	app *models.Application,
	nativeDfs, derivedDfs map[string]*models.Datafeed,
) (*Result, error)

// DfSpec describes one datafeed a function expects, by role and data type.
// The name "[ANY]" accepts any set of native feeds.
type DfSpec struct {
	Derived  bool   `json:"derived"`
	DataType string `json:"data_type"`
}

// Entry is one registered function version.
type Entry struct {
	Func     Func
	DfSchema map[string]DfSpec

	// SettingsSchema is the JSON schema admin tooling validates the
	// application settings against. Empty when the function takes none.
	SettingsSchema json.RawMessage
}

var registry = map[string]map[string]Entry{
	"monitoring": {
		"1.0.0": monitoringV1,
	},
	"stall_detection_by_two_temps": {
		"1.0.0": stallDetectionV1,
	},
	"fake_data_generator": {
		"1.0.0": fakeDataGeneratorV1,
	},
}

// Lookup resolves a function by name and version.
func Lookup(funcName, version string) (Entry, error) {
	versions, ok := registry[funcName]
	if !ok {
		return Entry{}, fmt.Errorf("%w: app function %q", models.ErrNotFound, funcName)
	}
	entry, ok := versions[version]
	if !ok {
		return Entry{}, fmt.Errorf("%w: app function %q version %q", models.ErrNotFound, funcName, version)
	}
	return entry, nil
}
