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

package publish

import (
	"strconv"

	"go.corp.nvidia.com/monapps/models"
)

// publishable is the per-model view the payload builder works on.
// publishedValue returns ok=false for fields outside the model's published
// whitelist, which is what filters a change set down to the public
// surface.
type publishable interface {
	modelName() string
	pkString() string
	fullID() string
	publishedValue(field string) (any, bool)
}

// nullTs maps the in-memory "never" zero to a JSON null, as consumers
// expect an absent timestamp rather than the epoch.
func nullTs(ts int64) any {
	if ts == 0 {
		return nil
	}
	return ts
}

func nullGradeValue(g models.NullGrade) any {
	if !g.Valid {
		return nil
	}
	return int16(g.Grade)
}

type pubApplication struct{ *models.Application }

func (p pubApplication) modelName() string { return "application" }
func (p pubApplication) pkString() string  { return strconv.FormatInt(p.ID, 10) }
func (p pubApplication) fullID() string    { return "application " + p.pkString() }

func (p pubApplication) publishedValue(field string) (any, bool) {
	switch field {
	case "cursor_ts":
		return p.CursorTs, true
	case "status":
		return nullGradeValue(p.Status), true
	case "is_status_stale":
		return p.IsStatusStale, true
	case "last_status_update_ts":
		return nullTs(p.LastStatusUpdateTs), true
	case "curr_state":
		return nullGradeValue(p.CurrState), true
	case "is_curr_state_stale":
		return p.IsCurrStateStale, true
	case "last_curr_state_update_ts":
		return nullTs(p.LastCurrStateUpdateTs), true
	case "health":
		return int16(p.Health), true
	case "is_enabled":
		return p.IsEnabled, true
	case "is_catching_up":
		return p.IsCatchingUp, true
	}
	return nil, false
}

type pubDatafeed struct{ *models.Datafeed }

func (p pubDatafeed) modelName() string { return "datafeed" }
func (p pubDatafeed) pkString() string  { return strconv.FormatInt(p.ID, 10) }
func (p pubDatafeed) fullID() string    { return "datafeed " + p.pkString() }

func (p pubDatafeed) publishedValue(field string) (any, bool) {
	if field == "last_reading_ts" {
		return nullTs(p.LastReadingTs), true
	}
	return nil, false
}

type pubDatastream struct{ *models.Datastream }

func (p pubDatastream) modelName() string { return "datastream" }
func (p pubDatastream) pkString() string  { return strconv.FormatInt(p.ID, 10) }
func (p pubDatastream) fullID() string    { return "datastream " + p.pkString() }

func (p pubDatastream) publishedValue(field string) (any, bool) {
	switch field {
	case "health":
		return int16(p.Health), true
	case "last_valid_reading_ts":
		return nullTs(p.LastValidReadingTs), true
	case "is_enabled":
		return p.IsEnabled, true
	}
	return nil, false
}

type pubDevice struct{ *models.Device }

func (p pubDevice) modelName() string { return "device" }
func (p pubDevice) pkString() string  { return strconv.FormatInt(p.ID, 10) }
func (p pubDevice) fullID() string    { return "device " + p.pkString() }

func (p pubDevice) publishedValue(field string) (any, bool) {
	if field == "health" {
		return int16(p.Health), true
	}
	return nil, false
}

type pubAsset struct{ *models.Asset }

func (p pubAsset) modelName() string { return "asset" }
func (p pubAsset) pkString() string  { return strconv.FormatInt(p.ID, 10) }
func (p pubAsset) fullID() string    { return "asset " + p.pkString() }

func (p pubAsset) publishedValue(field string) (any, bool) {
	switch field {
	case "status":
		return nullGradeValue(p.Status), true
	case "last_status_update_ts":
		return nullTs(p.LastStatusUpdateTs), true
	case "curr_state":
		return nullGradeValue(p.CurrState), true
	case "last_curr_state_update_ts":
		return nullTs(p.LastCurrStateUpdateTs), true
	case "health":
		return int16(p.Health), true
	}
	return nil, false
}
