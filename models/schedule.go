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

// Updatable is anything the periodic updaters pick up by next_upd_ts
// (devices and assets).
type Updatable interface {
	NextUpdateTs() int64
	SetNextUpdateTs(ts int64)
}

func (d *Device) NextUpdateTs() int64 { return d.NextUpdTs }

func (d *Device) SetNextUpdateTs(ts int64) {
	d.NextUpdTs = ts
	d.Changes.Add("next_upd_ts")
}

func (a *Asset) NextUpdateTs() int64 { return a.NextUpdTs }

func (a *Asset) SetNextUpdateTs(ts int64) {
	a.NextUpdTs = ts
	a.Changes.Add("next_upd_ts")
}

// DefaultEnqueueCoef shortens the mandatory updater period slightly so an
// enqueued target is picked up on the next sweep.
const DefaultEnqueueCoef = 0.8

// TotalUpdateCoef is used for "total" parent re-evaluations (deletes, bulk
// saves) which should land ahead of ordinary enqueued updates.
const TotalUpdateCoef = 0.2

// EnqueueUpdate pulls the target's next update moment closer to now.
// next_upd_ts only ever moves earlier, so duplicate triggers are idempotent.
func EnqueueUpdate(target Updatable, nowTs int64, coef float64) {
	if target == nil {
		return
	}
	timeMargin := int64(float64(TimeAssetUpdMs) * coef)
	if target.NextUpdateTs() > nowTs+timeMargin {
		target.SetNextUpdateTs(nowTs + timeMargin)
	}
}

// UpdateReevalFields records which of the parent asset's aggregated fields a
// child wants recomputed.
func UpdateReevalFields(asset *Asset, fields ...string) {
	if asset == nil {
		return
	}
	for _, field := range fields {
		found := false
		for _, f := range asset.ReevalFieldSet {
			if f == field {
				found = true
				break
			}
		}
		if !found {
			asset.ReevalFieldSet = append(asset.ReevalFieldSet, field)
			asset.Changes.Add("reeval_fields")
		}
	}
}
