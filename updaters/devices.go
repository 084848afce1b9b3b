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

package updaters

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"go.corp.nvidia.com/monapps/models"
	"go.corp.nvidia.com/monapps/store"
	"go.corp.nvidia.com/monapps/utils/timegrid"
)

// DeviceUpdater folds datastream healths into device health and asks the
// owning asset to re-evaluate when it moves.
type DeviceUpdater struct {
	st        *store.Store
	logger    *slog.Logger
	committer Committer

	now func() int64
}

// NewDeviceUpdater builds the updater. committer may be nil when change
// events are not published.
func NewDeviceUpdater(st *store.Store, logger *slog.Logger, committer Committer) *DeviceUpdater {
	return &DeviceUpdater{st: st, logger: logger, committer: committer, now: timegrid.NowMs}
}

// Sweep processes one due slice of devices in a single transaction.
func (u *DeviceUpdater) Sweep(ctx context.Context) error {
	var saved []any
	err := u.st.WithTx(ctx, func(tx pgx.Tx) error {
		saved = nil
		nowTs := u.now()
		devs, err := store.ListDueDevices(ctx, tx, nowTs, models.MaxDevicesToUpd)
		if err != nil {
			return err
		}
		if len(devs) == 0 {
			return nil
		}

		parents := make(map[int64]*models.Asset)
		for _, dev := range devs {
			if err := u.updateDevice(ctx, tx, dev, parents, nowTs); err != nil {
				return err
			}
			if !dev.Changes.Empty() {
				if err := store.SaveDevice(ctx, tx, dev); err != nil {
					return err
				}
				saved = append(saved, dev)
			}
		}
		for _, parent := range parents {
			if parent.Changes.Empty() {
				continue
			}
			if err := store.SaveAsset(ctx, tx, parent); err != nil {
				return err
			}
			saved = append(saved, parent)
		}
		return nil
	})
	if err != nil {
		return err
	}
	commitSaved(u.committer, saved)
	return nil
}

func (u *DeviceUpdater) updateDevice(
	ctx context.Context, tx pgx.Tx, dev *models.Device,
	parents map[int64]*models.Asset, nowTs int64,
) error {
	streams, err := store.ListEnabledDatastreams(ctx, tx, dev.ID, false)
	if err != nil {
		return err
	}
	children := make([]models.HealthChild, len(streams))
	for i, ds := range streams {
		children[i] = ds
	}

	models.SetIfChanged(&dev.Changes, "chld_health", &dev.ChldHealth,
		models.DeriveHealthFromChildren(children))
	health := models.MaxGrade(dev.MsgHealth, dev.ChldHealth)
	if models.SetIfChanged(&dev.Changes, "health", &dev.Health, health) {
		u.logger.Debug("Device health changed",
			"device", dev.String(), "health", health.String())
		if dev.ParentID != 0 {
			parent, ok := parents[dev.ParentID]
			if !ok {
				parent, err = store.GetAsset(ctx, tx, dev.ParentID, true)
				if err != nil {
					return err
				}
				parents[dev.ParentID] = parent
			}
			models.UpdateReevalFields(parent, "health")
			models.EnqueueUpdate(parent, nowTs, models.DefaultEnqueueCoef)
		}
	}

	// Mandatory keep-alive refresh a couple of hours ahead.
	models.SetIfChanged(&dev.Changes, "next_upd_ts", &dev.NextUpdTs,
		nowTs+models.TimeDelayAssetMandatoryUpdateMs)
	return nil
}
