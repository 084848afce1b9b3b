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

// DsHealthUpdater is the no-data watchdog for periodic datastreams: a
// stream that stops producing valid readings turns its nd_health to ERROR
// even when no message ever arrives to say so.
type DsHealthUpdater struct {
	st        *store.Store
	logger    *slog.Logger
	committer Committer

	now func() int64
}

// NewDsHealthUpdater builds the updater. committer may be nil when change
// events are not published.
func NewDsHealthUpdater(st *store.Store, logger *slog.Logger, committer Committer) *DsHealthUpdater {
	return &DsHealthUpdater{st: st, logger: logger, committer: committer, now: timegrid.NowMs}
}

// Sweep processes one due slice of datastreams in a single transaction.
func (u *DsHealthUpdater) Sweep(ctx context.Context) error {
	var saved []any
	err := u.st.WithTx(ctx, func(tx pgx.Tx) error {
		saved = nil
		nowTs := u.now()
		streams, err := store.ListDatastreamsDueHealthEval(ctx, tx, nowTs, models.MaxDsToHealthProc)
		if err != nil {
			return err
		}
		if len(streams) == 0 {
			return nil
		}

		devices := make(map[int64]*models.Device)
		for _, ds := range streams {
			if err := u.updateStream(ctx, tx, ds, devices, nowTs); err != nil {
				return err
			}
			if !ds.Changes.Empty() {
				if err := store.SaveDatastream(ctx, tx, ds); err != nil {
					return err
				}
				saved = append(saved, ds)
			}
		}
		for _, dev := range devices {
			if dev.Changes.Empty() {
				continue
			}
			if err := store.SaveDevice(ctx, tx, dev); err != nil {
				return err
			}
			saved = append(saved, dev)
		}
		return nil
	})
	if err != nil {
		return err
	}
	commitSaved(u.committer, saved)
	return nil
}

func (u *DsHealthUpdater) updateStream(
	ctx context.Context, tx pgx.Tx, ds *models.Datastream,
	devices map[int64]*models.Device, nowTs int64,
) error {
	// Before the first valid reading the stream gets the benefit of the
	// doubt for time_nd_health_error after creation.
	ndHealth := models.GradeUndefined
	switch {
	case ds.LastValidReadingTs == 0:
		if nowTs-ds.CreatedTs > ds.TimeNdHealthErr {
			ndHealth = models.GradeError
		}
	case nowTs-ds.LastValidReadingTs > ds.TimeNdHealthErr:
		ndHealth = models.GradeError
	default:
		ndHealth = models.GradeOK
	}
	models.SetIfChanged(&ds.Changes, "nd_health", &ds.NdHealth, ndHealth)

	health := models.MaxGrade(ds.MsgHealth, ds.NdHealth)
	if models.SetIfChanged(&ds.Changes, "health", &ds.Health, health) {
		u.logger.Debug("Datastream health changed",
			"datastream", ds.String(), "health", health.String())
		dev, ok := devices[ds.ParentID]
		if !ok {
			var err error
			dev, err = store.GetDevice(ctx, tx, ds.ParentID, true)
			if err != nil {
				return err
			}
			devices[ds.ParentID] = dev
		}
		models.EnqueueUpdate(dev, nowTs, models.DefaultEnqueueCoef)
	}

	nextEval := nowTs + max(models.TimeDsHealthEvalMs,
		int64(float64(ds.TimeUpdate)*models.NextEvalMarginCoef))
	models.SetIfChanged(&ds.Changes, "health_next_eval_ts", &ds.HealthNextEvalTs, nextEval)
	return nil
}
