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
	"os"
	"reflect"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"go.corp.nvidia.com/monapps/models"
	"go.corp.nvidia.com/monapps/store"
)

func startTestStore(t *testing.T) (*store.Store, context.Context) {
	t.Helper()
	if os.Getenv("MONAPPS_SKIP_DOCKER_TESTS") != "" {
		t.Skip("MONAPPS_SKIP_DOCKER_TESTS is set")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:15.1",
		tcpostgres.WithDatabase("monapps_db"),
		tcpostgres.WithUsername("monapps"),
		tcpostgres.WithPassword("monapps"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("Failed to create pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := store.ApplySchema(ctx, pool); err != nil {
		t.Fatalf("Failed to apply schema: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	return store.New(pool, logger), ctx
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func mustExec(t *testing.T, ctx context.Context, s *store.Store, sql string, args ...any) {
	t.Helper()
	if _, err := s.Pool().Exec(ctx, sql, args...); err != nil {
		t.Fatalf("Seed exec failed: %v\n%s", err, sql)
	}
}

func seedID(t *testing.T, ctx context.Context, s *store.Store, sql string, args ...any) int64 {
	t.Helper()
	var id int64
	if err := s.Pool().QueryRow(ctx, sql, args...).Scan(&id); err != nil {
		t.Fatalf("Seed query failed: %v\n%s", err, sql)
	}
	return id
}

func TestAssetUpdaterAggregatesLeavesFirst(t *testing.T) {
	s, ctx := startTestStore(t)

	rootID := seedID(t, ctx, s, `INSERT INTO assets (name) VALUES ('site') RETURNING id`)
	midID := seedID(t, ctx, s,
		`INSERT INTO assets (name, parent_id) VALUES ('line', $1) RETURNING id`, rootID)
	leafID := seedID(t, ctx, s, `
		INSERT INTO assets (name, parent_id, next_upd_ts, reeval_fields)
		VALUES ('pump', $1, 0, '["status", "curr_state", "health"]') RETURNING id`, midID)

	typeID := seedID(t, ctx, s,
		`INSERT INTO app_types (name, func_name) VALUES ('monitoring', 'monitoring') RETURNING id`)
	mustExec(t, ctx, s, `
		INSERT INTO applications (type_id, parent_id, health, status, curr_state, created_ts)
		VALUES ($1, $2, $3, $4, $5, 0)`,
		typeID, leafID, int16(models.GradeError), int16(models.GradeWarning), int16(models.GradeOK))

	u := NewAssetUpdater(s, testLogger(), nil)
	u.now = func() int64 { return 5000 }
	if err := u.Sweep(ctx); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	// The single due leaf pulls mid and root into the same pass; the
	// application's grades must reach the root in one sweep.
	for _, id := range []int64{leafID, midID, rootID} {
		a, err := store.GetAsset(ctx, s.Pool(), id, false)
		if err != nil {
			t.Fatalf("Reload asset %d: %v", id, err)
		}
		if a.Health != models.GradeError {
			t.Errorf("Asset %d health = %v, want ERROR", id, a.Health)
		}
		if !a.Status.Valid || a.Status.Grade != models.GradeWarning {
			t.Errorf("Asset %d status = %+v, want WARNING", id, a.Status)
		}
		if !a.CurrState.Valid || a.CurrState.Grade != models.GradeOK {
			t.Errorf("Asset %d curr_state = %+v, want OK", id, a.CurrState)
		}
		if a.NextUpdTs != models.MaxTsMs {
			t.Errorf("Asset %d next_upd_ts = %d, want parked", id, a.NextUpdTs)
		}
		if len(a.ReevalFieldSet) != 0 {
			t.Errorf("Asset %d reeval fields not cleared: %v", id, a.ReevalFieldSet)
		}
		if a.LastStatusUpdateTs != 5000 || a.LastCurrStateUpdateTs != 5000 {
			t.Errorf("Asset %d change timestamps = %d/%d, want 5000",
				id, a.LastStatusUpdateTs, a.LastCurrStateUpdateTs)
		}
	}
}

func TestAssetUpdaterIdleWhenNothingDue(t *testing.T) {
	s, ctx := startTestStore(t)
	mustExec(t, ctx, s, `INSERT INTO assets (name) VALUES ('site')`)

	u := NewAssetUpdater(s, testLogger(), nil)
	u.now = func() int64 { return 5000 }
	if err := u.Sweep(ctx); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
}

func TestDeviceUpdaterFoldsStreamHealths(t *testing.T) {
	s, ctx := startTestStore(t)

	assetID := seedID(t, ctx, s, `INSERT INTO assets (name) VALUES ('plant') RETURNING id`)
	devID := seedID(t, ctx, s, `
		INSERT INTO devices (dev_ui, name, parent_id, msg_health, next_upd_ts, created_ts)
		VALUES ('0004a30b001a2b3c', 'sensor hub', $1, $2, 0, 0) RETURNING id`,
		assetID, int16(models.GradeOK))
	typeID := seedID(t, ctx, s,
		`INSERT INTO datatypes (name) VALUES ('Temperature') RETURNING id`)
	mustExec(t, ctx, s, `
		INSERT INTO datastreams (name, parent_id, data_type_id, health, created_ts)
		VALUES ('broken channel', $1, $2, $3, 0)`, devID, typeID, int16(models.GradeError))
	mustExec(t, ctx, s, `
		INSERT INTO datastreams (name, parent_id, data_type_id, health, is_enabled, created_ts)
		VALUES ('muted channel', $1, $2, $3, FALSE, 0)`, devID, typeID, int16(models.GradeOK))

	u := NewDeviceUpdater(s, testLogger(), nil)
	u.now = func() int64 { return 100000 }
	if err := u.Sweep(ctx); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	dev, err := store.GetDevice(ctx, s.Pool(), devID, false)
	if err != nil {
		t.Fatalf("Reload device: %v", err)
	}
	// The only enabled stream is ERROR, so the fold is ERROR, not the
	// demoted WARNING.
	if dev.ChldHealth != models.GradeError {
		t.Errorf("chld_health = %v, want ERROR", dev.ChldHealth)
	}
	if dev.Health != models.GradeError {
		t.Errorf("health = %v, want ERROR", dev.Health)
	}
	if want := int64(100000) + models.TimeDelayAssetMandatoryUpdateMs; dev.NextUpdTs != want {
		t.Errorf("next_upd_ts = %d, want %d", dev.NextUpdTs, want)
	}

	parent, err := store.GetAsset(ctx, s.Pool(), assetID, false)
	if err != nil {
		t.Fatalf("Reload asset: %v", err)
	}
	if !reflect.DeepEqual(parent.ReevalFieldSet, []string{"health"}) {
		t.Errorf("Parent reeval fields = %v, want [health]", parent.ReevalFieldSet)
	}
	wantNextUpd := int64(100000) + int64(float64(models.TimeAssetUpdMs)*models.DefaultEnqueueCoef)
	if parent.NextUpdTs != wantNextUpd {
		t.Errorf("Parent next_upd_ts = %d, want %d", parent.NextUpdTs, wantNextUpd)
	}
}

func TestDsHealthUpdaterNoDataWatchdog(t *testing.T) {
	s, ctx := startTestStore(t)
	const now = int64(1000000)

	devStaleID := seedID(t, ctx, s,
		`INSERT INTO devices (dev_ui, name, created_ts) VALUES ('aa00000000000001', 'silent', 0) RETURNING id`)
	devFreshID := seedID(t, ctx, s,
		`INSERT INTO devices (dev_ui, name, created_ts) VALUES ('aa00000000000002', 'alive', 0) RETURNING id`)
	typeID := seedID(t, ctx, s,
		`INSERT INTO datatypes (name) VALUES ('Pressure') RETURNING id`)

	staleID := seedID(t, ctx, s, `
		INSERT INTO datastreams (name, parent_id, data_type_id, time_update,
			health_next_eval_ts, last_valid_reading_ts, created_ts)
		VALUES ('stuck', $1, $2, 5000, 0, 500, 0) RETURNING id`, devStaleID, typeID)
	freshID := seedID(t, ctx, s, `
		INSERT INTO datastreams (name, parent_id, data_type_id, time_update,
			health_next_eval_ts, last_valid_reading_ts, created_ts, health, nd_health)
		VALUES ('reporting', $1, $2, 5000, 0, $3, 0, $4, $4) RETURNING id`,
		devFreshID, typeID, now-1000, int16(models.GradeOK))

	u := NewDsHealthUpdater(s, testLogger(), nil)
	u.now = func() int64 { return now }
	if err := u.Sweep(ctx); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	stale, err := store.GetDatastreamForUpdate(ctx, s.Pool(), staleID)
	if err != nil {
		t.Fatalf("Reload datastream: %v", err)
	}
	if stale.NdHealth != models.GradeError || stale.Health != models.GradeError {
		t.Errorf("Stale stream health = %v/%v, want ERROR", stale.NdHealth, stale.Health)
	}
	// max(TIME_DS_HEALTH_EVAL, time_update * 1.5) past now.
	if want := now + 7500; stale.HealthNextEvalTs != want {
		t.Errorf("health_next_eval_ts = %d, want %d", stale.HealthNextEvalTs, want)
	}

	fresh, err := store.GetDatastreamForUpdate(ctx, s.Pool(), freshID)
	if err != nil {
		t.Fatalf("Reload datastream: %v", err)
	}
	if fresh.NdHealth != models.GradeOK || fresh.Health != models.GradeOK {
		t.Errorf("Fresh stream health = %v/%v, want OK", fresh.NdHealth, fresh.Health)
	}

	devStale, err := store.GetDevice(ctx, s.Pool(), devStaleID, false)
	if err != nil {
		t.Fatalf("Reload device: %v", err)
	}
	wantNextUpd := now + int64(float64(models.TimeAssetUpdMs)*models.DefaultEnqueueCoef)
	if devStale.NextUpdTs != wantNextUpd {
		t.Errorf("Silent device next_upd_ts = %d, want %d", devStale.NextUpdTs, wantNextUpd)
	}
	devFresh, err := store.GetDevice(ctx, s.Pool(), devFreshID, false)
	if err != nil {
		t.Fatalf("Reload device: %v", err)
	}
	if devFresh.NextUpdTs != models.MaxTsMs {
		t.Errorf("Healthy device was enqueued: next_upd_ts = %d", devFresh.NextUpdTs)
	}
}
