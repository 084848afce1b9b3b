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

package executor

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"slices"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"go.corp.nvidia.com/monapps/models"
	"go.corp.nvidia.com/monapps/store"
	"go.corp.nvidia.com/monapps/synth"
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

type stallSeed struct {
	assetID  int64
	appID    int64
	tempInID int64
	statusID int64
	csID     int64
}

// seedStallApp creates an asset, a stall-detection application with its
// task, the two native temperature feeds (watermarked so the function has a
// window to evaluate) and the two derived feeds.
func seedStallApp(t *testing.T, ctx context.Context, s *store.Store, watermark int64) stallSeed {
	t.Helper()
	var seed stallSeed
	var tempTypeID, gradeTypeID, devID, dsInID, dsOutID, appTypeID, tempOutID int64

	pool := s.Pool()
	if err := pool.QueryRow(ctx,
		`INSERT INTO assets (name) VALUES ('plant') RETURNING id`).Scan(&seed.assetID); err != nil {
		t.Fatalf("Seed asset: %v", err)
	}
	if err := pool.QueryRow(ctx,
		`INSERT INTO datatypes (name, agg_type, var_type) VALUES ('Temperature', 0, 0)
		 RETURNING id`).Scan(&tempTypeID); err != nil {
		t.Fatalf("Seed datatype: %v", err)
	}
	if err := pool.QueryRow(ctx,
		`INSERT INTO datatypes (name, agg_type, var_type) VALUES ('Grade', 2, 4)
		 RETURNING id`).Scan(&gradeTypeID); err != nil {
		t.Fatalf("Seed datatype: %v", err)
	}
	if err := pool.QueryRow(ctx,
		`INSERT INTO devices (dev_ui, name, created_ts) VALUES ('a1b2c3d4e5f60708', 'boiler', 0)
		 RETURNING id`).Scan(&devID); err != nil {
		t.Fatalf("Seed device: %v", err)
	}
	if err := pool.QueryRow(ctx,
		`INSERT INTO datastreams (name, parent_id, data_type_id, created_ts)
		 VALUES ('temp in', $1, $2, 0) RETURNING id`, devID, tempTypeID).Scan(&dsInID); err != nil {
		t.Fatalf("Seed datastream: %v", err)
	}
	if err := pool.QueryRow(ctx,
		`INSERT INTO datastreams (name, parent_id, data_type_id, created_ts)
		 VALUES ('temp out', $1, $2, 0) RETURNING id`, devID, tempTypeID).Scan(&dsOutID); err != nil {
		t.Fatalf("Seed datastream: %v", err)
	}
	if err := pool.QueryRow(ctx,
		`INSERT INTO app_types (name, func_name)
		 VALUES ('stall detection', 'stall_detection_by_two_temps') RETURNING id`).Scan(&appTypeID); err != nil {
		t.Fatalf("Seed app type: %v", err)
	}
	if err := pool.QueryRow(ctx,
		`INSERT INTO applications (type_id, parent_id, settings, created_ts)
		 VALUES ($1, $2, '{"cs_trans_counts": 1}', 0) RETURNING id`,
		appTypeID, seed.assetID).Scan(&seed.appID); err != nil {
		t.Fatalf("Seed application: %v", err)
	}
	if _, err := pool.Exec(ctx,
		`INSERT INTO tasks (application_id, name, interval_ms) VALUES ($1, 'stall task', 60000)`,
		seed.appID); err != nil {
		t.Fatalf("Seed task: %v", err)
	}
	if err := pool.QueryRow(ctx,
		`INSERT INTO datafeeds (name, parent_id, datastream_id, data_type_id, ts_to_start_with)
		 VALUES ('Temp in', $1, $2, $3, $4) RETURNING id`,
		seed.appID, dsInID, tempTypeID, watermark).Scan(&seed.tempInID); err != nil {
		t.Fatalf("Seed datafeed: %v", err)
	}
	if err := pool.QueryRow(ctx,
		`INSERT INTO datafeeds (name, parent_id, datastream_id, data_type_id, ts_to_start_with)
		 VALUES ('Temp out', $1, $2, $3, $4) RETURNING id`,
		seed.appID, dsOutID, tempTypeID, watermark).Scan(&tempOutID); err != nil {
		t.Fatalf("Seed datafeed: %v", err)
	}
	if err := pool.QueryRow(ctx,
		`INSERT INTO datafeeds (name, parent_id, data_type_id)
		 VALUES ('Status', $1, $2) RETURNING id`,
		seed.appID, gradeTypeID).Scan(&seed.statusID); err != nil {
		t.Fatalf("Seed datafeed: %v", err)
	}
	if err := pool.QueryRow(ctx,
		`INSERT INTO datafeeds (name, parent_id, data_type_id)
		 VALUES ('Current state', $1, $2) RETURNING id`,
		seed.appID, gradeTypeID).Scan(&seed.csID); err != nil {
		t.Fatalf("Seed datafeed: %v", err)
	}

	// Synthesized temperature history: three closed bins of a healthy
	// exchanger.
	var tempInDfID, tempOutDfID = seed.tempInID, tempOutID
	var dfrs []models.DfReading
	for _, ts := range []int64{60000, 120000, 180000} {
		dfrs = append(dfrs,
			models.DfReading{DatafeedID: tempInDfID, Time: ts, Value: 60},
			models.DfReading{DatafeedID: tempOutDfID, Time: ts, Value: 55},
		)
	}
	if err := store.InsertDfReadings(ctx, pool, dfrs); err != nil {
		t.Fatalf("Seed df readings: %v", err)
	}
	return seed
}

func testExecutor(s *store.Store, nowTs int64) *Executor {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	e := New(s, synth.NewSynthesizer(s, logger, nil), logger, nil)
	e.now = func() int64 { return nowTs }
	return e
}

func TestExecutorIntegration_StallDetectionRun(t *testing.T) {
	s, ctx := startTestStore(t)
	seed := seedStallApp(t, ctx, s, 180000)

	const now = int64(1000000)
	if err := testExecutor(s, now).Execute(ctx, seed.appID); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	app, err := store.GetApplication(ctx, s.Pool(), seed.appID, false)
	if err != nil {
		t.Fatalf("Reload application: %v", err)
	}
	if app.CursorTs != 180000 {
		t.Errorf("cursor_ts = %d, want 180000", app.CursorTs)
	}
	if !app.CurrState.Valid || app.CurrState.Grade != models.GradeOK {
		t.Errorf("curr_state = %+v, want OK", app.CurrState)
	}
	if !app.Status.Valid || app.Status.Grade != models.GradeUndefined {
		t.Errorf("status = %+v, want UNDEFINED", app.Status)
	}
	// The cursor watchdog: at now=1000000 the cursor lags by more than the
	// default time_health_error of 600000.
	if app.Health != models.GradeError {
		t.Errorf("health = %v, want ERROR", app.Health)
	}
	// curr_state became stale (10 min limit), status did not (15 days).
	if !app.IsCurrStateStale || app.IsStatusStale {
		t.Errorf("staleness: curr_state=%v status=%v", app.IsCurrStateStale, app.IsStatusStale)
	}
	var state map[string]json.RawMessage
	if err := json.Unmarshal(app.State, &state); err != nil {
		t.Fatalf("Decode state: %v", err)
	}
	if _, ok := state["cs_automata_state"]; !ok {
		t.Errorf("Persisted state misses automata keys: %s", app.State)
	}

	for _, dfID := range []int64{seed.statusID, seed.csID} {
		dfrs, err := store.ListDfReadings(ctx, s.Pool(), dfID, 0, 500000)
		if err != nil {
			t.Fatalf("List df readings: %v", err)
		}
		if len(dfrs) != 3 {
			t.Errorf("Datafeed %d has %d readings, want 3", dfID, len(dfrs))
		}
	}
	csDf, err := store.GetDatafeedForUpdate(ctx, s.Pool(), seed.csID)
	if err != nil {
		t.Fatalf("Reload datafeed: %v", err)
	}
	if csDf.LastReadingTs != 180000 {
		t.Errorf("last_reading_ts = %d, want 180000", csDf.LastReadingTs)
	}

	parent, err := store.GetAsset(ctx, s.Pool(), seed.assetID, false)
	if err != nil {
		t.Fatalf("Reload asset: %v", err)
	}
	for _, field := range []string{"status", "curr_state", "health"} {
		if !slices.Contains(parent.ReevalFieldSet, field) {
			t.Errorf("Parent reeval fields %v miss %q", parent.ReevalFieldSet, field)
		}
	}
	wantNextUpd := now + int64(float64(models.TimeAssetUpdMs)*models.DefaultEnqueueCoef)
	if parent.NextUpdTs != wantNextUpd {
		t.Errorf("Parent next_upd_ts = %d, want %d", parent.NextUpdTs, wantNextUpd)
	}
}

func TestExecutorIntegration_SecondRunIsIdle(t *testing.T) {
	s, ctx := startTestStore(t)
	seed := seedStallApp(t, ctx, s, 180000)

	e := testExecutor(s, 1000000)
	if err := e.Execute(ctx, seed.appID); err != nil {
		t.Fatalf("First execute failed: %v", err)
	}
	if err := e.Execute(ctx, seed.appID); err != nil {
		t.Fatalf("Second execute failed: %v", err)
	}

	app, err := store.GetApplication(ctx, s.Pool(), seed.appID, false)
	if err != nil {
		t.Fatalf("Reload application: %v", err)
	}
	if app.CursorTs != 180000 {
		t.Errorf("cursor_ts = %d, want 180000", app.CursorTs)
	}
	dfrs, err := store.ListDfReadings(ctx, s.Pool(), seed.statusID, 0, 500000)
	if err != nil {
		t.Fatalf("List df readings: %v", err)
	}
	if len(dfrs) != 3 {
		t.Errorf("Status readings = %d, want 3 after an idle run", len(dfrs))
	}
}

func TestExecutorIntegration_ReadingConflictRollsBack(t *testing.T) {
	s, ctx := startTestStore(t)
	seed := seedStallApp(t, ctx, s, 180000)

	// A stray reading already sits where the function will write.
	err := store.InsertDfReadings(ctx, s.Pool(), []models.DfReading{
		{DatafeedID: seed.statusID, Time: 60000, Value: 9},
	})
	if err != nil {
		t.Fatalf("Seed conflicting reading: %v", err)
	}

	if err := testExecutor(s, 1000000).Execute(ctx, seed.appID); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	app, err := store.GetApplication(ctx, s.Pool(), seed.appID, false)
	if err != nil {
		t.Fatalf("Reload application: %v", err)
	}
	if app.Health != models.GradeError {
		t.Errorf("health = %v, want ERROR after a write conflict", app.Health)
	}
	if app.CursorTs != 0 {
		t.Errorf("cursor_ts = %d, want 0 after rollback", app.CursorTs)
	}

	dfrs, err := store.ListDfReadings(ctx, s.Pool(), seed.statusID, 0, 500000)
	if err != nil {
		t.Fatalf("List df readings: %v", err)
	}
	if len(dfrs) != 1 || dfrs[0].Value != 9 {
		t.Errorf("Status readings = %+v, want only the pre-existing one", dfrs)
	}
}
