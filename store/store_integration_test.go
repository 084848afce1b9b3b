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

package store

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"go.corp.nvidia.com/monapps/models"
)

// startTestStore spins up a disposable PostgreSQL container, applies the
// schema and returns a ready Store. Skipped when Docker is unavailable.
func startTestStore(t *testing.T) (*Store, context.Context) {
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
		tcpostgres.WithSQLDriver("pgx"),
	)
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
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

	if err := ApplySchema(ctx, pool); err != nil {
		t.Fatalf("Failed to apply schema: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	return New(pool, logger), ctx
}

// seedDatastream creates an asset, device, datatype and datastream and
// returns the device and datastream ids.
func seedDatastream(t *testing.T, ctx context.Context, s *Store) (int64, int64) {
	t.Helper()
	now := time.Now().UnixMilli()

	var devID, dsID int64
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		var dtID int64
		if err := tx.QueryRow(ctx,
			`INSERT INTO datatypes (name, agg_type, var_type) VALUES ('temperature', 0, 0) RETURNING id`).
			Scan(&dtID); err != nil {
			return err
		}
		if err := tx.QueryRow(ctx,
			`INSERT INTO devices (dev_ui, name, created_ts) VALUES ('a1b2c3d4e5f60708', 'boiler sensor', $1) RETURNING id`,
			now).Scan(&devID); err != nil {
			return err
		}
		return tx.QueryRow(ctx,
			`INSERT INTO datastreams (name, parent_id, data_type_id, created_ts) VALUES ('temp in', $1, $2, $3) RETURNING id`,
			devID, dtID, now).Scan(&dsID)
	})
	if err != nil {
		t.Fatalf("Failed to seed datastream: %v", err)
	}
	return devID, dsID
}

func TestStoreIntegration_ReadingInsertIdempotency(t *testing.T) {
	s, ctx := startTestStore(t)
	_, dsID := seedDatastream(t, ctx, s)

	readings := []models.DsReading{
		{DatastreamID: dsID, Time: 1000, Value: 21.5},
		{DatastreamID: dsID, Time: 2000, Value: 22.0},
	}
	if err := InsertDsReadings(ctx, s.Pool(), TableDsReadings, readings); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}
	// A replayed message delivers the same rows again.
	if err := InsertDsReadings(ctx, s.Pool(), TableDsReadings, readings); err != nil {
		t.Fatalf("Replayed insert failed: %v", err)
	}

	var count int
	if err := s.Pool().QueryRow(ctx,
		`SELECT count(*) FROM ds_readings WHERE datastream_id = $1`, dsID).Scan(&count); err != nil {
		t.Fatalf("Count query failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 readings after replay, got %d", count)
	}
}

func TestStoreIntegration_DfReadingDuplicateIsIntegrityError(t *testing.T) {
	s, ctx := startTestStore(t)
	_, dsID := seedDatastream(t, ctx, s)

	var appID, dfID int64
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		var typeID int64
		if err := tx.QueryRow(ctx,
			`INSERT INTO app_types (name, func_name) VALUES ('monitoring', 'monitoring') RETURNING id`).
			Scan(&typeID); err != nil {
			return err
		}
		if err := tx.QueryRow(ctx,
			`INSERT INTO applications (type_id, created_ts) VALUES ($1, $2) RETURNING id`,
			typeID, time.Now().UnixMilli()).Scan(&appID); err != nil {
			return err
		}
		return tx.QueryRow(ctx,
			`INSERT INTO datafeeds (name, parent_id, datastream_id, data_type_id)
			 VALUES ('temp in', $1, $2, (SELECT data_type_id FROM datastreams WHERE id = $2)) RETURNING id`,
			appID, dsID).Scan(&dfID)
	})
	if err != nil {
		t.Fatalf("Failed to seed datafeed: %v", err)
	}

	readings := []models.DfReading{{DatafeedID: dfID, Time: 60000, Value: 21.5}}
	if err := InsertDfReadings(ctx, s.Pool(), readings); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}
	err = InsertDfReadings(ctx, s.Pool(), readings)
	if !errors.Is(err, models.ErrIntegrity) {
		t.Errorf("Expected ErrIntegrity on duplicate, got %v", err)
	}
}

func TestStoreIntegration_SaveDatastreamChangedFields(t *testing.T) {
	s, ctx := startTestStore(t)
	_, dsID := seedDatastream(t, ctx, s)

	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		ds, err := GetDatastreamForUpdate(ctx, tx, dsID)
		if err != nil {
			return err
		}
		ds.Health = models.GradeWarning
		ds.Changes.Add("health")
		models.SetIfGreater(&ds.Changes, "last_valid_reading_ts", &ds.LastValidReadingTs, 5000)
		return SaveDatastream(ctx, tx, ds)
	})
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	ds, err := GetDatastreamForUpdate(ctx, s.Pool(), dsID)
	if err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if ds.Health != models.GradeWarning {
		t.Errorf("Expected health WARNING, got %v", ds.Health)
	}
	if ds.LastValidReadingTs != 5000 {
		t.Errorf("Expected last_valid_reading_ts 5000, got %d", ds.LastValidReadingTs)
	}
}

func TestStoreIntegration_NullTimestampRoundtrip(t *testing.T) {
	s, ctx := startTestStore(t)
	_, dsID := seedDatastream(t, ctx, s)

	ds, err := GetDatastreamForUpdate(ctx, s.Pool(), dsID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	// Unset in the database maps to the zero value in memory.
	if ds.LastValidReadingTs != 0 {
		t.Errorf("Expected zero last_valid_reading_ts for fresh datastream, got %d", ds.LastValidReadingTs)
	}
	if ds.TimeUpdate != 0 {
		t.Errorf("Expected zero time_update for fresh datastream, got %d", ds.TimeUpdate)
	}
}

func TestStoreIntegration_GetDeviceNotFound(t *testing.T) {
	s, ctx := startTestStore(t)

	_, err := GetDeviceByDevUI(ctx, s.Pool(), "ffffffffffffffff", false)
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestStoreIntegration_SynthesizerRangeQueries(t *testing.T) {
	s, ctx := startTestStore(t)
	_, dsID := seedDatastream(t, ctx, s)

	readings := []models.DsReading{
		{DatastreamID: dsID, Time: 1000, Value: 1},
		{DatastreamID: dsID, Time: 2000, Value: 2},
		{DatastreamID: dsID, Time: 3000, Value: 3},
	}
	if err := InsertDsReadings(ctx, s.Pool(), TableDsReadings, readings); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := InsertNoDataMarkers(ctx, s.Pool(), TableNdMarkers,
		[]models.NoDataMarker{{DatastreamID: dsID, Time: 2500}}); err != nil {
		t.Fatalf("Marker insert failed: %v", err)
	}

	last, err := LastDsReadingBefore(ctx, s.Pool(), dsID, 2000)
	if err != nil || last == nil || last.Time != 1000 {
		t.Errorf("LastDsReadingBefore(2000) = %v, %v; want reading at 1000", last, err)
	}
	first, err := FirstDsReadingAfter(ctx, s.Pool(), dsID, 1000)
	if err != nil || first == nil || first.Time != 2000 {
		t.Errorf("FirstDsReadingAfter(1000) = %v, %v; want reading at 2000", first, err)
	}
	window, err := ListDsReadings(ctx, s.Pool(), dsID, 1000, 3000, 10)
	if err != nil {
		t.Fatalf("ListDsReadings failed: %v", err)
	}
	if len(window) != 2 || window[0].Time != 2000 || window[1].Time != 3000 {
		t.Errorf("ListDsReadings(1000, 3000] = %v; want readings at 2000, 3000", window)
	}
	marker, err := LastNdMarkerAtOrBefore(ctx, s.Pool(), dsID, 3000)
	if err != nil || marker == nil || marker.Time != 2500 {
		t.Errorf("LastNdMarkerAtOrBefore(3000) = %v, %v; want marker at 2500", marker, err)
	}
	none, err := FirstNdMarkerAfter(ctx, s.Pool(), dsID, 2500)
	if err != nil || none != nil {
		t.Errorf("FirstNdMarkerAfter(2500) = %v, %v; want none", none, err)
	}
}
