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
	"fmt"

	"github.com/jackc/pgx/v5"

	"go.corp.nvidia.com/monapps/models"
)

// Reading tables. The three rejection tables share the shape of ds_readings.
const (
	TableDsReadings        = "ds_readings"
	TableUnusedDsReadings  = "unused_ds_readings"
	TableInvalidDsReadings = "invalid_ds_readings"
	TableNonRocDsReadings  = "nonroc_ds_readings"

	TableNdMarkers       = "nd_markers"
	TableUnusedNdMarkers = "unused_nd_markers"
)

// insertBatchSize bounds one multi-row INSERT statement.
const insertBatchSize = 100

// InsertDsReadings bulk-inserts readings into the given table in batches,
// ignoring rows that already exist (the composite key deduplicates
// replayed messages).
func InsertDsReadings(ctx context.Context, q Querier, table string, readings []models.DsReading) error {
	for start := 0; start < len(readings); start += insertBatchSize {
		end := min(start+insertBatchSize, len(readings))
		batch := readings[start:end]

		sql := "INSERT INTO " + table + " (datastream_id, time, value) VALUES "
		args := make([]any, 0, len(batch)*3)
		for i, r := range batch {
			if i > 0 {
				sql += ", "
			}
			sql += fmt.Sprintf("($%d, $%d, $%d)", i*3+1, i*3+2, i*3+3)
			args = append(args, r.DatastreamID, r.Time, r.Value)
		}
		sql += " ON CONFLICT DO NOTHING"

		if _, err := q.Exec(ctx, sql, args...); err != nil {
			return MapError(fmt.Errorf("insert %s: %w", table, err))
		}
	}
	return nil
}

// InsertNoDataMarkers bulk-inserts nodata markers, ignoring duplicates.
func InsertNoDataMarkers(ctx context.Context, q Querier, table string, markers []models.NoDataMarker) error {
	for start := 0; start < len(markers); start += insertBatchSize {
		end := min(start+insertBatchSize, len(markers))
		batch := markers[start:end]

		sql := "INSERT INTO " + table + " (datastream_id, time) VALUES "
		args := make([]any, 0, len(batch)*2)
		for i, m := range batch {
			if i > 0 {
				sql += ", "
			}
			sql += fmt.Sprintf("($%d, $%d)", i*2+1, i*2+2)
			args = append(args, m.DatastreamID, m.Time)
		}
		sql += " ON CONFLICT DO NOTHING"

		if _, err := q.Exec(ctx, sql, args...); err != nil {
			return MapError(fmt.Errorf("insert %s: %w", table, err))
		}
	}
	return nil
}

// InsertDfReadings bulk-inserts synthesized readings. Duplicates are NOT
// ignored: a conflicting write means two writers raced on one datafeed and
// surfaces as models.ErrIntegrity.
func InsertDfReadings(ctx context.Context, q Querier, readings []models.DfReading) error {
	for start := 0; start < len(readings); start += insertBatchSize {
		end := min(start+insertBatchSize, len(readings))
		batch := readings[start:end]

		sql := "INSERT INTO df_readings (datafeed_id, time, value, restored) VALUES "
		args := make([]any, 0, len(batch)*4)
		for i, r := range batch {
			if i > 0 {
				sql += ", "
			}
			sql += fmt.Sprintf("($%d, $%d, $%d, $%d)", i*4+1, i*4+2, i*4+3, i*4+4)
			args = append(args, r.DatafeedID, r.Time, r.Value, r.Restored)
		}

		if _, err := q.Exec(ctx, sql, args...); err != nil {
			return MapError(fmt.Errorf("insert df_readings: %w", err))
		}
	}
	return nil
}

// LastDsReadingBefore returns the newest reading strictly before ts, or nil.
func LastDsReadingBefore(ctx context.Context, q Querier, dsID, ts int64) (*models.DsReading, error) {
	return queryOneDsReading(ctx, q,
		`SELECT datastream_id, time, value FROM ds_readings
		 WHERE datastream_id = $1 AND time < $2 ORDER BY time DESC LIMIT 1`, dsID, ts)
}

// LastDsReadingAtOrBefore returns the newest reading at or before ts, or nil.
func LastDsReadingAtOrBefore(ctx context.Context, q Querier, dsID, ts int64) (*models.DsReading, error) {
	return queryOneDsReading(ctx, q,
		`SELECT datastream_id, time, value FROM ds_readings
		 WHERE datastream_id = $1 AND time <= $2 ORDER BY time DESC LIMIT 1`, dsID, ts)
}

// FirstDsReadingAfter returns the oldest reading strictly after ts, or nil.
func FirstDsReadingAfter(ctx context.Context, q Querier, dsID, ts int64) (*models.DsReading, error) {
	return queryOneDsReading(ctx, q,
		`SELECT datastream_id, time, value FROM ds_readings
		 WHERE datastream_id = $1 AND time > $2 ORDER BY time ASC LIMIT 1`, dsID, ts)
}

// LastDsReadingAfter returns the newest reading strictly after ts, or nil.
func LastDsReadingAfter(ctx context.Context, q Querier, dsID, ts int64) (*models.DsReading, error) {
	return queryOneDsReading(ctx, q,
		`SELECT datastream_id, time, value FROM ds_readings
		 WHERE datastream_id = $1 AND time > $2 ORDER BY time DESC LIMIT 1`, dsID, ts)
}

// LastDsReading returns the newest reading of the datastream, or nil.
func LastDsReading(ctx context.Context, q Querier, dsID int64) (*models.DsReading, error) {
	return queryOneDsReading(ctx, q,
		`SELECT datastream_id, time, value FROM ds_readings
		 WHERE datastream_id = $1 ORDER BY time DESC LIMIT 1`, dsID)
}

func queryOneDsReading(ctx context.Context, q Querier, sql string, args ...any) (*models.DsReading, error) {
	var r models.DsReading
	err := q.QueryRow(ctx, sql, args...).Scan(&r.DatastreamID, &r.Time, &r.Value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, MapError(err)
	}
	return &r, nil
}

// ListDsReadings returns readings with after < time <= until, oldest first,
// capped at limit.
func ListDsReadings(ctx context.Context, q Querier, dsID, after, until int64, limit int) ([]models.DsReading, error) {
	rows, err := q.Query(ctx,
		`SELECT datastream_id, time, value FROM ds_readings
		 WHERE datastream_id = $1 AND time > $2 AND time <= $3
		 ORDER BY time ASC LIMIT $4`, dsID, after, until, limit)
	if err != nil {
		return nil, MapError(err)
	}
	defer rows.Close()

	var out []models.DsReading
	for rows.Next() {
		var r models.DsReading
		if err := rows.Scan(&r.DatastreamID, &r.Time, &r.Value); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LastNdMarkerAtOrBefore returns the newest marker at or before ts, or nil.
func LastNdMarkerAtOrBefore(ctx context.Context, q Querier, dsID, ts int64) (*models.NoDataMarker, error) {
	return queryOneNdMarker(ctx, q,
		`SELECT datastream_id, time FROM nd_markers
		 WHERE datastream_id = $1 AND time <= $2 ORDER BY time DESC LIMIT 1`, dsID, ts)
}

// FirstNdMarkerAfter returns the oldest marker strictly after ts, or nil.
func FirstNdMarkerAfter(ctx context.Context, q Querier, dsID, ts int64) (*models.NoDataMarker, error) {
	return queryOneNdMarker(ctx, q,
		`SELECT datastream_id, time FROM nd_markers
		 WHERE datastream_id = $1 AND time > $2 ORDER BY time ASC LIMIT 1`, dsID, ts)
}

// LastNdMarkerAfter returns the newest marker strictly after ts, or nil.
func LastNdMarkerAfter(ctx context.Context, q Querier, dsID, ts int64) (*models.NoDataMarker, error) {
	return queryOneNdMarker(ctx, q,
		`SELECT datastream_id, time FROM nd_markers
		 WHERE datastream_id = $1 AND time > $2 ORDER BY time DESC LIMIT 1`, dsID, ts)
}

// LastNdMarker returns the newest marker of the datastream, or nil.
func LastNdMarker(ctx context.Context, q Querier, dsID int64) (*models.NoDataMarker, error) {
	return queryOneNdMarker(ctx, q,
		`SELECT datastream_id, time FROM nd_markers
		 WHERE datastream_id = $1 ORDER BY time DESC LIMIT 1`, dsID)
}

func queryOneNdMarker(ctx context.Context, q Querier, sql string, args ...any) (*models.NoDataMarker, error) {
	var m models.NoDataMarker
	err := q.QueryRow(ctx, sql, args...).Scan(&m.DatastreamID, &m.Time)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, MapError(err)
	}
	return &m, nil
}

// ListNdMarkers returns markers with after < time <= until, oldest first.
func ListNdMarkers(ctx context.Context, q Querier, dsID, after, until int64) ([]models.NoDataMarker, error) {
	rows, err := q.Query(ctx,
		`SELECT datastream_id, time FROM nd_markers
		 WHERE datastream_id = $1 AND time > $2 AND time <= $3
		 ORDER BY time ASC`, dsID, after, until)
	if err != nil {
		return nil, MapError(err)
	}
	defer rows.Close()

	var out []models.NoDataMarker
	for rows.Next() {
		var m models.NoDataMarker
		if err := rows.Scan(&m.DatastreamID, &m.Time); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// LatestNativeDfReadings returns up to limit non-restored readings at or
// before ts, oldest first.
func LatestNativeDfReadings(ctx context.Context, q Querier, dfID, ts int64, limit int) ([]models.DfReading, error) {
	rows, err := q.Query(ctx,
		`SELECT datafeed_id, time, value, restored FROM (
			SELECT datafeed_id, time, value, restored FROM df_readings
			WHERE datafeed_id = $1 AND time <= $2 AND NOT restored
			ORDER BY time DESC LIMIT $3
		 ) latest ORDER BY time ASC`, dfID, ts, limit)
	if err != nil {
		return nil, MapError(err)
	}
	defer rows.Close()

	var out []models.DfReading
	for rows.Next() {
		var r models.DfReading
		if err := rows.Scan(&r.DatafeedID, &r.Time, &r.Value, &r.Restored); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetDfReadingAt returns the reading at exactly ts, or nil.
func GetDfReadingAt(ctx context.Context, q Querier, dfID, ts int64) (*models.DfReading, error) {
	var r models.DfReading
	err := q.QueryRow(ctx,
		`SELECT datafeed_id, time, value, restored FROM df_readings
		 WHERE datafeed_id = $1 AND time = $2`, dfID, ts).
		Scan(&r.DatafeedID, &r.Time, &r.Value, &r.Restored)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, MapError(err)
	}
	return &r, nil
}

// ListDfReadings returns readings with after < time <= until, oldest first.
func ListDfReadings(ctx context.Context, q Querier, dfID, after, until int64) ([]models.DfReading, error) {
	rows, err := q.Query(ctx,
		`SELECT datafeed_id, time, value, restored FROM df_readings
		 WHERE datafeed_id = $1 AND time > $2 AND time <= $3
		 ORDER BY time ASC`, dfID, after, until)
	if err != nil {
		return nil, MapError(err)
	}
	defer rows.Close()

	var out []models.DfReading
	for rows.Next() {
		var r models.DfReading
		if err := rows.Scan(&r.DatafeedID, &r.Time, &r.Value, &r.Restored); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
