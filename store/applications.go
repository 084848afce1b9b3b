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
	"encoding/json"
	"fmt"

	"go.corp.nvidia.com/monapps/models"
)

const applicationColumns = `a.id, a.type_id, COALESCE(a.parent_id, 0), a.time_resample,
	a.settings, a.state, a.errors, a.warnings,
	a.cursor_ts, a.is_enabled, a.invoc_interval_ms, a.catch_up_interval_ms, a.is_catching_up,
	a.func_version, a.status, a.curr_state,
	COALESCE(a.last_status_update_ts, 0), COALESCE(a.last_curr_state_update_ts, 0),
	a.status_use, a.curr_state_use,
	a.time_status_stale, a.time_curr_state_stale, a.is_status_stale, a.is_curr_state_stale,
	a.health, a.time_health_error, a.created_ts,
	t.id, t.name, t.description, t.func_name`

const applicationFrom = ` FROM applications a JOIN app_types t ON t.id = a.type_id`

func scanApplication(row interface{ Scan(...any) error }) (*models.Application, error) {
	var a models.Application
	var at models.AppType
	var errorsRaw, warningsRaw []byte
	var status, currState *int16
	err := row.Scan(
		&a.ID, &a.TypeID, &a.ParentID, &a.TimeResample,
		&a.Settings, &a.State, &errorsRaw, &warningsRaw,
		&a.CursorTs, &a.IsEnabled, &a.InvocIntervalMs, &a.CatchUpIntervalMs, &a.IsCatchingUp,
		&a.FuncVersion, &status, &currState,
		&a.LastStatusUpdateTs, &a.LastCurrStateUpdateTs,
		&a.StatusUse, &a.CurrStateUse,
		&a.TimeStatusStale, &a.TimeCurrStateStale, &a.IsStatusStale, &a.IsCurrStateStale,
		&a.Health, &a.TimeHealthError, &a.CreatedTs,
		&at.ID, &at.Name, &at.Description, &at.FuncName,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(errorsRaw, &a.Errors); err != nil {
		return nil, fmt.Errorf("application %d errors: %w", a.ID, err)
	}
	if err := json.Unmarshal(warningsRaw, &a.Warnings); err != nil {
		return nil, fmt.Errorf("application %d warnings: %w", a.ID, err)
	}
	a.Status = nullGradeFromDb(status)
	a.CurrState = nullGradeFromDb(currState)
	a.Type = &at
	return &a, nil
}

// GetApplication loads an application with its type, optionally locking the
// application row for an evaluation run.
func GetApplication(ctx context.Context, q Querier, id int64, forUpdate bool) (*models.Application, error) {
	sql := "SELECT " + applicationColumns + applicationFrom + " WHERE a.id = $1"
	if forUpdate {
		sql += " FOR UPDATE OF a"
	}
	a, err := scanApplication(q.QueryRow(ctx, sql, id))
	if err != nil {
		return nil, MapError(fmt.Errorf("application %d: %w", id, err))
	}
	return a, nil
}

// ListChildApplications returns the applications attached to an asset.
func ListChildApplications(ctx context.Context, q Querier, assetID int64) ([]*models.Application, error) {
	sql := "SELECT " + applicationColumns + applicationFrom + " WHERE a.parent_id = $1"
	rows, err := q.Query(ctx, sql, assetID)
	if err != nil {
		return nil, MapError(err)
	}
	defer rows.Close()

	var out []*models.Application
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SaveApplication persists the application's changed fields.
func SaveApplication(ctx context.Context, q Querier, a *models.Application) error {
	return updateByChangeSet(ctx, q, "applications", a.ID, &a.Changes, func(field string) (any, error) {
		switch field {
		case "parent_id":
			return dbNullID(a.ParentID), nil
		case "time_resample":
			return a.TimeResample, nil
		case "settings":
			return []byte(a.Settings), nil
		case "state":
			return []byte(a.State), nil
		case "errors":
			return jsonb(a.Errors)
		case "warnings":
			return jsonb(a.Warnings)
		case "cursor_ts":
			return a.CursorTs, nil
		case "is_enabled":
			return a.IsEnabled, nil
		case "invoc_interval_ms":
			return a.InvocIntervalMs, nil
		case "catch_up_interval_ms":
			return a.CatchUpIntervalMs, nil
		case "is_catching_up":
			return a.IsCatchingUp, nil
		case "func_version":
			return a.FuncVersion, nil
		case "status":
			return nullGradeToDb(a.Status), nil
		case "curr_state":
			return nullGradeToDb(a.CurrState), nil
		case "last_status_update_ts":
			return dbNullTs(a.LastStatusUpdateTs), nil
		case "last_curr_state_update_ts":
			return dbNullTs(a.LastCurrStateUpdateTs), nil
		case "status_use":
			return int16(a.StatusUse), nil
		case "curr_state_use":
			return int16(a.CurrStateUse), nil
		case "time_status_stale":
			return a.TimeStatusStale, nil
		case "time_curr_state_stale":
			return a.TimeCurrStateStale, nil
		case "is_status_stale":
			return a.IsStatusStale, nil
		case "is_curr_state_stale":
			return a.IsCurrStateStale, nil
		case "health":
			return int16(a.Health), nil
		case "time_health_error":
			return a.TimeHealthError, nil
		}
		return nil, fmt.Errorf("unknown field %q", field)
	})
}

// GetTaskByApplication loads and locks the application's scheduling record.
func GetTaskByApplication(ctx context.Context, q Querier, appID int64) (*models.Task, error) {
	sql := `SELECT id, application_id, name, interval_ms FROM tasks
		WHERE application_id = $1 FOR UPDATE`
	var t models.Task
	err := q.QueryRow(ctx, sql, appID).Scan(&t.ID, &t.ApplicationID, &t.Name, &t.IntervalMs)
	if err != nil {
		return nil, MapError(fmt.Errorf("task of application %d: %w", appID, err))
	}
	return &t, nil
}

// SaveTask persists the task's changed fields.
func SaveTask(ctx context.Context, q Querier, t *models.Task) error {
	return updateByChangeSet(ctx, q, "tasks", t.ID, &t.Changes, func(field string) (any, error) {
		switch field {
		case "name":
			return t.Name, nil
		case "interval_ms":
			return t.IntervalMs, nil
		}
		return nil, fmt.Errorf("unknown field %q", field)
	})
}

// ListApplicationIDsWithTasks returns every application id that has a task
// row, for seeding the scheduler at startup.
func ListApplicationIDsWithTasks(ctx context.Context, q Querier) ([]int64, error) {
	rows, err := q.Query(ctx, `SELECT application_id FROM tasks ORDER BY application_id`)
	if err != nil {
		return nil, MapError(err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

const datafeedColumns = `df.id, df.name, df.parent_id, COALESCE(df.datastream_id, 0),
	df.data_type_id, df.df_type, df.is_rest_on, df.is_aug_on, df.aug_policy,
	a.time_resample, df.ts_to_start_with, COALESCE(df.last_reading_ts, 0),
	dt.id, dt.name, dt.agg_type, dt.var_type, dt.is_totalizer`

const datafeedFrom = ` FROM datafeeds df
	JOIN applications a ON a.id = df.parent_id
	JOIN datatypes dt ON dt.id = df.data_type_id`

func scanDatafeed(row interface{ Scan(...any) error }) (*models.Datafeed, error) {
	var df models.Datafeed
	var dt models.DataType
	err := row.Scan(
		&df.ID, &df.Name, &df.ParentID, &df.DatastreamID,
		&df.DataTypeID, &df.DfType, &df.IsRestOn, &df.IsAugOn, &df.AugPolicy,
		&df.TimeResample, &df.TsToStartWith, &df.LastReadingTs,
		&dt.ID, &dt.Name, &dt.AggType, &dt.VarType, &dt.IsTotalizer,
	)
	if err != nil {
		return nil, err
	}
	df.DataType = &dt
	return &df, nil
}

// ListDatafeeds returns the application's datafeeds, native first, locking
// the datafeed rows when requested.
func ListDatafeeds(ctx context.Context, q Querier, appID int64, forUpdate bool) ([]*models.Datafeed, error) {
	sql := "SELECT " + datafeedColumns + datafeedFrom + ` WHERE df.parent_id = $1
		ORDER BY df.datastream_id NULLS LAST, df.id`
	if forUpdate {
		sql += " FOR UPDATE OF df"
	}
	rows, err := q.Query(ctx, sql, appID)
	if err != nil {
		return nil, MapError(err)
	}
	defer rows.Close()

	var out []*models.Datafeed
	for rows.Next() {
		df, err := scanDatafeed(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, df)
	}
	return out, rows.Err()
}

// GetDatafeedForUpdate loads and locks one datafeed.
func GetDatafeedForUpdate(ctx context.Context, q Querier, id int64) (*models.Datafeed, error) {
	sql := "SELECT " + datafeedColumns + datafeedFrom + " WHERE df.id = $1 FOR UPDATE OF df"
	df, err := scanDatafeed(q.QueryRow(ctx, sql, id))
	if err != nil {
		return nil, MapError(fmt.Errorf("datafeed %d: %w", id, err))
	}
	return df, nil
}

// SaveDatafeed persists the datafeed's changed fields.
func SaveDatafeed(ctx context.Context, q Querier, df *models.Datafeed) error {
	return updateByChangeSet(ctx, q, "datafeeds", df.ID, &df.Changes, func(field string) (any, error) {
		switch field {
		case "name":
			return df.Name, nil
		case "datastream_id":
			return dbNullID(df.DatastreamID), nil
		case "df_type":
			return df.DfType, nil
		case "is_rest_on":
			return df.IsRestOn, nil
		case "is_aug_on":
			return df.IsAugOn, nil
		case "aug_policy":
			return int16(df.AugPolicy), nil
		case "ts_to_start_with":
			return df.TsToStartWith, nil
		case "last_reading_ts":
			return dbNullTs(df.LastReadingTs), nil
		}
		return nil, fmt.Errorf("unknown field %q", field)
	})
}
