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

const deviceColumns = `id, dev_ui, name, COALESCE(parent_id, 0), errors, warnings,
	health, msg_health, chld_health, next_upd_ts, created_ts`

func scanDevice(row interface{ Scan(...any) error }) (*models.Device, error) {
	var d models.Device
	var errorsRaw, warningsRaw []byte
	err := row.Scan(
		&d.ID, &d.DevUI, &d.Name, &d.ParentID, &errorsRaw, &warningsRaw,
		&d.Health, &d.MsgHealth, &d.ChldHealth, &d.NextUpdTs, &d.CreatedTs,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(errorsRaw, &d.Errors); err != nil {
		return nil, fmt.Errorf("device %d errors: %w", d.ID, err)
	}
	if err := json.Unmarshal(warningsRaw, &d.Warnings); err != nil {
		return nil, fmt.Errorf("device %d warnings: %w", d.ID, err)
	}
	return &d, nil
}

// GetDeviceByDevUI resolves a device by its unique bus identifier.
func GetDeviceByDevUI(ctx context.Context, q Querier, devUI string, forUpdate bool) (*models.Device, error) {
	sql := "SELECT " + deviceColumns + " FROM devices WHERE dev_ui = $1"
	if forUpdate {
		sql += " FOR UPDATE"
	}
	d, err := scanDevice(q.QueryRow(ctx, sql, devUI))
	if err != nil {
		return nil, MapError(fmt.Errorf("device %s: %w", devUI, err))
	}
	return d, nil
}

// GetDevice loads one device, optionally locking it.
func GetDevice(ctx context.Context, q Querier, id int64, forUpdate bool) (*models.Device, error) {
	sql := "SELECT " + deviceColumns + " FROM devices WHERE id = $1"
	if forUpdate {
		sql += " FOR UPDATE"
	}
	d, err := scanDevice(q.QueryRow(ctx, sql, id))
	if err != nil {
		return nil, MapError(fmt.Errorf("device %d: %w", id, err))
	}
	return d, nil
}

// ListDueDevices returns devices whose next_upd_ts has come, oldest first,
// locked for the updater sweep.
func ListDueDevices(ctx context.Context, q Querier, nowTs int64, limit int) ([]*models.Device, error) {
	sql := "SELECT " + deviceColumns + ` FROM devices
		WHERE next_upd_ts <= $1
		ORDER BY next_upd_ts ASC
		LIMIT $2
		FOR UPDATE`
	rows, err := q.Query(ctx, sql, nowTs, limit)
	if err != nil {
		return nil, MapError(err)
	}
	defer rows.Close()

	var out []*models.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ListChildDevices returns the devices attached to an asset.
func ListChildDevices(ctx context.Context, q Querier, assetID int64) ([]*models.Device, error) {
	sql := "SELECT " + deviceColumns + " FROM devices WHERE parent_id = $1"
	rows, err := q.Query(ctx, sql, assetID)
	if err != nil {
		return nil, MapError(err)
	}
	defer rows.Close()

	var out []*models.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// SaveDevice persists the device's changed fields.
func SaveDevice(ctx context.Context, q Querier, d *models.Device) error {
	return updateByChangeSet(ctx, q, "devices", d.ID, &d.Changes, func(field string) (any, error) {
		switch field {
		case "dev_ui":
			return d.DevUI, nil
		case "name":
			return d.Name, nil
		case "parent_id":
			return dbNullID(d.ParentID), nil
		case "errors":
			return jsonb(d.Errors)
		case "warnings":
			return jsonb(d.Warnings)
		case "health":
			return int16(d.Health), nil
		case "msg_health":
			return int16(d.MsgHealth), nil
		case "chld_health":
			return int16(d.ChldHealth), nil
		case "next_upd_ts":
			return d.NextUpdTs, nil
		}
		return nil, fmt.Errorf("unknown field %q", field)
	})
}

const datastreamColumns = `ds.id, ds.name, ds.parent_id, ds.data_type_id, ds.is_rbe,
	COALESCE(ds.time_update, 0), COALESCE(ds.time_change, 0), ds.till_now_margin,
	ds.is_enabled, ds.errors, ds.warnings,
	ds.health, ds.msg_health, ds.nd_health, ds.time_nd_health_error, ds.health_next_eval_ts,
	ds.max_rate_of_change, ds.max_plausible_value, ds.min_plausible_value,
	ds.ts_to_start_with, COALESCE(ds.last_valid_reading_ts, 0), ds.created_ts,
	dt.id, dt.name, dt.agg_type, dt.var_type, dt.is_totalizer`

const datastreamFrom = ` FROM datastreams ds JOIN datatypes dt ON dt.id = ds.data_type_id`

func scanDatastream(row interface{ Scan(...any) error }) (*models.Datastream, error) {
	var ds models.Datastream
	var dt models.DataType
	var errorsRaw, warningsRaw []byte
	err := row.Scan(
		&ds.ID, &ds.Name, &ds.ParentID, &ds.DataTypeID, &ds.IsRBE,
		&ds.TimeUpdate, &ds.TimeChange, &ds.TillNowMargin,
		&ds.IsEnabled, &errorsRaw, &warningsRaw,
		&ds.Health, &ds.MsgHealth, &ds.NdHealth, &ds.TimeNdHealthErr, &ds.HealthNextEvalTs,
		&ds.MaxRateOfChange, &ds.MaxPlausibleValue, &ds.MinPlausibleValue,
		&ds.TsToStartWith, &ds.LastValidReadingTs, &ds.CreatedTs,
		&dt.ID, &dt.Name, &dt.AggType, &dt.VarType, &dt.IsTotalizer,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(errorsRaw, &ds.Errors); err != nil {
		return nil, fmt.Errorf("datastream %d errors: %w", ds.ID, err)
	}
	if err := json.Unmarshal(warningsRaw, &ds.Warnings); err != nil {
		return nil, fmt.Errorf("datastream %d warnings: %w", ds.ID, err)
	}
	ds.DataType = &dt
	return &ds, nil
}

// GetDatastreamForUpdate loads and locks one datastream.
func GetDatastreamForUpdate(ctx context.Context, q Querier, id int64) (*models.Datastream, error) {
	sql := "SELECT " + datastreamColumns + datastreamFrom + " WHERE ds.id = $1 FOR UPDATE OF ds"
	ds, err := scanDatastream(q.QueryRow(ctx, sql, id))
	if err != nil {
		return nil, MapError(fmt.Errorf("datastream %d: %w", id, err))
	}
	return ds, nil
}

// ListEnabledDatastreams returns the enabled datastreams of a device.
func ListEnabledDatastreams(ctx context.Context, q Querier, deviceID int64, forUpdate bool) ([]*models.Datastream, error) {
	sql := "SELECT " + datastreamColumns + datastreamFrom + ` WHERE ds.parent_id = $1 AND ds.is_enabled`
	if forUpdate {
		sql += " FOR UPDATE OF ds"
	}
	rows, err := q.Query(ctx, sql, deviceID)
	if err != nil {
		return nil, MapError(err)
	}
	defer rows.Close()

	var out []*models.Datastream
	for rows.Next() {
		ds, err := scanDatastream(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ds)
	}
	return out, rows.Err()
}

// ListDatastreamsDueHealthEval returns enabled periodic datastreams whose
// nd-health is due for re-evaluation, locked for the sweep.
func ListDatastreamsDueHealthEval(ctx context.Context, q Querier, nowTs int64, limit int) ([]*models.Datastream, error) {
	sql := "SELECT " + datastreamColumns + datastreamFrom + `
		WHERE ds.health_next_eval_ts <= $1 AND ds.is_enabled AND ds.time_update IS NOT NULL
		ORDER BY ds.health_next_eval_ts ASC
		LIMIT $2
		FOR UPDATE OF ds`
	rows, err := q.Query(ctx, sql, nowTs, limit)
	if err != nil {
		return nil, MapError(err)
	}
	defer rows.Close()

	var out []*models.Datastream
	for rows.Next() {
		ds, err := scanDatastream(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ds)
	}
	return out, rows.Err()
}

// SaveDatastream persists the datastream's changed fields.
func SaveDatastream(ctx context.Context, q Querier, ds *models.Datastream) error {
	return updateByChangeSet(ctx, q, "datastreams", ds.ID, &ds.Changes, func(field string) (any, error) {
		switch field {
		case "name":
			return ds.Name, nil
		case "is_rbe":
			return ds.IsRBE, nil
		case "time_update":
			return dbNullTs(ds.TimeUpdate), nil
		case "time_change":
			return dbNullTs(ds.TimeChange), nil
		case "till_now_margin":
			return ds.TillNowMargin, nil
		case "is_enabled":
			return ds.IsEnabled, nil
		case "errors":
			return jsonb(ds.Errors)
		case "warnings":
			return jsonb(ds.Warnings)
		case "health":
			return int16(ds.Health), nil
		case "msg_health":
			return int16(ds.MsgHealth), nil
		case "nd_health":
			return int16(ds.NdHealth), nil
		case "time_nd_health_error":
			return ds.TimeNdHealthErr, nil
		case "health_next_eval_ts":
			return ds.HealthNextEvalTs, nil
		case "max_rate_of_change":
			return ds.MaxRateOfChange, nil
		case "max_plausible_value":
			return ds.MaxPlausibleValue, nil
		case "min_plausible_value":
			return ds.MinPlausibleValue, nil
		case "ts_to_start_with":
			return ds.TsToStartWith, nil
		case "last_valid_reading_ts":
			return dbNullTs(ds.LastValidReadingTs), nil
		}
		return nil, fmt.Errorf("unknown field %q", field)
	})
}

// dbNullID maps the in-memory "no parent" zero to a NULL foreign key.
func dbNullID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

// dbNullTs maps the in-memory "never" zero to a NULL timestamp.
func dbNullTs(ts int64) any {
	if ts == 0 {
		return nil
	}
	return ts
}
