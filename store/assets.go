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

const assetColumns = `id, name, COALESCE(parent_id, 0), asset_type,
	status, curr_state,
	COALESCE(last_status_update_ts, 0), COALESCE(last_curr_state_update_ts, 0),
	status_use, curr_state_use, health, next_upd_ts, reeval_fields`

func scanAsset(row interface{ Scan(...any) error }) (*models.Asset, error) {
	var a models.Asset
	var status, currState *int16
	var reevalRaw []byte
	err := row.Scan(
		&a.ID, &a.Name, &a.ParentID, &a.AssetType,
		&status, &currState,
		&a.LastStatusUpdateTs, &a.LastCurrStateUpdateTs,
		&a.StatusUse, &a.CurrStateUse, &a.Health, &a.NextUpdTs, &reevalRaw,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(reevalRaw, &a.ReevalFieldSet); err != nil {
		return nil, fmt.Errorf("asset %d reeval_fields: %w", a.ID, err)
	}
	a.Status = nullGradeFromDb(status)
	a.CurrState = nullGradeFromDb(currState)
	return &a, nil
}

// ListDueAssets returns assets whose next_upd_ts has come, oldest first,
// locked for the updater sweep.
func ListDueAssets(ctx context.Context, q Querier, nowTs int64, limit int) ([]*models.Asset, error) {
	sql := "SELECT " + assetColumns + ` FROM assets
		WHERE next_upd_ts <= $1
		ORDER BY next_upd_ts ASC
		LIMIT $2
		FOR UPDATE`
	rows, err := q.Query(ctx, sql, nowTs, limit)
	if err != nil {
		return nil, MapError(err)
	}
	defer rows.Close()

	var out []*models.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetAsset loads one asset, optionally locking it.
func GetAsset(ctx context.Context, q Querier, id int64, forUpdate bool) (*models.Asset, error) {
	sql := "SELECT " + assetColumns + " FROM assets WHERE id = $1"
	if forUpdate {
		sql += " FOR UPDATE"
	}
	a, err := scanAsset(q.QueryRow(ctx, sql, id))
	if err != nil {
		return nil, MapError(fmt.Errorf("asset %d: %w", id, err))
	}
	return a, nil
}

// ListChildAssets returns the assets attached to a parent asset.
func ListChildAssets(ctx context.Context, q Querier, assetID int64) ([]*models.Asset, error) {
	sql := "SELECT " + assetColumns + " FROM assets WHERE parent_id = $1"
	rows, err := q.Query(ctx, sql, assetID)
	if err != nil {
		return nil, MapError(err)
	}
	defer rows.Close()

	var out []*models.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SaveAsset persists the asset's changed fields.
func SaveAsset(ctx context.Context, q Querier, a *models.Asset) error {
	return updateByChangeSet(ctx, q, "assets", a.ID, &a.Changes, func(field string) (any, error) {
		switch field {
		case "name":
			return a.Name, nil
		case "parent_id":
			return dbNullID(a.ParentID), nil
		case "asset_type":
			return a.AssetType, nil
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
		case "health":
			return int16(a.Health), nil
		case "next_upd_ts":
			return a.NextUpdTs, nil
		case "reeval_fields":
			return jsonb(a.ReevalFieldSet)
		}
		return nil, fmt.Errorf("unknown field %q", field)
	})
}
