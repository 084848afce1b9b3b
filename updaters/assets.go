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

// ancestorCap bounds how many assets beyond the due slice one sweep may
// pull in while climbing parent chains.
const ancestorCap = 2 * models.MaxAssetsToUpd

// AssetUpdater recomputes the aggregated grades of assets whose
// re-evaluation is due and propagates the changes up the tree.
type AssetUpdater struct {
	st        *store.Store
	logger    *slog.Logger
	committer Committer

	now func() int64
}

// NewAssetUpdater builds the updater. committer may be nil when change
// events are not published.
func NewAssetUpdater(st *store.Store, logger *slog.Logger, committer Committer) *AssetUpdater {
	return &AssetUpdater{st: st, logger: logger, committer: committer, now: timegrid.NowMs}
}

type assetNode struct {
	asset    *models.Asset
	children []*assetNode
}

// Sweep runs one pass: lock the due assets, pull their ancestor chains in,
// then process the resulting forest leaves first so a change reaches the
// top of the tree within a single transaction.
func (u *AssetUpdater) Sweep(ctx context.Context) error {
	var saved []any
	err := u.st.WithTx(ctx, func(tx pgx.Tx) error {
		saved = nil
		nowTs := u.now()
		due, err := store.ListDueAssets(ctx, tx, nowTs, models.MaxAssetsToUpd)
		if err != nil {
			return err
		}
		if len(due) == 0 {
			return nil
		}

		nodes := make(map[int64]*assetNode, len(due))
		queue := make([]int64, 0, len(due))
		for _, a := range due {
			nodes[a.ID] = &assetNode{asset: a}
			queue = append(queue, a.ID)
		}
		for len(queue) > 0 {
			id := queue[0]
			queue = queue[1:]
			pid := nodes[id].asset.ParentID
			if pid == 0 || pid == id {
				continue
			}
			if _, ok := nodes[pid]; ok {
				continue
			}
			if len(nodes) >= ancestorCap {
				// The rest of the chain is reached by enqueueing only.
				continue
			}
			parent, err := store.GetAsset(ctx, tx, pid, true)
			if err != nil {
				return err
			}
			nodes[pid] = &assetNode{asset: parent}
			queue = append(queue, pid)
		}

		var roots []*assetNode
		for _, n := range nodes {
			if p, ok := nodes[n.asset.ParentID]; ok && p != n {
				p.children = append(p.children, n)
			} else {
				roots = append(roots, n)
			}
		}

		// Parents outside the loaded slice are not processed this pass,
		// only marked and enqueued.
		external := make(map[int64]*models.Asset)
		for _, root := range roots {
			if err := u.processSubtree(ctx, tx, root, nodes, external, nowTs, &saved); err != nil {
				return err
			}
		}
		for _, parent := range external {
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

func (u *AssetUpdater) processSubtree(
	ctx context.Context, tx pgx.Tx, node *assetNode,
	nodes map[int64]*assetNode, external map[int64]*models.Asset,
	nowTs int64, saved *[]any,
) error {
	for _, child := range node.children {
		if err := u.processSubtree(ctx, tx, child, nodes, external, nowTs, saved); err != nil {
			return err
		}
	}
	return u.updateNode(ctx, tx, node.asset, nodes, external, nowTs, saved)
}

func (u *AssetUpdater) updateNode(
	ctx context.Context, tx pgx.Tx, asset *models.Asset,
	nodes map[int64]*assetNode, external map[int64]*models.Asset,
	nowTs int64, saved *[]any,
) error {
	if len(asset.ReevalFieldSet) > 0 {
		if err := u.reevalFields(ctx, tx, asset, nodes, external, nowTs); err != nil {
			return err
		}
		asset.ReevalFieldSet = nil
		asset.Changes.Add("reeval_fields")
	}

	// Park until a child enqueues it again.
	models.SetIfChanged(&asset.Changes, "next_upd_ts", &asset.NextUpdTs, models.MaxTsMs)

	if !asset.Changes.Empty() {
		if err := store.SaveAsset(ctx, tx, asset); err != nil {
			return err
		}
		*saved = append(*saved, asset)
	}
	return nil
}

func (u *AssetUpdater) reevalFields(
	ctx context.Context, tx pgx.Tx, asset *models.Asset,
	nodes map[int64]*assetNode, external map[int64]*models.Asset, nowTs int64,
) error {
	apps, err := store.ListChildApplications(ctx, tx, asset.ID)
	if err != nil {
		return err
	}
	devs, err := store.ListChildDevices(ctx, tx, asset.ID)
	if err != nil {
		return err
	}
	subAssets, err := store.ListChildAssets(ctx, tx, asset.ID)
	if err != nil {
		return err
	}

	healthChildren := make([]models.HealthChild, 0, len(apps)+len(devs)+len(subAssets))
	statusChildren := make([]models.GradedChild, 0, len(apps)+len(subAssets))
	csChildren := make([]models.CurrStateChild, 0, len(apps)+len(subAssets))
	for _, a := range apps {
		healthChildren = append(healthChildren, a)
		statusChildren = append(statusChildren, a)
		csChildren = append(csChildren, a)
	}
	for _, d := range devs {
		healthChildren = append(healthChildren, d)
	}
	for _, s := range subAssets {
		healthChildren = append(healthChildren, s)
		statusChildren = append(statusChildren, s)
		csChildren = append(csChildren, s)
	}

	for _, field := range asset.ReevalFieldSet {
		changed := false
		switch field {
		case "health":
			changed = models.SetIfChanged(&asset.Changes, "health", &asset.Health,
				models.DeriveHealthFromChildren(healthChildren))
		case "status":
			changed = models.SetIfChanged(&asset.Changes, "status", &asset.Status,
				models.DeriveStatusFromChildren(statusChildren))
			if changed {
				asset.LastStatusUpdateTs = nowTs
				asset.Changes.Add("last_status_update_ts")
			}
		case "curr_state":
			changed = models.SetIfChanged(&asset.Changes, "curr_state", &asset.CurrState,
				models.DeriveCurrStateFromChildren(csChildren))
			if changed {
				asset.LastCurrStateUpdateTs = nowTs
				asset.Changes.Add("last_curr_state_update_ts")
			}
		default:
			u.logger.Warn("Unknown reeval field", "asset", asset.String(), "field", field)
			continue
		}
		if changed {
			u.logger.Debug("Aggregated field changed",
				"asset", asset.String(), "field", field)
			if err := u.propagate(ctx, tx, asset.ParentID, []string{field}, nodes, external, nowTs); err != nil {
				return err
			}
		}
	}

	// A full re-evaluation cascades: the parent re-checks every field too,
	// changed or not.
	if len(asset.ReevalFieldSet) >= len(models.ReevalFields) {
		if err := u.propagate(ctx, tx, asset.ParentID, models.ReevalFields, nodes, external, nowTs); err != nil {
			return err
		}
	}
	return nil
}

// propagate records a re-evaluation request on the parent. A parent inside
// the loaded slice is updated in memory and processed later in this pass;
// one outside it is locked, marked and enqueued for a following sweep.
func (u *AssetUpdater) propagate(
	ctx context.Context, tx pgx.Tx, parentID int64, fields []string,
	nodes map[int64]*assetNode, external map[int64]*models.Asset, nowTs int64,
) error {
	if parentID == 0 {
		return nil
	}
	if n, ok := nodes[parentID]; ok {
		models.UpdateReevalFields(n.asset, fields...)
		return nil
	}
	parent, ok := external[parentID]
	if !ok {
		var err error
		parent, err = store.GetAsset(ctx, tx, parentID, true)
		if err != nil {
			return err
		}
		external[parentID] = parent
	}
	models.UpdateReevalFields(parent, fields...)
	models.EnqueueUpdate(parent, nowTs, models.DefaultEnqueueCoef)
	return nil
}
