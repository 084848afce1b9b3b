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

// Package publish turns saved entities into change events on the
// processed-data MQTT surface. Each save of an entity with tracked
// changes emits a camelCase diff on procdata/<instance>/<model>/<pk>;
// a save without tracked changes (a bulk/admin save) emits the whole
// published snapshot instead.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"go.corp.nvidia.com/monapps/models"
	"go.corp.nvidia.com/monapps/store"
	"go.corp.nvidia.com/monapps/utils/timegrid"
)

// Broker is the outgoing MQTT surface.
type Broker interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	IsConnected() bool
}

// publishDelay lets the enclosing transaction commit before subscribers
// react to the event.
const publishDelay = 50 * time.Millisecond

// Published field whitelists. Everything else an entity tracks stays
// internal to the engine.
var (
	applicationPublishedFields = []string{
		"cursor_ts",
		"status", "is_status_stale", "last_status_update_ts",
		"curr_state", "is_curr_state_stale", "last_curr_state_update_ts",
		"health", "is_enabled", "is_catching_up",
	}
	datafeedPublishedFields   = []string{"last_reading_ts"}
	datastreamPublishedFields = []string{"health", "last_valid_reading_ts", "is_enabled"}
	devicePublishedFields     = []string{"health"}
	assetPublishedFields      = []string{
		"status", "last_status_update_ts",
		"curr_state", "last_curr_state_update_ts",
		"health",
	}
)

// Publisher implements the Committer interfaces of the processing
// packages: Commit publishes the entity's tracked changes and resets its
// change set.
type Publisher struct {
	broker     Broker
	st         *store.Store
	instanceID string
	logger     *slog.Logger

	delay time.Duration
	now   func() int64
}

// New builds a publisher. st may be nil when bulk-save parent
// re-evaluation is not needed (processing services always save with a
// change set).
func New(broker Broker, st *store.Store, instanceID string, logger *slog.Logger) *Publisher {
	return &Publisher{
		broker:     broker,
		st:         st,
		instanceID: instanceID,
		logger:     logger,
		delay:      publishDelay,
		now:        timegrid.NowMs,
	}
}

// Commit publishes the entity's changed published fields as an update
// event and resets the change set. Tasks change silently: they have no
// published surface.
func (p *Publisher) Commit(entity any) {
	switch v := entity.(type) {
	case *models.Application:
		p.emit(pubApplication{v}, "u", v.Changes.Sorted())
		v.Changes.Reset()
	case *models.Datafeed:
		p.emit(pubDatafeed{v}, "u", v.Changes.Sorted())
		v.Changes.Reset()
	case *models.Datastream:
		p.emit(pubDatastream{v}, "u", v.Changes.Sorted())
		v.Changes.Reset()
	case *models.Device:
		p.emit(pubDevice{v}, "u", v.Changes.Sorted())
		v.Changes.Reset()
	case *models.Asset:
		p.emit(pubAsset{v}, "u", v.Changes.Sorted())
		v.Changes.Reset()
	case *models.Task:
		v.Changes.Reset()
	default:
		p.logger.Warn("Commit of an unpublishable entity", "type", fmt.Sprintf("%T", entity))
	}
}

// Created publishes the full snapshot of a newly created entity.
func (p *Publisher) Created(entity any) {
	p.emitSnapshot(entity, "c")
}

// Deleted publishes a delete event for the entity and, when st is set,
// asks its old parent asset to re-evaluate everything.
func (p *Publisher) Deleted(ctx context.Context, entity any, parentAssetID int64) {
	p.emitSnapshot(entity, "d")
	if parentAssetID != 0 {
		if err := p.TotalParentUpdate(ctx, parentAssetID); err != nil {
			p.logger.Error("Total parent update failed",
				"asset_id", parentAssetID, "error", err)
		}
	}
}

// BulkSaved handles a save without a change set: the whole snapshot is
// published and the parent re-evaluates every aggregated field.
func (p *Publisher) BulkSaved(ctx context.Context, entity any, parentAssetID int64) {
	p.emitSnapshot(entity, "u")
	if parentAssetID != 0 {
		if err := p.TotalParentUpdate(ctx, parentAssetID); err != nil {
			p.logger.Error("Total parent update failed",
				"asset_id", parentAssetID, "error", err)
		}
	}
}

// TotalParentUpdate marks every aggregated field of the asset for
// re-evaluation and pulls its next update close (ahead of ordinary
// child-triggered updates).
func (p *Publisher) TotalParentUpdate(ctx context.Context, assetID int64) error {
	if p.st == nil {
		return nil
	}
	return p.st.WithTx(ctx, func(tx pgx.Tx) error {
		parent, err := store.GetAsset(ctx, tx, assetID, true)
		if err != nil {
			return err
		}
		models.UpdateReevalFields(parent, models.ReevalFields...)
		models.EnqueueUpdate(parent, p.now(), models.TotalUpdateCoef)
		if parent.Changes.Empty() {
			return nil
		}
		if err := store.SaveAsset(ctx, tx, parent); err != nil {
			return err
		}
		parent.Changes.Reset()
		return nil
	})
}

func (p *Publisher) emitSnapshot(entity any, messageType string) {
	switch v := entity.(type) {
	case *models.Application:
		p.emit(pubApplication{v}, messageType, applicationPublishedFields)
	case *models.Datafeed:
		p.emit(pubDatafeed{v}, messageType, datafeedPublishedFields)
	case *models.Datastream:
		p.emit(pubDatastream{v}, messageType, datastreamPublishedFields)
	case *models.Device:
		p.emit(pubDevice{v}, messageType, devicePublishedFields)
	case *models.Asset:
		p.emit(pubAsset{v}, messageType, assetPublishedFields)
	default:
		p.logger.Warn("Snapshot of an unpublishable entity", "type", fmt.Sprintf("%T", entity))
	}
}

// emit builds the payload from the published-whitelist slice of fields
// and hands it to the broker after the settle delay. A disconnected
// broker drops the event; the store remains the source of truth.
func (p *Publisher) emit(entity publishable, messageType string, fields []string) {
	if p.broker == nil || !p.broker.IsConnected() {
		return
	}

	record := map[string]any{
		"id":          entity.fullID(),
		"messageType": messageType,
	}
	published := 0
	for _, field := range fields {
		value, ok := entity.publishedValue(field)
		if !ok {
			continue
		}
		record[camelize(field)] = value
		published++
	}
	if published == 0 && messageType == "u" {
		return
	}

	payload, err := json.Marshal(record)
	if err != nil {
		p.logger.Error("Marshaling change event failed",
			"entity", entity.fullID(), "error", err)
		return
	}
	topic := "procdata/" + p.instanceID + "/" + entity.modelName() + "/" + entity.pkString()

	send := func() {
		if err := p.broker.Publish(topic, 0, false, payload); err != nil {
			p.logger.Error("Publishing change event failed",
				"topic", topic, "error", err)
			return
		}
		p.logger.Debug("Changes published", "topic", topic)
	}
	if p.delay > 0 {
		time.AfterFunc(p.delay, send)
	} else {
		send()
	}
}

// camelize maps a snake_case field name to the camelCase wire key.
func camelize(field string) string {
	parts := strings.Split(field, "_")
	var b strings.Builder
	b.WriteString(parts[0])
	for _, part := range parts[1:] {
		if part == "" {
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(part[1:])
	}
	return b.String()
}
