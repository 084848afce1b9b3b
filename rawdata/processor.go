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

// Package rawdata turns raw device messages into classified datastream
// readings, nodata markers and alarm-map updates, all within one
// transaction per message.
package rawdata

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strconv"

	"github.com/jackc/pgx/v5"

	"go.corp.nvidia.com/monapps/alarms"
	"go.corp.nvidia.com/monapps/models"
	"go.corp.nvidia.com/monapps/store"
	"go.corp.nvidia.com/monapps/utils/timegrid"
)

// Committer publishes an entity's tracked changes after a successful
// transaction and resets its change set.
type Committer interface {
	Commit(entity any)
}

// Processor consumes raw-data messages for devices.
type Processor struct {
	st        *store.Store
	logger    *slog.Logger
	alarmLog  alarms.LogFunc
	committer Committer

	now func() int64
}

// NewProcessor builds a processor. committer may be nil when change events
// are not published (tests, backfills).
func NewProcessor(st *store.Store, logger *slog.Logger, committer Committer) *Processor {
	return &Processor{
		st:        st,
		logger:    logger,
		alarmLog:  alarms.NewLog(logger),
		committer: committer,
		now:       timegrid.NowMs,
	}
}

// run is the working state of one message.
type run struct {
	dev    *models.Device
	dsList []*models.Datastream

	readings  map[string]map[int64]float64
	ndMarkers map[string]map[int64]struct{}

	// per-timestamp scratch
	needingMarker map[string]struct{}
	anyCleanValue bool

	saved []any
}

// Execute processes one raw message addressed to dev_ui. A payload for an
// unknown device or without a single valid timestamp is dropped with an
// error log; a failure mid-transaction rolls back every write of the
// message.
func (p *Processor) Execute(ctx context.Context, devUI string, payload Payload) error {
	if _, err := store.GetDeviceByDevUI(ctx, p.st.Pool(), devUI, false); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			p.logger.Error("Cannot discover device", "dev_ui", devUI)
			return nil
		}
		return err
	}

	tss, rows := p.conditionPayload(payload)
	if len(tss) == 0 {
		p.logger.Error("No valid timestamps in the payload", "dev_ui", devUI)
		return nil
	}

	var st run
	err := p.st.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		if st, err = p.prepare(ctx, tx, devUI); err != nil {
			return err
		}
		for _, ts := range tss {
			p.processRow(&st, ts, rows[ts])
		}
		return p.afterCycle(ctx, tx, &st)
	})
	if err != nil {
		p.logger.Error("Error while processing a message", "dev_ui", devUI, "error", err)
		return err
	}

	p.commitSaved(st.saved)
	return nil
}

// conditionPayload coerces the string timestamp keys to integers, dropping
// (and logging) unparsable ones, and returns the timestamps in ascending
// order.
func (p *Processor) conditionPayload(payload Payload) ([]int64, map[int64]Row) {
	rows := make(map[int64]Row, len(payload))
	tss := make([]int64, 0, len(payload))
	for key, row := range payload {
		ts, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			p.logger.Error("Cannot convert key to a timestamp", "key", key, "error", err)
			continue
		}
		rows[ts] = row
		tss = append(tss, ts)
	}
	slices.Sort(tss)
	return tss, rows
}

func (p *Processor) prepare(ctx context.Context, tx pgx.Tx, devUI string) (run, error) {
	dev, err := store.GetDeviceByDevUI(ctx, tx, devUI, true)
	if err != nil {
		return run{}, err
	}
	dsList, err := store.ListEnabledDatastreams(ctx, tx, dev.ID, true)
	if err != nil {
		return run{}, err
	}

	st := run{
		dev:       dev,
		dsList:    dsList,
		readings:  make(map[string]map[int64]float64, len(dsList)),
		ndMarkers: make(map[string]map[int64]struct{}, len(dsList)),
	}
	for _, ds := range dsList {
		st.readings[ds.Name] = make(map[int64]float64)
		st.ndMarkers[ds.Name] = make(map[int64]struct{})
	}
	return st, nil
}

func (p *Processor) processRow(st *run, ts int64, row Row) {
	st.needingMarker = make(map[string]struct{})
	st.anyCleanValue = false

	// Every enabled datastream runs through the alarm merge even when the
	// row carries nothing for it, so "out" statuses get assigned.
	for _, ds := range st.dsList {
		p.processDsRow(st, ds, ts, row.Streams[ds.Name])
	}
	p.processDevRow(st, ts, row)
}

func (p *Processor) processDsRow(st *run, ds *models.Datastream, ts int64, dsRow DsRow) {
	value, hasValue := dsRow.NumericValue()
	if hasValue {
		st.readings[ds.Name][ts] = value
	}

	updErrors, markerNeeded := alarms.UpdateAlarmMap(
		ds, ds.Errors, dsRow.Errors, ts, alarms.KindErrors, hasValue, p.alarmLog)
	models.SetAlarmsIfChanged(&ds.Changes, "errors", &ds.Errors, updErrors)

	if markerNeeded {
		st.needingMarker[ds.Name] = struct{}{}
	} else if hasValue {
		st.anyCleanValue = true
	}

	updWarnings, _ := alarms.UpdateAlarmMap(
		ds, ds.Warnings, dsRow.Warnings, ts, alarms.KindWarnings, false, p.alarmLog)
	models.SetAlarmsIfChanged(&ds.Changes, "warnings", &ds.Warnings, updWarnings)

	for _, info := range dsRow.Infos {
		p.alarmLog(slog.LevelInfo, ds, info, ts, "")
	}
}

func (p *Processor) processDevRow(st *run, ts int64, row Row) {
	dev := st.dev

	updErrors, markerNeeded := alarms.UpdateAlarmMap(
		dev, dev.Errors, row.Errors, ts, alarms.KindErrors, st.anyCleanValue, p.alarmLog)
	models.SetAlarmsIfChanged(&dev.Changes, "errors", &dev.Errors, updErrors)

	// A device-wide error fences off every datastream at this moment.
	if markerNeeded {
		for _, ds := range st.dsList {
			st.needingMarker[ds.Name] = struct{}{}
		}
	}

	updWarnings, _ := alarms.UpdateAlarmMap(
		dev, dev.Warnings, row.Warnings, ts, alarms.KindWarnings, false, p.alarmLog)
	models.SetAlarmsIfChanged(&dev.Changes, "warnings", &dev.Warnings, updWarnings)

	for _, info := range row.Infos {
		p.alarmLog(slog.LevelInfo, dev, info, ts, "")
	}

	for name := range st.needingMarker {
		st.ndMarkers[name][ts] = struct{}{}
	}
}

func (p *Processor) afterCycle(ctx context.Context, tx pgx.Tx, st *run) error {
	for _, ds := range st.dsList {
		if err := p.dsAfterCycle(ctx, tx, st, ds); err != nil {
			return err
		}
	}
	return p.devAfterCycle(ctx, tx, st)
}

func msgHealthOf(errs, warns models.AlarmMap) models.Grade {
	switch {
	case errs.AtLeastOneIn():
		return models.GradeError
	case warns.AtLeastOneIn():
		return models.GradeWarning
	}
	return models.GradeUndefined
}

func (p *Processor) dsAfterCycle(ctx context.Context, tx pgx.Tx, st *run, ds *models.Datastream) error {
	now := p.now()

	if models.SetIfChanged(&ds.Changes, "msg_health", &ds.MsgHealth, msgHealthOf(ds.Errors, ds.Warnings)) {
		if models.SetIfChanged(&ds.Changes, "health", &ds.Health, max(ds.MsgHealth, ds.NdHealth)) {
			models.EnqueueUpdate(st.dev, now, models.DefaultEnqueueCoef)
		}
	}

	// Nodata markers make no sense for restorable CONTINUOUS+AVG series and
	// for non-RBE datastreams (absence of data speaks for itself there).
	var markers, unusedMarkers []models.NoDataMarker
	if ds.IsRBE && !(ds.DataType.VarType == models.VarContinuous && ds.DataType.AggType == models.AggAvg) {
		markers, unusedMarkers = ClassifyMarkers(ds, st.ndMarkers[ds.Name], now)
	}

	cls, err := ClassifyReadings(ctx, tx, ds, st.readings[ds.Name], now)
	if err != nil {
		return err
	}

	models.SetIfGreater(&ds.Changes, "ts_to_start_with", &ds.TsToStartWith,
		max(models.MaxReadingTs(cls.Used), models.MaxMarkerTs(markers)))
	models.SetIfGreater(&ds.Changes, "last_valid_reading_ts", &ds.LastValidReadingTs,
		models.MaxReadingTs(cls.Used))

	// Fresh data means the nd-health verdict of a periodic datastream is
	// stale; re-evaluate promptly.
	if ds.TimeUpdate != 0 {
		ds.HealthNextEvalTs = now + models.TimeDsHealthEvalMs
		ds.Changes.Add("health_next_eval_ts")
	}

	if err := store.SaveDatastream(ctx, tx, ds); err != nil {
		return err
	}
	st.saved = append(st.saved, ds)

	for _, ins := range []struct {
		table    string
		readings []models.DsReading
	}{
		{store.TableDsReadings, cls.Used},
		{store.TableUnusedDsReadings, cls.Unused},
		{store.TableInvalidDsReadings, cls.Invalid},
		{store.TableNonRocDsReadings, cls.NonRoc},
	} {
		if err := store.InsertDsReadings(ctx, tx, ins.table, ins.readings); err != nil {
			return err
		}
	}
	if err := store.InsertNoDataMarkers(ctx, tx, store.TableNdMarkers, markers); err != nil {
		return err
	}
	return store.InsertNoDataMarkers(ctx, tx, store.TableUnusedNdMarkers, unusedMarkers)
}

func (p *Processor) devAfterCycle(ctx context.Context, tx pgx.Tx, st *run) error {
	dev := st.dev
	if models.SetIfChanged(&dev.Changes, "msg_health", &dev.MsgHealth, msgHealthOf(dev.Errors, dev.Warnings)) {
		models.EnqueueUpdate(dev, p.now(), models.DefaultEnqueueCoef)
	}
	if dev.Changes.Empty() {
		return nil
	}
	if err := store.SaveDevice(ctx, tx, dev); err != nil {
		return err
	}
	st.saved = append(st.saved, dev)
	return nil
}

func (p *Processor) commitSaved(saved []any) {
	for _, e := range saved {
		if p.committer != nil {
			p.committer.Commit(e)
			continue
		}
		switch v := e.(type) {
		case *models.Device:
			v.Changes.Reset()
		case *models.Datastream:
			v.Changes.Reset()
		}
	}
}
