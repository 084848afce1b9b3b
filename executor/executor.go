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

// Package executor runs scheduled application invocations: it advances the
// native datafeeds through the synthesizer, evaluates the application
// function inside a locked transaction and maintains the application's
// cursor, alarms, health and staleness, fanning changes out to the parent
// asset.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/jackc/pgx/v5"

	"go.corp.nvidia.com/monapps/alarms"
	"go.corp.nvidia.com/monapps/appfuncs"
	"go.corp.nvidia.com/monapps/models"
	"go.corp.nvidia.com/monapps/store"
	"go.corp.nvidia.com/monapps/synth"
	"go.corp.nvidia.com/monapps/utils/timegrid"
)

// Committer publishes an entity's tracked changes after a successful
// transaction and resets its change set.
type Committer interface {
	Commit(entity any)
}

// Executor runs one application invocation end to end.
type Executor struct {
	st          *store.Store
	synthesizer *synth.Synthesizer
	logger      *slog.Logger
	committer   Committer

	appLog alarms.LogFunc
	now    func() int64
}

// New builds an executor. committer may be nil when change events are not
// published.
func New(st *store.Store, synthesizer *synth.Synthesizer, logger *slog.Logger, committer Committer) *Executor {
	return &Executor{
		st:          st,
		synthesizer: synthesizer,
		logger:      logger,
		committer:   committer,
		appLog:      alarms.NewLog(logger),
		now:         timegrid.NowMs,
	}
}

// Execute runs one scheduled invocation of the application. While any native
// datafeed is still catching up on its backlog the evaluation itself is
// postponed and the task is switched to the catch-up interval.
func (e *Executor) Execute(ctx context.Context, appID int64) error {
	app, err := store.GetApplication(ctx, e.st.Pool(), appID, false)
	if err != nil {
		return err
	}

	if app.IsEnabled {
		dfs, err := store.ListDatafeeds(ctx, e.st.Pool(), appID, false)
		if err != nil {
			return err
		}
		catchingUp := false
		for _, df := range dfs {
			if !df.IsNative() {
				continue
			}
			up, err := e.synthesizer.SynthesizeFeed(ctx, app, df.ID)
			if err != nil {
				// One broken feed must not block the others.
				e.logger.Error("Synthesizing readings failed",
					"datafeed", df.String(), "error", err)
				continue
			}
			if up {
				catchingUp = true
			}
		}
		if catchingUp {
			return e.markCatchingUp(ctx, appID)
		}
	}

	return e.evaluate(ctx, appID)
}

// markCatchingUp freezes the evaluation and switches the task to the
// catch-up interval until the synthesizer drains the backlog.
func (e *Executor) markCatchingUp(ctx context.Context, appID int64) error {
	var saved []any
	err := e.st.WithTx(ctx, func(tx pgx.Tx) error {
		saved = nil
		app, err := store.GetApplication(ctx, tx, appID, true)
		if err != nil {
			return err
		}
		task, err := store.GetTaskByApplication(ctx, tx, appID)
		if err != nil {
			return err
		}
		e.applyCatchingUp(app, task, true)
		if !app.Changes.Empty() {
			if err := store.SaveApplication(ctx, tx, app); err != nil {
				return err
			}
			saved = append(saved, app)
		}
		if !task.Changes.Empty() {
			if err := store.SaveTask(ctx, tx, task); err != nil {
				return err
			}
			saved = append(saved, task)
		}
		return nil
	})
	if err != nil {
		return err
	}
	e.commitSaved(saved)
	return nil
}

// evaluate runs the application function and the post-execution bookkeeping
// under the application and task row locks. The function's writes go through
// a savepoint: a failing function or a readings conflict rolls its writes
// back while health and staleness are still maintained.
func (e *Executor) evaluate(ctx context.Context, appID int64) error {
	var saved []any
	err := e.st.WithTx(ctx, func(tx pgx.Tx) error {
		saved = nil
		app, err := store.GetApplication(ctx, tx, appID, true)
		if err != nil {
			return err
		}
		task, err := store.GetTaskByApplication(ctx, tx, appID)
		if err != nil {
			return err
		}

		excepHealth := models.GradeUndefined
		var update appfuncs.Update
		if app.IsEnabled {
			inner, err := tx.Begin(ctx)
			if err != nil {
				return err
			}
			upd, execSaved, execErr := e.runExecRoutine(ctx, inner, app, task)
			switch {
			case execErr != nil:
				_ = inner.Rollback(ctx)
				excepHealth = models.GradeError
				if errors.Is(execErr, models.ErrIntegrity) {
					e.logger.Error("An attempt to rewrite existing df readings detected",
						"entity", app.String())
				} else {
					e.logger.Error("Application function failed",
						"entity", app.String(), "error", execErr)
				}
			default:
				if err := inner.Commit(ctx); err != nil {
					return err
				}
				update = *upd
				saved = append(saved, execSaved...)
			}
		}

		e.updateStaleness(app, "status")
		e.updateStaleness(app, "curr_state")
		e.updateHealth(app, update.Health, excepHealth)

		changed := app.Changes.Sorted()
		if !app.Changes.Empty() {
			if err := store.SaveApplication(ctx, tx, app); err != nil {
				return err
			}
			saved = append(saved, app)
		}

		parent, err := e.updateParent(ctx, tx, app, changed)
		if err != nil {
			return err
		}
		if parent != nil {
			saved = append(saved, parent)
		}
		return nil
	})
	if err != nil {
		return err
	}
	e.commitSaved(saved)
	return nil
}

// runExecRoutine locks the datafeeds, runs the application function and
// applies its output: readings, catch-up state, cursor, alarms and state.
func (e *Executor) runExecRoutine(
	ctx context.Context, q store.Querier, app *models.Application, task *models.Task,
) (*appfuncs.Update, []any, error) {
	dfs, err := store.ListDatafeeds(ctx, q, app.ID, true)
	if err != nil {
		return nil, nil, err
	}
	nativeDfs := make(map[string]*models.Datafeed)
	derivedDfs := make(map[string]*models.Datafeed)
	for _, df := range dfs {
		if df.IsNative() {
			nativeDfs[df.Name] = df
		} else {
			derivedDfs[df.Name] = df
		}
	}

	entry, err := appfuncs.Lookup(app.Type.FuncName, app.FuncVersion)
	if err != nil {
		return nil, nil, err
	}
	result, err := entry.Func(ctx, q, app, nativeDfs, derivedDfs)
	if err != nil {
		return nil, nil, err
	}
	update := result.Update

	var saved []any
	if update.IsCatchingUp != nil {
		e.applyCatchingUp(app, task, *update.IsCatchingUp)
		if !task.Changes.Empty() {
			if err := store.SaveTask(ctx, q, task); err != nil {
				return nil, nil, err
			}
			saved = append(saved, task)
		}
	}

	for name, readings := range result.DerivedReadings {
		if len(readings) == 0 {
			continue
		}
		df, ok := derivedDfs[name]
		if !ok {
			return nil, nil, fmt.Errorf("%w: %s produced readings for unknown datafeed %q",
				models.ErrValidation, app, name)
		}
		if err := store.InsertDfReadings(ctx, q, readings); err != nil {
			return nil, nil, err
		}
		latest := readings[0]
		for _, dfr := range readings[1:] {
			if dfr.Time > latest.Time {
				latest = dfr
			}
		}
		if models.SetIfGreater(&df.Changes, "last_reading_ts", &df.LastReadingTs, latest.Time) {
			if err := store.SaveDatafeed(ctx, q, df); err != nil {
				return nil, nil, err
			}
			saved = append(saved, df)
		}
		switch name {
		case models.StatusFieldName:
			e.assignGradeValue(app, latest, "status")
		case models.CurrStateFieldName:
			e.assignGradeValue(app, latest, "curr_state")
		}
	}

	if models.SetIfGreater(&app.Changes, "cursor_ts", &app.CursorTs, update.CursorTs) {
		e.logger.Debug("Cursor position was updated",
			"entity", app.String(), "cursor_ts", app.CursorTs)
	}
	e.updateAlarms(app, update.AlarmPayload)
	if len(update.State) > 0 && !bytes.Equal(app.State, update.State) {
		app.State = update.State
		app.Changes.Add("state")
	}
	return &update, saved, nil
}

func (e *Executor) applyCatchingUp(app *models.Application, task *models.Task, isCatchingUp bool) {
	if !models.SetIfChanged(&app.Changes, "is_catching_up", &app.IsCatchingUp, isCatchingUp) {
		return
	}
	if isCatchingUp {
		models.SetIfChanged(&task.Changes, "interval_ms", &task.IntervalMs, app.CatchUpIntervalMs)
		e.logger.Info("Catching up started", "entity", app.String())
	} else {
		models.SetIfChanged(&task.Changes, "interval_ms", &task.IntervalMs, app.InvocIntervalMs)
		e.logger.Info("Catching up finished", "entity", app.String())
	}
}

// assignGradeValue moves status or curr_state to the newest derived reading.
// While catching up both stay frozen so parent assets are not re-evaluated
// on every backlog batch.
func (e *Executor) assignGradeValue(app *models.Application, latest models.DfReading, name string) {
	if app.IsCatchingUp {
		return
	}

	var lastTs *int64
	var dst *models.NullGrade
	var fullName string
	if name == "status" {
		lastTs, dst, fullName = &app.LastStatusUpdateTs, &app.Status, models.StatusFieldName
	} else {
		lastTs, dst, fullName = &app.LastCurrStateUpdateTs, &app.CurrState, models.CurrStateFieldName
	}

	if !models.SetIfGreater(&app.Changes, "last_"+name+"_update_ts", lastTs, latest.Time) {
		return
	}
	grade := models.SomeGrade(models.Grade(latest.Value))
	if !models.SetIfChanged(&app.Changes, name, dst, grade) {
		return
	}
	e.logger.Info(fullName+" changed", "entity", app.String(), "value", grade.Grade.String())
}

// updateAlarms merges the function's alarm payload into the application's
// alarm maps in timestamp order. Infos go straight to the app log.
func (e *Executor) updateAlarms(app *models.Application, payload models.AlarmPayload) {
	for _, ts := range payload.SortedTs() {
		row := payload[ts]

		updErrors, _ := alarms.UpdateAlarmMap(
			app, app.Errors, row.Errors, ts, alarms.KindErrors, false, e.appLog)
		models.SetAlarmsIfChanged(&app.Changes, "errors", &app.Errors, updErrors)

		updWarnings, _ := alarms.UpdateAlarmMap(
			app, app.Warnings, row.Warnings, ts, alarms.KindWarnings, false, e.appLog)
		models.SetAlarmsIfChanged(&app.Changes, "warnings", &app.Warnings, updWarnings)

		for _, info := range row.Infos {
			e.appLog(slog.LevelInfo, app, info, ts, "")
		}
	}
}

func (e *Executor) updateStaleness(app *models.Application, name string) {
	if app.IsCatchingUp {
		return
	}

	var lastUpdateTs, timeStale int64
	var dst *bool
	var fullName string
	if name == "status" {
		lastUpdateTs, timeStale = app.LastStatusUpdateTs, app.TimeStatusStale
		dst, fullName = &app.IsStatusStale, models.StatusFieldName
	} else {
		lastUpdateTs, timeStale = app.LastCurrStateUpdateTs, app.TimeCurrStateStale
		dst, fullName = &app.IsCurrStateStale, models.CurrStateFieldName
	}

	ref := lastUpdateTs
	if ref == 0 {
		ref = app.CreatedTs
	}
	isStale := e.now()-ref > timeStale

	if models.SetIfChanged(&app.Changes, "is_"+name+"_stale", dst, isStale) {
		if isStale {
			e.logger.Info(fullName+" is stale", "entity", app.String())
		} else {
			e.logger.Info(fullName+" is not stale", "entity", app.String())
		}
	}
}

// updateHealth combines the cursor watchdog, the function's own verdict and
// the exception health into the application health.
func (e *Executor) updateHealth(app *models.Application, healthFromApp, excepHealth models.Grade) {
	if app.IsCatchingUp {
		return
	}

	// An explicit OK from the function is "no opinion".
	if healthFromApp == models.GradeOK {
		healthFromApp = models.GradeUndefined
	}

	csHealth := models.GradeUndefined
	if app.IsEnabled {
		if e.now()-app.CursorTs > app.TimeHealthError {
			csHealth = models.GradeError
		} else {
			csHealth = models.GradeOK
		}
	}

	health := models.MaxGrade(models.MaxGrade(csHealth, healthFromApp), excepHealth)
	if models.SetIfChanged(&app.Changes, "health", &app.Health, health) {
		e.logger.Info("Health changed", "entity", app.String(), "health", health.String())
	}
}

// updateParent asks the parent asset to re-evaluate the aggregated fields
// this invocation touched and pulls its next update closer.
func (e *Executor) updateParent(
	ctx context.Context, tx pgx.Tx, app *models.Application, changed []string,
) (*models.Asset, error) {
	if app.ParentID == 0 {
		return nil, nil
	}

	changedSet := make(map[string]bool, len(changed))
	for _, f := range changed {
		changedSet[f] = true
	}
	want := make(map[string]bool)
	for _, f := range models.ReevalFields {
		if changedSet[f] {
			want[f] = true
		}
	}
	if changedSet["is_status_stale"] {
		want["status"] = true
	}
	if changedSet["is_curr_state_stale"] {
		want["curr_state"] = true
	}
	if len(want) == 0 {
		return nil, nil
	}

	parent, err := store.GetAsset(ctx, tx, app.ParentID, true)
	if err != nil {
		return nil, err
	}
	fields := make([]string, 0, len(want))
	for f := range want {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	models.UpdateReevalFields(parent, fields...)
	models.EnqueueUpdate(parent, e.now(), models.DefaultEnqueueCoef)
	if parent.Changes.Empty() {
		return nil, nil
	}
	if err := store.SaveAsset(ctx, tx, parent); err != nil {
		return nil, err
	}
	e.logger.Debug("Parent update enqueued",
		"asset", parent.String(), "reeval_fields", fields, "next_upd_ts", parent.NextUpdTs)
	return parent, nil
}

func (e *Executor) commitSaved(saved []any) {
	for _, entity := range saved {
		if e.committer != nil {
			e.committer.Commit(entity)
			continue
		}
		switch v := entity.(type) {
		case *models.Application:
			v.Changes.Reset()
		case *models.Task:
			v.Changes.Reset()
		case *models.Datafeed:
			v.Changes.Reset()
		case *models.Asset:
			v.Changes.Reset()
		}
	}
}
