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

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	engineutils "go.corp.nvidia.com/monapps/engine/utils"
	"go.corp.nvidia.com/monapps/executor"
	"go.corp.nvidia.com/monapps/models"
	"go.corp.nvidia.com/monapps/store"
	"go.corp.nvidia.com/monapps/updaters"
	"go.corp.nvidia.com/monapps/utils/timegrid"
)

// Schedule members. Application tasks are "app:<id>"; the updater sweeps
// run under fixed names.
const (
	appMemberPrefix = "app:"

	memberAssetUpdater    = "asset_updater"
	memberDeviceUpdater   = "device_updater"
	memberDsHealthUpdater = "ds_health_updater"
)

const (
	// maxDuePerPoll caps the members claimed in one poll so a long backlog
	// cannot starve the ingress goroutine of DB connections.
	maxDuePerPoll = 64

	// defaultAppIntervalMs re-arms an application whose task row could not
	// be read after the run.
	defaultAppIntervalMs = int64(60000)
)

var updaterIntervalsMs = map[string]int64{
	memberAssetUpdater:    models.TimeAssetUpdMs,
	memberDeviceUpdater:   models.TimeAssetUpdMs,
	memberDsHealthUpdater: models.TimeDsHealthEvalMs,
}

// Scheduler drives the periodic workers off a Redis sorted set: member =
// task name, score = next fire timestamp in ms. A member is claimed by
// removing it (ZREM), run, and re-armed with the task's current interval,
// so concurrent engine instances never fire the same task twice.
type Scheduler struct {
	rdb      *redis.Client
	st       *store.Store
	exec     *executor.Executor
	assets   *updaters.AssetUpdater
	devices  *updaters.DeviceUpdater
	dsHealth *updaters.DsHealthUpdater
	inst     *engineutils.Instruments
	logger   *slog.Logger

	key    string
	poll   time.Duration
	resync time.Duration

	now func() int64
}

// NewScheduler builds a scheduler polling the given sorted-set key.
func NewScheduler(
	rdb *redis.Client,
	st *store.Store,
	exec *executor.Executor,
	assets *updaters.AssetUpdater,
	devices *updaters.DeviceUpdater,
	dsHealth *updaters.DsHealthUpdater,
	inst *engineutils.Instruments,
	logger *slog.Logger,
	key string,
	poll, resync time.Duration,
) *Scheduler {
	return &Scheduler{
		rdb:      rdb,
		st:       st,
		exec:     exec,
		assets:   assets,
		devices:  devices,
		dsHealth: dsHealth,
		inst:     inst,
		logger:   logger,
		key:      key,
		poll:     poll,
		resync:   resync,
		now:      timegrid.NowMs,
	}
}

// Run polls the schedule until the context is cancelled. A Redis failure
// is returned to the caller's retry loop; members claimed before the
// failure have already been re-armed or dropped.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.syncTasks(ctx); err != nil {
		return err
	}

	pollTicker := time.NewTicker(s.poll)
	defer pollTicker.Stop()
	resyncTicker := time.NewTicker(s.resync)
	defer resyncTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-pollTicker.C:
			if err := s.dispatchDue(ctx); err != nil {
				return err
			}
		case <-resyncTicker.C:
			if err := s.syncTasks(ctx); err != nil {
				return err
			}
		}
	}
}

// syncTasks seeds the updater members and one member per stored
// application task. ZADD NX leaves already-armed members alone, so a
// resync never disturbs the running schedule.
func (s *Scheduler) syncTasks(ctx context.Context) error {
	nowTs := s.now()

	members := []redis.Z{
		{Score: float64(nowTs), Member: memberAssetUpdater},
		{Score: float64(nowTs), Member: memberDeviceUpdater},
		{Score: float64(nowTs), Member: memberDsHealthUpdater},
	}
	appIDs, err := store.ListApplicationIDsWithTasks(ctx, s.st.Pool())
	if err != nil {
		return err
	}
	for _, id := range appIDs {
		members = append(members, redis.Z{
			Score:  float64(nowTs),
			Member: appMemberPrefix + strconv.FormatInt(id, 10),
		})
	}

	if err := s.rdb.ZAddNX(ctx, s.key, members...).Err(); err != nil {
		return fmt.Errorf("seeding the schedule: %w", err)
	}
	s.logger.Debug("Schedule synced", "applications", len(appIDs))
	return nil
}

// dispatchDue claims and runs every member whose score has passed.
func (s *Scheduler) dispatchDue(ctx context.Context) error {
	nowTs := s.now()
	due, err := s.rdb.ZRangeByScore(ctx, s.key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(nowTs, 10),
		Count: maxDuePerPoll,
	}).Result()
	if err != nil {
		return fmt.Errorf("polling the schedule: %w", err)
	}

	claimed := 0
	for _, member := range due {
		removed, err := s.rdb.ZRem(ctx, s.key, member).Result()
		if err != nil {
			return fmt.Errorf("claiming %s: %w", member, err)
		}
		if removed == 0 {
			// Another instance took it first.
			continue
		}
		claimed++
		s.runMember(ctx, member)
	}
	s.inst.DueTasksPolled.Record(ctx, float64(claimed))
	return nil
}

// runMember runs one claimed task and re-arms it. A member that no longer
// resolves to a stored task is dropped from the schedule.
func (s *Scheduler) runMember(ctx context.Context, member string) {
	kind := member
	if strings.HasPrefix(member, appMemberPrefix) {
		kind = "application"
	}
	taskAttr := metric.WithAttributes(attribute.String("task", kind))
	s.inst.TaskFiredTotal.Add(ctx, 1, taskAttr)

	start := time.Now()
	intervalMs, err := s.runTask(ctx, member)
	s.inst.TaskRunDuration.Record(ctx, time.Since(start).Seconds(), taskAttr)

	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Warn("Dropping a task without a stored record", "member", member)
			return
		}
		s.inst.TaskErrorTotal.Add(ctx, 1, taskAttr)
		s.logger.Error("Task run failed", "member", member, "error", err)
		// Fall through: a failed task stays scheduled.
	}

	rearm := redis.Z{Score: float64(s.now() + intervalMs), Member: member}
	if err := s.rdb.ZAddNX(ctx, s.key, rearm).Err(); err != nil {
		s.logger.Error("Re-arming a task failed", "member", member, "error", err)
	}
}

// runTask dispatches one member and reports the interval to re-arm with.
// Application intervals are re-read after the run, so a catching-up edge
// switches the cadence on the very next fire.
func (s *Scheduler) runTask(ctx context.Context, member string) (int64, error) {
	if interval, ok := updaterIntervalsMs[member]; ok {
		switch member {
		case memberAssetUpdater:
			return interval, s.assets.Sweep(ctx)
		case memberDeviceUpdater:
			return interval, s.devices.Sweep(ctx)
		case memberDsHealthUpdater:
			return interval, s.dsHealth.Sweep(ctx)
		}
	}

	appID, err := parseAppMember(member)
	if err != nil {
		s.logger.Error("Unknown schedule member", "member", member)
		return 0, models.ErrNotFound
	}

	execErr := s.exec.Execute(ctx, appID)
	if errors.Is(execErr, models.ErrNotFound) {
		return 0, execErr
	}

	task, err := store.GetTaskByApplication(ctx, s.st.Pool(), appID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return 0, err
		}
		return defaultAppIntervalMs, execErr
	}
	return task.IntervalMs, execErr
}

func parseAppMember(member string) (int64, error) {
	raw, ok := strings.CutPrefix(member, appMemberPrefix)
	if !ok {
		return 0, fmt.Errorf("member %q is not an application task", member)
	}
	return strconv.ParseInt(raw, 10, 64)
}
