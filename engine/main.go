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

// The engine process wires the full pipeline: MQTT raw-data ingress,
// the per-application evaluation tasks and the three periodic updaters,
// with processed-data change events published back to the broker.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	engineutils "go.corp.nvidia.com/monapps/engine/utils"
	"go.corp.nvidia.com/monapps/executor"
	"go.corp.nvidia.com/monapps/publish"
	"go.corp.nvidia.com/monapps/rawdata"
	"go.corp.nvidia.com/monapps/store"
	"go.corp.nvidia.com/monapps/synth"
	"go.corp.nvidia.com/monapps/updaters"
	"go.corp.nvidia.com/monapps/utils"
	"go.corp.nvidia.com/monapps/utils/logging"
	"go.corp.nvidia.com/monapps/utils/mqtt"
	"go.corp.nvidia.com/monapps/utils/postgres"
	"go.corp.nvidia.com/monapps/utils/redis"
)

func main() {
	cmdArgs := engineutils.EngineParse()
	logger := logging.InitLogger("monapps-engine", cmdArgs.Logging)

	logger.Info("Starting the engine",
		"instance_id", cmdArgs.InstanceID, "raw_topic", cmdArgs.RawTopic)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	inst := engineutils.NewNoopInstruments()
	if cmdArgs.Metrics.Enabled {
		realInst, shutdown, err := engineutils.InitOTEL(ctx, cmdArgs.Metrics)
		if err != nil {
			logger.Error("Metrics pipeline unavailable, continuing without", "error", err)
		} else {
			inst = realInst
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(shutdownCtx); err != nil {
					logger.Error("Metrics shutdown failed", "error", err)
				}
			}()
		}
	}

	pgClient := connectPostgres(ctx, cmdArgs.Postgres, logger)
	if pgClient == nil {
		return
	}
	defer pgClient.Close()

	redisClient := connectRedis(ctx, cmdArgs.Redis, logger)
	if redisClient == nil {
		return
	}
	defer redisClient.Close()

	mqttClient := connectMqtt(ctx, cmdArgs.Mqtt, logger)
	if mqttClient == nil {
		return
	}
	defer mqttClient.Close()

	st := store.New(pgClient.Pool(), logger)
	publisher := publish.New(mqttClient, st, cmdArgs.InstanceID, logger)

	processor := rawdata.NewProcessor(st, logger, publisher)
	synthesizer := synth.NewSynthesizer(st, logger, publisher)
	exec := executor.New(st, synthesizer, logger, publisher)
	assetUpdater := updaters.NewAssetUpdater(st, logger, publisher)
	deviceUpdater := updaters.NewDeviceUpdater(st, logger, publisher)
	dsHealthUpdater := updaters.NewDsHealthUpdater(st, logger, publisher)

	in := &ingress{ctx: ctx, proc: processor, inst: inst, logger: logger}
	if err := mqttClient.Subscribe(cmdArgs.RawTopic, 0, in.handle); err != nil {
		logger.Error("Subscribing to raw data failed", "error", err)
		return
	}

	scheduler := NewScheduler(
		redisClient.Client(), st, exec,
		assetUpdater, deviceUpdater, dsHealthUpdater,
		inst, logger, cmdArgs.SchedKey,
		time.Duration(cmdArgs.SchedPollMs)*time.Millisecond,
		time.Duration(cmdArgs.SchedResyncSec)*time.Second,
	)

	// Run the scheduler with automatic recovery: a Redis hiccup backs off
	// and re-enters the loop; claimed tasks were re-armed before the error
	// surfaced, so nothing is lost across retries.
	retryCount := 0
	for {
		err := scheduler.Run(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				break
			}
			retryCount++
			backoff := utils.CalculateBackoff(retryCount, 30*time.Second)
			logger.Error("Scheduler stopped, restarting",
				"error", err, "backoff", backoff)
			select {
			case <-ctx.Done():
			case <-time.After(backoff):
				continue
			}
		}
		break
	}

	logger.Info("Engine stopped gracefully")
}

func connectPostgres(ctx context.Context, config postgres.PostgresConfig, logger *slog.Logger) *postgres.PostgresClient {
	retryCount := 0
	for {
		client, err := config.CreateClient(logger)
		if err == nil {
			return client
		}
		retryCount++
		backoff := utils.CalculateBackoff(retryCount, 30*time.Second)
		logger.Error("Postgres connection failed", "error", err, "backoff", backoff)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
	}
}

func connectRedis(ctx context.Context, config redis.RedisConfig, logger *slog.Logger) *redis.RedisClient {
	retryCount := 0
	for {
		client, err := config.CreateClient(logger)
		if err == nil {
			return client
		}
		retryCount++
		backoff := utils.CalculateBackoff(retryCount, 30*time.Second)
		logger.Error("Redis connection failed", "error", err, "backoff", backoff)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
	}
}

func connectMqtt(ctx context.Context, config mqtt.MqttConfig, logger *slog.Logger) *mqtt.MqttClient {
	retryCount := 0
	for {
		client, err := config.CreateClient(logger)
		if err == nil {
			return client
		}
		retryCount++
		backoff := utils.CalculateBackoff(retryCount, 30*time.Second)
		logger.Error("MQTT connection failed", "error", err, "backoff", backoff)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
	}
}
