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

// Package utils holds engine-scoped helpers: argument parsing and the
// OTEL metrics pipeline of the engine process.
package utils

import (
	"flag"

	"go.corp.nvidia.com/monapps/utils"
	"go.corp.nvidia.com/monapps/utils/logging"
	"go.corp.nvidia.com/monapps/utils/metrics"
	"go.corp.nvidia.com/monapps/utils/mqtt"
	"go.corp.nvidia.com/monapps/utils/postgres"
	"go.corp.nvidia.com/monapps/utils/redis"
)

// EngineArgs holds the full configuration of the engine process.
type EngineArgs struct {
	InstanceID     string
	RawTopic       string
	SchedKey       string
	SchedPollMs    int
	SchedResyncSec int

	Postgres postgres.PostgresConfig
	Redis    redis.RedisConfig
	Mqtt     mqtt.MqttConfig
	Metrics  metrics.MetricsConfig
	Logging  logging.Config
}

// EngineParse parses command line arguments and environment variables.
func EngineParse() EngineArgs {
	instanceID := flag.String("instance-id",
		utils.GetEnv("MONAPPS_INSTANCE_ID", "default"),
		"Installation identifier used in egress topics")
	rawTopic := flag.String("raw-topic",
		utils.GetEnv("MONAPPS_RAW_TOPIC", "rawdata/#"),
		"Topic filter for raw device messages")
	schedKey := flag.String("sched-key",
		utils.GetEnv("MONAPPS_SCHED_KEY", "monapps:sched"),
		"Redis sorted-set key holding the task schedule")
	schedPollMs := flag.Int("sched-poll-ms",
		utils.GetEnvInt("MONAPPS_SCHED_POLL_MS", 1000),
		"Scheduler poll interval in milliseconds")
	schedResyncSec := flag.Int("sched-resync-sec",
		utils.GetEnvInt("MONAPPS_SCHED_RESYNC_SEC", 60),
		"Interval in seconds for re-reading application tasks from the store")

	postgresFlags := postgres.RegisterPostgresFlags()
	redisFlags := redis.RegisterRedisFlags()
	mqttFlags := mqtt.RegisterMqttFlags()
	metricsFlags := metrics.RegisterMetricsFlags("monapps-engine")
	loggingFlags := logging.RegisterFlags()

	flag.Parse()

	return EngineArgs{
		InstanceID:     *instanceID,
		RawTopic:       *rawTopic,
		SchedKey:       *schedKey,
		SchedPollMs:    *schedPollMs,
		SchedResyncSec: *schedResyncSec,
		Postgres:       postgresFlags.ToPostgresConfig(),
		Redis:          redisFlags.ToRedisConfig(),
		Mqtt:           mqttFlags.ToMqttConfig(),
		Metrics:        metricsFlags.ToMetricsConfig(),
		Logging:        loggingFlags.ToConfig(),
	}
}
