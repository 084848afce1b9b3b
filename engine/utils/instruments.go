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

package utils

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Instruments holds pre-created, typed OTEL metric instrument handles for
// the engine process. A single *Instruments is shared by the ingress
// handler and the scheduler; the SDK instruments are goroutine-safe.
type Instruments struct {
	// Raw-data ingress
	RawMessageTotal      metric.Int64Counter
	RawMessageErrorTotal metric.Int64Counter
	RawMessageDuration   metric.Float64Histogram

	// Task scheduler
	TaskFiredTotal  metric.Int64Counter
	TaskErrorTotal  metric.Int64Counter
	TaskRunDuration metric.Float64Histogram
	DueTasksPolled  metric.Float64Histogram
}

// NewInstruments creates all instrument handles from the given meter.
// Must be called after the meter provider is installed so instruments are
// backed by a real exporter rather than the default no-op provider.
func NewInstruments(meter metric.Meter) (*Instruments, error) {
	inst := &Instruments{}
	var err error

	inst.RawMessageTotal, err = meter.Int64Counter(
		"raw_message_total",
		metric.WithDescription("Raw device messages received from the broker"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create instrument raw_message_total: %w", err)
	}

	inst.RawMessageErrorTotal, err = meter.Int64Counter(
		"raw_message_error_total",
		metric.WithDescription("Raw device messages dropped or rolled back"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create instrument raw_message_error_total: %w", err)
	}

	inst.RawMessageDuration, err = meter.Float64Histogram(
		"raw_message_duration_seconds",
		metric.WithDescription("Duration of one raw-message transaction"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create instrument raw_message_duration_seconds: %w", err)
	}

	inst.TaskFiredTotal, err = meter.Int64Counter(
		"task_fired_total",
		metric.WithDescription("Scheduled tasks fired, by task kind"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create instrument task_fired_total: %w", err)
	}

	inst.TaskErrorTotal, err = meter.Int64Counter(
		"task_error_total",
		metric.WithDescription("Scheduled tasks that returned an error, by task kind"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create instrument task_error_total: %w", err)
	}

	inst.TaskRunDuration, err = meter.Float64Histogram(
		"task_run_duration_seconds",
		metric.WithDescription("Duration of one scheduled task run, by task kind"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create instrument task_run_duration_seconds: %w", err)
	}

	inst.DueTasksPolled, err = meter.Float64Histogram(
		"due_tasks_polled",
		metric.WithDescription("Number of due members claimed per scheduler poll"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create instrument due_tasks_polled: %w", err)
	}

	return inst, nil
}

// NewNoopInstruments returns an Instruments backed by OTEL's built-in no-op
// provider. Use when metrics are disabled or InitOTEL fails; call sites
// never need nil checks.
func NewNoopInstruments() *Instruments {
	inst, _ := NewInstruments(noop.NewMeterProvider().Meter("noop"))
	return inst
}
