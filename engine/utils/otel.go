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
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"go.corp.nvidia.com/monapps/utils/metrics"
)

// InitOTEL initialises the OTLP metric pipeline, sets the global
// MeterProvider, and returns pre-created instrument handles plus a
// shutdown function.
//
// On success the caller must invoke the returned shutdown function
// (typically via defer) to flush pending metrics before process exit.
// On error the caller should fall back to NewNoopInstruments().
func InitOTEL(ctx context.Context, config metrics.MetricsConfig) (*Instruments, func(context.Context) error, error) {
	exporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(config.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create resource: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(
			exporter,
			sdkmetric.WithInterval(time.Duration(config.ExportIntervalMS)*time.Millisecond),
		)),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(provider)

	inst, err := NewInstruments(provider.Meter(config.ServiceName))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create instruments: %w", err)
	}

	return inst, provider.Shutdown, nil
}
