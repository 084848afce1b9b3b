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

package postgres

import (
	"context"
	"flag"
	"log/slog"
	"time"

	"go.corp.nvidia.com/monapps/utils"
)

// PostgresFlagPointers holds pointers to flag values for Postgres configuration
type PostgresFlagPointers struct {
	host     *string
	port     *int
	database *string
	user     *string
	password *string
	maxConns *int
	minConns *int
	sslMode  *string
}

// RegisterPostgresFlags registers Postgres-related command-line flags
// Returns a PostgresFlagPointers that should be converted to PostgresConfig
// after flag.Parse() is called
func RegisterPostgresFlags() *PostgresFlagPointers {
	return &PostgresFlagPointers{
		host: flag.String("postgres-host",
			utils.GetEnv("MONAPPS_POSTGRES_HOST", "localhost"),
			"Postgres host"),
		port: flag.Int("postgres-port",
			utils.GetEnvInt("MONAPPS_POSTGRES_PORT", 5432),
			"Postgres port"),
		database: flag.String("postgres-database",
			utils.GetEnv("MONAPPS_POSTGRES_DATABASE", "monapps_db"),
			"Postgres database name"),
		user: flag.String("postgres-user",
			utils.GetEnv("MONAPPS_POSTGRES_USER", "monapps"),
			"Postgres user"),
		password: flag.String("postgres-password",
			utils.GetEnvOrConfig("MONAPPS_POSTGRES_PASSWORD", "postgres_password", ""),
			"Postgres password"),
		maxConns: flag.Int("postgres-max-conns",
			utils.GetEnvInt("MONAPPS_POSTGRES_MAX_CONNS", 10),
			"Maximum number of pooled connections"),
		minConns: flag.Int("postgres-min-conns",
			utils.GetEnvInt("MONAPPS_POSTGRES_MIN_CONNS", 1),
			"Minimum number of pooled connections"),
		sslMode: flag.String("postgres-ssl-mode",
			utils.GetEnv("MONAPPS_POSTGRES_SSL_MODE", "disable"),
			"Postgres SSL mode"),
	}
}

// ToPostgresConfig converts flag pointers to PostgresConfig
// This should be called after flag.Parse()
func (p *PostgresFlagPointers) ToPostgresConfig() PostgresConfig {
	return PostgresConfig{
		Host:            *p.host,
		Port:            *p.port,
		Database:        *p.database,
		User:            *p.user,
		Password:        *p.password,
		MaxConns:        int32(*p.maxConns),
		MinConns:        int32(*p.minConns),
		MaxConnLifetime: time.Hour,
		SSLMode:         *p.sslMode,
	}
}

// CreateClient creates a Postgres client from PostgresConfig
func (config *PostgresConfig) CreateClient(logger *slog.Logger) (*PostgresClient, error) {
	return NewPostgresClient(context.Background(), *config, logger)
}
