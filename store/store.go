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

// Package store is the pgx persistence layer. Every causal batch (one device
// payload, one application tick, one updater sweep) runs inside a single
// transaction with SELECT ... FOR UPDATE row locks; the store is the single
// source of truth and nothing is cached outside a transaction.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"go.corp.nvidia.com/monapps/models"
)

// uniqueViolation is the Postgres SQLSTATE for duplicate-key writes.
const uniqueViolation = "23505"

// Querier is the subset of pgx shared by pools and transactions.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store wraps a pgx pool with the engine's queries.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a Store on top of an existing pool.
func New(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	return &Store{pool: pool, logger: logger}
}

// Pool exposes the underlying pool for direct queries.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// WithTx runs fn inside a transaction, committing on nil and rolling back on
// error or panic. Unique violations are mapped to models.ErrIntegrity so
// callers can classify without importing pgx.
func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		// Rollback after commit is a no-op.
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return MapError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return MapError(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// MapError converts pgx-level failures into the engine's error kinds.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", models.ErrIntegrity, pgErr.Detail)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", models.ErrNotFound, err)
	}
	return err
}

// jsonb marshals v for a jsonb column. Alarm maps and reeval-field lists go
// through here.
func jsonb(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode jsonb: %w", err)
	}
	return b, nil
}

// nullGradeToDb converts a NullGrade to a nullable smallint.
func nullGradeToDb(g models.NullGrade) *int16 {
	if !g.Valid {
		return nil
	}
	v := int16(g.Grade)
	return &v
}

// nullGradeFromDb converts a nullable smallint back to a NullGrade.
func nullGradeFromDb(v *int16) models.NullGrade {
	if v == nil {
		return models.NoGrade
	}
	return models.SomeGrade(models.Grade(*v))
}

// updateByChangeSet builds and executes an UPDATE statement covering exactly
// the entity's changed fields. valueOf resolves a changed field name to its
// column value; field names equal column names throughout the schema.
func updateByChangeSet(
	ctx context.Context,
	q Querier,
	table string,
	id int64,
	cs *models.ChangeSet,
	valueOf func(field string) (any, error),
) error {
	fields := cs.Sorted()
	if len(fields) == 0 {
		return nil
	}

	sql := "UPDATE " + table + " SET "
	args := make([]any, 0, len(fields)+1)
	for i, f := range fields {
		if i > 0 {
			sql += ", "
		}
		v, err := valueOf(f)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", table, f, err)
		}
		sql += fmt.Sprintf("%s = $%d", f, i+1)
		args = append(args, v)
	}
	sql += fmt.Sprintf(" WHERE id = $%d", len(fields)+1)
	args = append(args, id)

	if _, err := q.Exec(ctx, sql, args...); err != nil {
		return MapError(fmt.Errorf("update %s %d: %w", table, id, err))
	}
	return nil
}
