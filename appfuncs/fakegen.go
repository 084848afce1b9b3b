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

package appfuncs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.corp.nvidia.com/monapps/models"
	"go.corp.nvidia.com/monapps/store"
	"go.corp.nvidia.com/monapps/utils/timegrid"
)

type fakeGenSettings struct {
	ProbException   *float64 `json:"prob_exeption"`
	ProbCalcOmitted *float64 `json:"prob_calc_omitted"`
	ProbError       *float64 `json:"prob_error"`
	ProbWarning     *float64 `json:"prob_warning"`
}

func probOrDefault(p *float64) float64 {
	if p == nil {
		return 0.3
	}
	return *p
}

// fakeDataGenerator emits random status and current-state readings up to
// the current wall clock, for exercising the executor and the aggregation
// updaters without real devices. It occasionally fails on purpose so the
// exception-health path gets traffic too.
func fakeDataGenerator(
	_ context.Context,
	_ store.Querier,
	app *models.Application,
	_, derivedDfs map[string]*models.Datafeed,
) (*Result, error) {
	statusDf, ok := derivedDfs[models.StatusFieldName]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no %q datafeed", models.ErrValidation, app, models.StatusFieldName)
	}
	currStateDf, ok := derivedDfs[models.CurrStateFieldName]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no %q datafeed", models.ErrValidation, app, models.CurrStateFieldName)
	}

	result := &Result{
		DerivedReadings: map[string][]models.DfReading{
			models.StatusFieldName:    nil,
			models.CurrStateFieldName: nil,
		},
	}

	endRts := timegrid.Floor(timegrid.NowMs(), app.TimeResample)
	if endRts == app.CursorTs {
		// Invoked more often than time_resample; producing readings now
		// would collide with the previous invocation's timestamps.
		return result, nil
	}

	var settings fakeGenSettings
	if len(app.Settings) > 0 {
		if err := json.Unmarshal(app.Settings, &settings); err != nil {
			return nil, fmt.Errorf("%w: fake data generator settings: %v", models.ErrValidation, err)
		}
	}

	// Imitate a slow synchronous calculation.
	time.Sleep(time.Duration(1+rand.IntN(3)) * time.Second)

	if rand.Float64() < probOrDefault(settings.ProbException) {
		return nil, errors.New("injected fault")
	}

	perDf := models.NumMaxDfReadingsToProcess / 2
	capRts := app.CursorTs + app.TimeResample*int64(perDf)
	isCatchingUp := endRts > capRts
	if endRts > capRts {
		endRts = capRts
	}

	payload := models.AlarmPayload{}
	probOmitted := probOrDefault(settings.ProbCalcOmitted)
	probError := probOrDefault(settings.ProbError)
	probWarning := probOrDefault(settings.ProbWarning)

	for rts := app.CursorTs + app.TimeResample; rts <= endRts; rts += app.TimeResample {
		currState, status := 0.0, 0.0
		if rand.Float64() > probOmitted {
			currState = float64(1 + rand.IntN(3))
			status = float64(1 + rand.IntN(3))
		}

		result.DerivedReadings[models.CurrStateFieldName] = append(
			result.DerivedReadings[models.CurrStateFieldName],
			models.NewDfReading(currStateDf, rts, currState, false),
		)
		result.DerivedReadings[models.StatusFieldName] = append(
			result.DerivedReadings[models.StatusFieldName],
			models.NewDfReading(statusDf, rts, status, false),
		)

		payload.Touch(rts)
		if rand.Float64() < probError {
			payload.AddError(rts, "Error", models.IncomingAlarm{})
		}
		if rand.Float64() < probWarning {
			payload.AddWarning(rts, "Warning", models.IncomingAlarm{})
		}
	}

	result.Update = Update{
		CursorTs:     endRts,
		IsCatchingUp: &isCatchingUp,
		AlarmPayload: payload,
	}
	return result, nil
}

var fakeDataGeneratorV1 = Entry{
	Func: fakeDataGenerator,
	DfSchema: map[string]DfSpec{
		models.StatusFieldName:    {Derived: true, DataType: models.StatusFieldName},
		models.CurrStateFieldName: {Derived: true, DataType: models.CurrStateFieldName},
	},
	SettingsSchema: json.RawMessage(`{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"title": "Fake data generator 1.0.0 settings",
		"type": "object",
		"properties": {
			"prob_exeption": {"type": "number", "minimum": 0, "maximum": 1},
			"prob_calc_omitted": {"type": "number", "minimum": 0, "maximum": 1},
			"prob_error": {"type": "number", "minimum": 0, "maximum": 1},
			"prob_warning": {"type": "number", "minimum": 0, "maximum": 1}
		}
	}`),
}
