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
	"fmt"

	"go.corp.nvidia.com/monapps/automata"
	"go.corp.nvidia.com/monapps/models"
	"go.corp.nvidia.com/monapps/store"
	"go.corp.nvidia.com/monapps/utils/timegrid"
)

const (
	tempInDfName  = "Temp in"
	tempOutDfName = "Temp out"

	// An outlet warmer than the inlet by more than this is physically
	// implausible and treated as bad input data.
	tempDiffErrorThreshold = 0.1
)

const minutesPerDay = 24 * 60

// stallSettings are the tunables of the stall detector. Zero-valued fields
// are replaced by defaults before use.
type stallSettings struct {
	DeltaTemp       float64 `json:"delta_temp"`
	TempInThreshold float64 `json:"temp_in_threshold"`
	CSTransCounts   int     `json:"cs_trans_counts"`

	UndefCond       *automata.Condition `json:"undef_cond"`
	OKFromWarnCond  *automata.Condition `json:"ok_from_warn_cond"`
	WarnCond        *automata.Condition `json:"warn_cond"`
	OKFromUndefCond *automata.Condition `json:"ok_from_undef_cond"`
}

func defaultStallSettings() stallSettings {
	return stallSettings{
		DeltaTemp:       10.0,
		TempInThreshold: 50.0,
		CSTransCounts:   3,
		UndefCond: &automata.Condition{
			TotalOccs: 30 * minutesPerDay,
			OKCond:    automata.OpEq, NumOKOccs: 0,
			WarnCond: automata.OpEq, NumWarnOccs: 0,
			UndefCond: automata.OpGe, NumUndefOccs: 30 * minutesPerDay,
		},
		OKFromWarnCond: &automata.Condition{
			TotalOccs: 30 * minutesPerDay,
			OKCond:    automata.OpGe, NumOKOccs: 15 * minutesPerDay,
			WarnCond: automata.OpEq, NumWarnOccs: 0,
			UndefCond: automata.OpGe, NumUndefOccs: 0,
		},
		WarnCond: &automata.Condition{
			TotalOccs: 5 * minutesPerDay,
			OKCond:    automata.OpGe, NumOKOccs: 0,
			WarnCond: automata.OpGe, NumWarnOccs: 1 * minutesPerDay,
			UndefCond: automata.OpGe, NumUndefOccs: 0,
		},
		OKFromUndefCond: &automata.Condition{
			TotalOccs: 1 * minutesPerDay,
			OKCond:    automata.OpGe, NumOKOccs: 12 * 60,
			WarnCond: automata.OpEq, NumWarnOccs: 0,
			UndefCond: automata.OpGe, NumUndefOccs: 0,
		},
	}
}

func parseStallSettings(raw json.RawMessage) (stallSettings, error) {
	s := defaultStallSettings()
	if len(raw) == 0 {
		return s, nil
	}
	// Unmarshal into a shadow so an absent numeric field keeps its default
	// instead of collapsing to zero.
	var in stallSettings
	if err := json.Unmarshal(raw, &in); err != nil {
		return s, fmt.Errorf("%w: stall detection settings: %v", models.ErrValidation, err)
	}
	if in.DeltaTemp != 0 {
		s.DeltaTemp = in.DeltaTemp
	}
	if in.TempInThreshold != 0 {
		s.TempInThreshold = in.TempInThreshold
	}
	if in.CSTransCounts != 0 {
		s.CSTransCounts = in.CSTransCounts
	}
	if in.UndefCond != nil {
		s.UndefCond = in.UndefCond
	}
	if in.OKFromWarnCond != nil {
		s.OKFromWarnCond = in.OKFromWarnCond
	}
	if in.WarnCond != nil {
		s.WarnCond = in.WarnCond
	}
	if in.OKFromUndefCond != nil {
		s.OKFromUndefCond = in.OKFromUndefCond
	}
	return s, nil
}

// stallState is the persisted automata state, round-tripped through the
// application's state column between invocations.
type stallState struct {
	CSState     automata.CurrState `json:"cs_automata_state"`
	CSPrevState automata.CurrState `json:"cs_automata_prev_state"`
	ErrCounts   int                `json:"err_counts"`
	OffCounts   int                `json:"off_counts"`
	OKCounts    int                `json:"ok_counts"`
	WarnCounts  int                `json:"warn_counts"`

	STState     automata.Status `json:"st_automata_state"`
	STPrevState automata.Status `json:"st_automata_prev_state"`

	AllOccs automata.OccClusterList `json:"all_occs"`
}

func parseStallState(raw json.RawMessage) (stallState, error) {
	// The prev-state defaults deliberately differ from the states so the
	// automata treat the first invocation as a fresh transition.
	st := stallState{
		CSState:     automata.CSUndefined,
		CSPrevState: automata.CSOff,
		STState:     automata.StUndefined,
		STPrevState: automata.StOK,
	}
	if len(raw) == 0 {
		return st, nil
	}
	if err := json.Unmarshal(raw, &st); err != nil {
		return st, fmt.Errorf("%w: stall detection state: %v", models.ErrValidation, err)
	}
	return st, nil
}

// stallDetection evaluates the two-temperature stall detector: a
// current-state automaton over per-bin temperature flags and a status
// automaton over the long-run occurrence history.
func stallDetection(
	ctx context.Context,
	q store.Querier,
	app *models.Application,
	nativeDfs, derivedDfs map[string]*models.Datafeed,
) (*Result, error) {
	tempInDf, ok := nativeDfs[tempInDfName]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no %q datafeed", models.ErrValidation, app, tempInDfName)
	}
	tempOutDf, ok := nativeDfs[tempOutDfName]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no %q datafeed", models.ErrValidation, app, tempOutDfName)
	}
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

	// Two native temperature feeds plus the two derived feeds share the
	// per-invocation readings budget.
	startRts := app.CursorTs
	endRts, isCatchingUp := EndRts(
		[]*models.Datafeed{tempInDf, tempOutDf}, app.TimeResample, startRts, 4,
	)
	if endRts <= startRts {
		return result, nil
	}

	settings, err := parseStallSettings(app.Settings)
	if err != nil {
		return nil, err
	}
	state, err := parseStallState(app.State)
	if err != nil {
		return nil, err
	}

	valueMap, err := DfValueMap(ctx, q, []*models.Datafeed{tempInDf, tempOutDf}, startRts, endRts)
	if err != nil {
		return nil, err
	}

	return evalStall(app, settings, state, valueMap,
		tempInDf, tempOutDf, statusDf, currStateDf,
		startRts, endRts, isCatchingUp, result)
}

func evalStall(
	app *models.Application,
	settings stallSettings,
	state stallState,
	valueMap map[int64]map[string]float64,
	tempInDf, tempOutDf, statusDf, currStateDf *models.Datafeed,
	startRts, endRts int64,
	isCatchingUp bool,
	result *Result,
) (*Result, error) {
	payload := models.AlarmPayload{}

	csAutomaton := automata.NewCurrStateAutomaton(
		state.CSState, state.CSPrevState, payload,
		settings.CSTransCounts,
		state.ErrCounts, state.OffCounts, state.OKCounts, state.WarnCounts,
	)
	stAutomaton, err := automata.NewStatusAutomaton(
		state.STState, state.STPrevState,
		*settings.UndefCond, *settings.OKFromUndefCond, *settings.OKFromWarnCond, *settings.WarnCond,
	)
	if err != nil {
		return nil, err
	}

	allOccs := state.AllOccs

	grid, err := timegrid.CreateGrid(startRts+app.TimeResample, endRts, app.TimeResample)
	if err != nil {
		return nil, fmt.Errorf("%s: evaluation grid: %w", app, err)
	}
	for _, rts := range grid {
		// Even a bin without alarms needs a payload row: merging the empty
		// row clears non-persistent alarms raised earlier.
		payload.Touch(rts)

		var tempIn, tempOut float64
		var haveIn, haveOut bool
		if line, ok := valueMap[rts]; ok {
			tempIn, haveIn = line[tempInDf.Name]
			tempOut, haveOut = line[tempOutDf.Name]
		}

		errFlag := !haveIn || !haveOut || tempOut-tempIn > tempDiffErrorThreshold
		offFlag := !errFlag && tempIn <= settings.TempInThreshold
		okFlag := !errFlag && tempIn-tempOut <= settings.DeltaTemp
		warnFlag := !errFlag && tempIn-tempOut > settings.DeltaTemp

		if err := csAutomaton.Execute(rts, errFlag, offFlag, okFlag, warnFlag); err != nil {
			return nil, err
		}
		currState := csAutomaton.CurrState
		result.DerivedReadings[models.CurrStateFieldName] = append(
			result.DerivedReadings[models.CurrStateFieldName],
			models.NewDfReading(currStateDf, rts, float64(currState), false),
		)

		allOccs.AppendOccurrence(int(currState))

		if err := stAutomaton.Execute(allOccs); err != nil {
			return nil, err
		}
		result.DerivedReadings[models.StatusFieldName] = append(
			result.DerivedReadings[models.StatusFieldName],
			models.NewDfReading(statusDf, rts, float64(stAutomaton.Status), false),
		)
	}

	state.CSState = csAutomaton.State
	state.CSPrevState = csAutomaton.PrevState
	state.ErrCounts = csAutomaton.ErrCounter.Counts
	state.OffCounts = csAutomaton.OffCounter.Counts
	state.OKCounts = csAutomaton.OKCounter.Counts
	state.WarnCounts = csAutomaton.WarnCounter.Counts
	state.STState = stAutomaton.State
	state.STPrevState = stAutomaton.PrevState
	state.AllOccs = allOccs

	newState, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encode stall detection state: %w", err)
	}

	result.Update = Update{
		CursorTs:     endRts,
		IsCatchingUp: &isCatchingUp,
		AlarmPayload: payload,
		Health:       csAutomaton.HealthFromApp,
		State:        newState,
	}
	return result, nil
}

var stallDetectionV1 = Entry{
	Func: stallDetection,
	DfSchema: map[string]DfSpec{
		tempInDfName:              {Derived: false, DataType: "Temperature"},
		tempOutDfName:             {Derived: false, DataType: "Temperature"},
		models.StatusFieldName:    {Derived: true, DataType: models.StatusFieldName},
		models.CurrStateFieldName: {Derived: true, DataType: models.CurrStateFieldName},
	},
	SettingsSchema: json.RawMessage(`{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"title": "Stall detection by two temps 1.0.0 settings",
		"type": "object",
		"properties": {
			"delta_temp": {"type": "number", "minimum": 1, "maximum": 60},
			"temp_in_threshold": {"type": "number", "minimum": 10, "maximum": 150},
			"cs_trans_counts": {"type": "number", "minimum": 1, "maximum": 10},
			"undef_cond": {"$ref": "#/$defs/condition"},
			"ok_from_warn_cond": {"$ref": "#/$defs/condition"},
			"warn_cond": {"$ref": "#/$defs/condition"},
			"ok_from_undef_cond": {"$ref": "#/$defs/condition"}
		},
		"$defs": {
			"condition": {
				"type": "object",
				"properties": {
					"total_occs": {"type": "number", "minimum": 1, "maximum": 100000},
					"ok_cond": {"type": "string", "enum": ["==", ">=", "<="]},
					"num_of_ok_occs": {"type": "number", "minimum": 0, "maximum": 100000},
					"warn_cond": {"type": "string", "enum": ["==", ">=", "<="]},
					"num_of_warn_occs": {"type": "number", "minimum": 0, "maximum": 100000},
					"undef_cond": {"type": "string", "enum": ["==", ">=", "<="]},
					"num_of_undef_occs": {"type": "number", "minimum": 0, "maximum": 100000}
				}
			}
		}
	}`),
}
