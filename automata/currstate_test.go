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

package automata

import (
	"testing"

	"go.corp.nvidia.com/monapps/models"
)

func TestCurrStateDebouncedRiseToOK(t *testing.T) {
	payload := models.AlarmPayload{}
	a := NewCurrStateAutomaton(CSUndefined, CSOff, payload, 3, 0, 0, 0, 0)

	for i := 0; i < 2; i++ {
		if err := a.Execute(int64(60000*(i+1)), false, false, true, false); err != nil {
			t.Fatalf("execute: %v", err)
		}
		if a.State != CSUndefined || a.CurrState != models.GradeUndefined {
			t.Fatalf("tick %d: state=%d currState=%d before debounce elapsed", i+1, a.State, a.CurrState)
		}
	}
	if err := a.Execute(180000, false, false, true, false); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if a.State != CSOK || a.CurrState != models.GradeOK {
		t.Fatalf("state=%d currState=%d after preset ok ticks", a.State, a.CurrState)
	}
	if a.HealthFromApp != models.GradeUndefined {
		t.Fatalf("healthFromApp = %d", a.HealthFromApp)
	}
	if len(payload) != 0 {
		t.Fatalf("unexpected alarms: %v", payload)
	}
}

func TestCurrStateErrorEntryAndExit(t *testing.T) {
	payload := models.AlarmPayload{}
	a := NewCurrStateAutomaton(CSOK, CSOK, payload, 1, 0, 0, 0, 0)

	if err := a.Execute(60000, true, false, false, false); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if a.State != CSError {
		t.Fatalf("state = %d, want ERROR", a.State)
	}
	if a.HealthFromApp != models.GradeError {
		t.Fatalf("healthFromApp = %d, want ERROR", a.HealthFromApp)
	}
	if a.CurrState != models.GradeUndefined {
		t.Fatalf("currState = %d, want UNDEFINED", a.CurrState)
	}
	row, ok := payload[60000]
	if !ok {
		t.Fatal("no alarm payload at error timestamp")
	}
	if _, ok := row.Errors["Bad input data"]; !ok {
		t.Fatalf("missing bad input alarm, payload: %+v", row)
	}

	// The error condition clearing releases the automaton to UNDEFINED.
	if err := a.Execute(120000, false, false, false, false); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if a.State != CSUndefined || a.CurrState != models.GradeUndefined {
		t.Fatalf("state=%d currState=%d after error cleared", a.State, a.CurrState)
	}
	if a.HealthFromApp != models.GradeUndefined {
		t.Fatalf("healthFromApp = %d after error cleared", a.HealthFromApp)
	}
	if len(payload) != 1 {
		t.Fatalf("alarm payload grew after recovery: %v", payload)
	}
}

func TestCurrStateOffDetection(t *testing.T) {
	a := NewCurrStateAutomaton(CSOK, CSOK, models.AlarmPayload{}, 2, 0, 0, 0, 0)

	if err := a.Execute(60000, false, true, false, false); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if a.State != CSOK || a.CurrState != models.GradeOK {
		t.Fatalf("state=%d currState=%d before off debounce", a.State, a.CurrState)
	}
	if err := a.Execute(120000, false, true, false, false); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if a.State != CSOff || a.CurrState != models.GradeUndefined {
		t.Fatalf("state=%d currState=%d after off debounce", a.State, a.CurrState)
	}
}

func TestCurrStateWarningRaisesStallAlarm(t *testing.T) {
	payload := models.AlarmPayload{}
	a := NewCurrStateAutomaton(CSOK, CSOK, payload, 1, 0, 0, 0, 0)

	if err := a.Execute(60000, false, false, false, true); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if a.State != CSWarning || a.CurrState != models.GradeWarning {
		t.Fatalf("state=%d currState=%d", a.State, a.CurrState)
	}
	if _, ok := payload[60000].Warnings["Stall detected"]; !ok {
		t.Fatalf("missing stall alarm, payload: %v", payload)
	}

	// The alarm repeats every bin the warning persists.
	if err := a.Execute(120000, false, false, false, true); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if _, ok := payload[120000].Warnings["Stall detected"]; !ok {
		t.Fatalf("stall alarm not re-raised, payload: %v", payload)
	}

	// And the ok condition recovers the automaton.
	if err := a.Execute(180000, false, false, true, false); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if a.State != CSOK || a.CurrState != models.GradeOK {
		t.Fatalf("state=%d currState=%d after recovery", a.State, a.CurrState)
	}
}
