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
	"fmt"

	"go.corp.nvidia.com/monapps/models"
)

// maxTransitions bounds one evaluation pass. A well-formed automaton
// quiesces after at most a handful of transitions; contradictory settings
// must not hang the executor.
const maxTransitions = 16

// CurrState is the internal state of the current-state automaton.
type CurrState int

const (
	CSOff       CurrState = 0
	CSUndefined CurrState = 1
	CSOK        CurrState = 2
	CSWarning   CurrState = 3
	CSError     CurrState = 4
)

// CurrStateAutomaton derives the current state of the monitored process
// from four debounced input flags. It recognizes an off condition and
// reports bad input data as application health ERROR.
type CurrStateAutomaton struct {
	State     CurrState
	PrevState CurrState

	ErrCounter  *OnDelayCounter
	OffCounter  *OnDelayCounter
	OKCounter   *OnDelayCounter
	WarnCounter *OnDelayCounter

	// Outputs of the last Execute call.
	CurrState     models.Grade
	HealthFromApp models.Grade

	payload models.AlarmPayload
}

// NewCurrStateAutomaton restores an automaton from persisted state. preset
// is the shared debounce length of all four counters; alarms raised during
// evaluation are appended to payload.
func NewCurrStateAutomaton(
	state, prevState CurrState,
	payload models.AlarmPayload,
	preset int,
	errCounts, offCounts, okCounts, warnCounts int,
) *CurrStateAutomaton {
	return &CurrStateAutomaton{
		State:       state,
		PrevState:   prevState,
		ErrCounter:  NewOnDelayCounter(errCounts, preset),
		OffCounter:  NewOnDelayCounter(offCounts, preset),
		OKCounter:   NewOnDelayCounter(okCounts, preset),
		WarnCounter: NewOnDelayCounter(warnCounts, preset),
		CurrState:   models.GradeUndefined,
		payload:     payload,
	}
}

// Execute ticks the counters with this bin's flags and advances the
// automaton until it settles on a state.
func (a *CurrStateAutomaton) Execute(rts int64, errFlag, offFlag, okFlag, warnFlag bool) error {
	a.ErrCounter.Tick(errFlag)
	a.OffCounter.Tick(offFlag)
	a.OKCounter.Tick(okFlag)
	a.WarnCounter.Tick(warnFlag)

	for i := 0; ; i++ {
		if i >= maxTransitions {
			return fmt.Errorf("%w: current-state automaton does not settle", models.ErrValidation)
		}
		a.HealthFromApp = models.GradeUndefined
		if a.PrevState != a.State {
			a.PrevState = a.State
		}

		again := false
		switch a.State {
		case CSOff:
			switch {
			case a.ErrCounter.Out:
				a.State = CSError
				again = true
			case !a.OffCounter.Out:
				a.State = CSUndefined
				again = true
			default:
				a.CurrState = models.GradeUndefined
			}

		case CSUndefined:
			switch {
			case a.ErrCounter.Out:
				a.State = CSError
				again = true
			case a.OffCounter.Out:
				a.State = CSOff
				again = true
			case a.WarnCounter.Out:
				a.State = CSWarning
				again = true
			case a.OKCounter.Out:
				a.State = CSOK
				again = true
			default:
				a.CurrState = models.GradeUndefined
			}

		case CSError:
			if !a.ErrCounter.Out {
				a.State = CSUndefined
				again = true
				break
			}
			a.HealthFromApp = models.GradeError
			a.payload.AddError(rts, "Bad input data", models.IncomingAlarm{})
			a.CurrState = models.GradeUndefined

		case CSOK:
			switch {
			case a.ErrCounter.Out:
				a.State = CSError
				again = true
			case a.OffCounter.Out:
				a.State = CSOff
				again = true
			case a.WarnCounter.Out:
				a.State = CSWarning
				again = true
			default:
				a.CurrState = models.GradeOK
			}

		case CSWarning:
			switch {
			case a.ErrCounter.Out:
				a.State = CSError
				again = true
			case a.OffCounter.Out:
				a.State = CSOff
				again = true
			case a.OKCounter.Out:
				a.State = CSOK
				again = true
			default:
				a.CurrState = models.GradeWarning
				a.payload.AddWarning(rts, "Stall detected", models.IncomingAlarm{})
			}
		}

		if !again {
			return nil
		}
	}
}
