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

// Status is the internal state of the status automaton.
type Status int

const (
	StUndefined Status = 0
	StOK        Status = 1
	StWarning   Status = 2
	StError     Status = 3
)

// StatusAutomaton derives the long-horizon status from the current-state
// occurrence history. Transitions are driven purely by how the recent
// history is composed, not by single occurrences.
type StatusAutomaton struct {
	State     Status
	PrevState Status

	undefCond      Condition
	okFromUndefCnd Condition
	okFromWarnCnd  Condition
	warnCond       Condition

	// Output of the last Execute call.
	Status models.Grade
}

// NewStatusAutomaton restores an automaton from persisted state. The four
// conditions guard: falling back to UNDEFINED, leaving UNDEFINED for OK,
// recovering from WARNING to OK, and entering WARNING.
func NewStatusAutomaton(
	state, prevState Status,
	undefCond, okFromUndefCond, okFromWarnCond, warnCond Condition,
) (*StatusAutomaton, error) {
	for _, c := range []Condition{undefCond, okFromUndefCond, okFromWarnCond, warnCond} {
		if err := c.Validate(); err != nil {
			return nil, err
		}
	}
	return &StatusAutomaton{
		State:          state,
		PrevState:      prevState,
		undefCond:      undefCond,
		okFromUndefCnd: okFromUndefCond,
		okFromWarnCnd:  okFromWarnCond,
		warnCond:       warnCond,
		Status:         models.GradeUndefined,
	}, nil
}

// Execute advances the automaton against the occurrence history until it
// settles.
func (a *StatusAutomaton) Execute(occs OccClusterList) error {
	for i := 0; ; i++ {
		if i >= maxTransitions {
			return fmt.Errorf("%w: status automaton does not settle", models.ErrValidation)
		}
		if a.PrevState != a.State {
			a.PrevState = a.State
		}

		again := false
		switch a.State {
		case StUndefined:
			// Optimistic: try to leave UNDEFINED for OK as soon as the
			// history allows, before considering WARNING.
			ok, err := a.okFromUndefCnd.Match(occs)
			if err != nil {
				return err
			}
			warn, err := a.warnCond.Match(occs)
			if err != nil {
				return err
			}
			switch {
			case ok:
				a.State = StOK
				again = true
			case warn:
				a.State = StWarning
				again = true
			default:
				a.Status = models.GradeUndefined
			}

		case StOK:
			warn, err := a.warnCond.Match(occs)
			if err != nil {
				return err
			}
			undef, err := a.undefCond.Match(occs)
			if err != nil {
				return err
			}
			switch {
			case warn:
				a.State = StWarning
				again = true
			case undef:
				a.State = StUndefined
				again = true
			default:
				a.Status = models.GradeOK
			}

		case StWarning:
			ok, err := a.okFromWarnCnd.Match(occs)
			if err != nil {
				return err
			}
			undef, err := a.undefCond.Match(occs)
			if err != nil {
				return err
			}
			switch {
			case ok:
				a.State = StOK
				again = true
			case undef:
				a.State = StUndefined
				again = true
			default:
				a.Status = models.GradeWarning
			}

		default:
			return fmt.Errorf("%w: status automaton in state %d", models.ErrValidation, a.State)
		}

		if !again {
			return nil
		}
	}
}
