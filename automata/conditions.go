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

// CondOp is a comparison operator in a transition condition.
type CondOp string

const (
	OpEq CondOp = "=="
	OpNe CondOp = "!="
	OpGt CondOp = ">"
	OpGe CondOp = ">="
	OpLt CondOp = "<"
	OpLe CondOp = "<="
)

func evalCond(first int, op CondOp, second int) (bool, error) {
	switch op {
	case OpEq:
		return first == second, nil
	case OpNe:
		return first != second, nil
	case OpGt:
		return first > second, nil
	case OpGe:
		return first >= second, nil
	case OpLt:
		return first < second, nil
	case OpLe:
		return first <= second, nil
	}
	return false, fmt.Errorf("%w: unknown condition operator %q", models.ErrValidation, op)
}

// Condition describes one status transition in terms of how many of the
// last TotalOccs current-state occurrences were OK, WARNING and UNDEFINED.
// The three comparisons are joined with a logical and.
type Condition struct {
	TotalOccs int `json:"total_occs"`

	OKCond    CondOp `json:"ok_cond"`
	NumOKOccs int    `json:"num_of_ok_occs"`

	WarnCond    CondOp `json:"warn_cond"`
	NumWarnOccs int    `json:"num_of_warn_occs"`

	UndefCond    CondOp `json:"undef_cond"`
	NumUndefOccs int    `json:"num_of_undef_occs"`
}

// Validate rejects a condition whose occurrence quotas cannot fit into the
// interval it inspects.
func (c Condition) Validate() error {
	if c.NumOKOccs+c.NumWarnOccs+c.NumUndefOccs > c.TotalOccs {
		return fmt.Errorf("%w: occurrence quotas exceed total_occs %d", models.ErrValidation, c.TotalOccs)
	}
	return nil
}

// Match evaluates the condition against the newest TotalOccs occurrences.
func (c Condition) Match(occs OccClusterList) (bool, error) {
	last := occs.LastN(c.TotalOccs)
	ok, err := evalCond(last.CountValue(int(models.GradeOK)), c.OKCond, c.NumOKOccs)
	if err != nil {
		return false, err
	}
	undef, err := evalCond(last.CountValue(int(models.GradeUndefined)), c.UndefCond, c.NumUndefOccs)
	if err != nil {
		return false, err
	}
	warn, err := evalCond(last.CountValue(int(models.GradeWarning)), c.WarnCond, c.NumWarnOccs)
	if err != nil {
		return false, err
	}
	return ok && undef && warn, nil
}
