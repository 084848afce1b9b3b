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

package models

// HealthChild is a child taking part in health aggregation.
type HealthChild interface {
	ChildHealth() Grade
}

// GradedChild is a child taking part in status or current-state aggregation.
// The returned triple is (value, use policy, stale flag).
type GradedChild interface {
	ChildStatus() (NullGrade, ChildUse, bool)
}

// CurrStateChild mirrors GradedChild for the current-state field.
type CurrStateChild interface {
	ChildCurrState() (NullGrade, ChildUse, bool)
}

// DeriveHealthFromChildren aggregates children healths into a parent value.
// UNDEFINED children are ignored. If every graded child is ERROR the result
// is ERROR; otherwise ERROR is demoted to WARNING (a single broken child
// must not paint a partly working parent red).
func DeriveHealthFromChildren(children []HealthChild) Grade {
	numError := 0
	numWarnOK := 0
	for _, c := range children {
		switch c.ChildHealth() {
		case GradeOK, GradeWarning:
			numWarnOK++
		case GradeError:
			numError++
		}
	}

	allHaveError := numWarnOK == 0 && numError > 0
	if allHaveError {
		return GradeError
	}

	health := GradeUndefined
	for _, c := range children {
		h := c.ChildHealth()
		if h > health {
			if h == GradeError {
				health = GradeWarning
			} else {
				health = h
			}
		}
	}
	return health
}

// DeriveStatusFromChildren aggregates children statuses. Children with an
// absent status or use=DONT_USE are skipped; stale children are excluded
// from the value but still keep the parent from collapsing to an absent
// status. ERROR is kept only under AS_IS, or under AS_ERROR_IF_ALL when
// every considered child is ERROR; otherwise it demotes to WARNING.
func DeriveStatusFromChildren(children []GradedChild) NullGrade {
	return deriveGrade(len(children), func(i int) (NullGrade, ChildUse, bool) {
		return children[i].ChildStatus()
	})
}

// DeriveCurrStateFromChildren mirrors DeriveStatusFromChildren for the
// current-state field.
func DeriveCurrStateFromChildren(children []CurrStateChild) NullGrade {
	return deriveGrade(len(children), func(i int) (NullGrade, ChildUse, bool) {
		return children[i].ChildCurrState()
	})
}

func deriveGrade(n int, at func(int) (NullGrade, ChildUse, bool)) NullGrade {
	noneAssumption := true
	numError := 0
	numWarnOK := 0

	for i := 0; i < n; i++ {
		value, use, stale := at(i)
		if !value.Valid || use == DontUse {
			continue
		}
		if stale {
			noneAssumption = false
			continue
		}
		noneAssumption = false
		switch value.Grade {
		case GradeOK, GradeWarning:
			numWarnOK++
		case GradeError:
			numError++
		}
	}

	if noneAssumption {
		return NoGrade
	}

	allHaveError := numWarnOK == 0 && numError > 0

	result := GradeUndefined
	for i := 0; i < n; i++ {
		value, use, stale := at(i)
		if !value.Valid || use == DontUse || stale {
			continue
		}
		if value.Grade <= result {
			continue
		}
		if value.Grade == GradeError &&
			(use == AsWarning || (use == AsErrorIfAll && !allHaveError)) {
			result = GradeWarning
		} else {
			result = value.Grade
		}
	}
	return SomeGrade(result)
}
