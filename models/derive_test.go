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

import "testing"

type fakeChild struct {
	health Grade

	status NullGrade
	use    ChildUse
	stale  bool
}

func (f fakeChild) ChildHealth() Grade { return f.health }

func (f fakeChild) ChildStatus() (NullGrade, ChildUse, bool) {
	return f.status, f.use, f.stale
}

func (f fakeChild) ChildCurrState() (NullGrade, ChildUse, bool) {
	return f.status, f.use, f.stale
}

func healthChildren(grades ...Grade) []HealthChild {
	out := make([]HealthChild, 0, len(grades))
	for _, g := range grades {
		out = append(out, fakeChild{health: g})
	}
	return out
}

func TestDeriveHealthFromChildren(t *testing.T) {
	tests := []struct {
		name     string
		children []HealthChild
		want     Grade
	}{
		{"no children", nil, GradeUndefined},
		{"all undefined", healthChildren(GradeUndefined, GradeUndefined), GradeUndefined},
		{"all ok", healthChildren(GradeOK, GradeOK), GradeOK},
		{"all error", healthChildren(GradeError, GradeError), GradeError},
		{"error among undefined only", healthChildren(GradeError, GradeUndefined), GradeError},
		{"error demoted by ok sibling", healthChildren(GradeOK, GradeError, GradeUndefined), GradeWarning},
		{"error demoted by warning sibling", healthChildren(GradeWarning, GradeError), GradeWarning},
		{"highest non-error wins", healthChildren(GradeOK, GradeWarning), GradeWarning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveHealthFromChildren(tt.children); got != tt.want {
				t.Errorf("DeriveHealthFromChildren() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDeriveStatusFromChildren(t *testing.T) {
	tests := []struct {
		name     string
		children []GradedChild
		want     NullGrade
	}{
		{
			"no children",
			nil,
			NoGrade,
		},
		{
			"all absent",
			[]GradedChild{
				fakeChild{status: NoGrade, use: AsIs},
				fakeChild{status: NoGrade, use: AsWarning},
			},
			NoGrade,
		},
		{
			"dont-use only",
			[]GradedChild{fakeChild{status: SomeGrade(GradeError), use: DontUse}},
			NoGrade,
		},
		{
			"stale child keeps parent defined",
			[]GradedChild{
				fakeChild{status: SomeGrade(GradeOK), use: AsIs, stale: true},
				fakeChild{status: NoGrade, use: AsIs},
			},
			SomeGrade(GradeUndefined),
		},
		{
			"error as-is",
			[]GradedChild{fakeChild{status: SomeGrade(GradeError), use: AsIs}},
			SomeGrade(GradeError),
		},
		{
			"error as-warning demotes",
			[]GradedChild{
				fakeChild{status: SomeGrade(GradeOK), use: AsIs},
				fakeChild{status: SomeGrade(GradeError), use: AsWarning},
				fakeChild{status: NoGrade, use: AsIs},
			},
			SomeGrade(GradeWarning),
		},
		{
			"error-if-all not all",
			[]GradedChild{
				fakeChild{status: SomeGrade(GradeOK), use: AsIs},
				fakeChild{status: SomeGrade(GradeError), use: AsErrorIfAll},
			},
			SomeGrade(GradeWarning),
		},
		{
			"error-if-all all errors",
			[]GradedChild{
				fakeChild{status: SomeGrade(GradeError), use: AsErrorIfAll},
				fakeChild{status: SomeGrade(GradeError), use: AsErrorIfAll},
			},
			SomeGrade(GradeError),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveStatusFromChildren(tt.children); got != tt.want {
				t.Errorf("DeriveStatusFromChildren() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDeriveCurrStateMatchesStatusAlgebra(t *testing.T) {
	children := []CurrStateChild{
		fakeChild{status: SomeGrade(GradeOK), use: AsIs},
		fakeChild{status: SomeGrade(GradeError), use: AsWarning},
	}
	if got := DeriveCurrStateFromChildren(children); got != SomeGrade(GradeWarning) {
		t.Errorf("DeriveCurrStateFromChildren() = %v, want WARNING", got)
	}
}
