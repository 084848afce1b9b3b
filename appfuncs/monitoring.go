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

	"go.corp.nvidia.com/monapps/models"
	"go.corp.nvidia.com/monapps/store"
)

// monitoring produces no insights of its own. It only moves the cursor
// along the synthesized feeds so the executor's health watchdog can tell a
// stalled pipeline from a healthy one.
func monitoring(
	_ context.Context,
	_ store.Querier,
	app *models.Application,
	nativeDfs, _ map[string]*models.Datafeed,
) (*Result, error) {
	dfs := make([]*models.Datafeed, 0, len(nativeDfs))
	for _, df := range nativeDfs {
		dfs = append(dfs, df)
	}

	endRts, isCatchingUp := EndRts(dfs, app.TimeResample, app.CursorTs, len(dfs))
	return &Result{
		DerivedReadings: map[string][]models.DfReading{},
		Update: Update{
			CursorTs:     endRts,
			IsCatchingUp: &isCatchingUp,
		},
	}, nil
}

var monitoringV1 = Entry{
	Func: monitoring,
	DfSchema: map[string]DfSpec{
		"[ANY]": {Derived: false, DataType: "ANY"},
	},
}
