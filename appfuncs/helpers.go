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

// EndRts picks how far a function may evaluate in one invocation: the
// slowest datafeed's synthesis watermark, capped so the whole batch stays
// within the global readings budget split across numDfToProcess feeds.
// The second result reports whether the cap truncated the window.
func EndRts(dfs []*models.Datafeed, timeResample, startRts int64, numDfToProcess int) (int64, bool) {
	minLast := int64(0)
	for i, df := range dfs {
		last := df.TsToStartWith
		if last <= startRts {
			last = startRts
		}
		if i == 0 || last < minLast {
			minLast = last
		}
	}
	if len(dfs) == 0 {
		minLast = startRts
	}

	if numDfToProcess < 1 {
		numDfToProcess = 1
	}
	perDf := models.NumMaxDfReadingsToProcess / numDfToProcess
	if perDf < 2 {
		perDf = 2
	}
	capRts := startRts + timeResample*int64(perDf)

	if minLast < capRts {
		return minLast, false
	}
	return capRts, minLast > capRts
}

// DfValueMap loads the readings of dfs in (startRts, endRts] and pivots
// them into timestamp -> datafeed name -> value.
func DfValueMap(
	ctx context.Context,
	q store.Querier,
	dfs []*models.Datafeed,
	startRts, endRts int64,
) (map[int64]map[string]float64, error) {
	valueMap := make(map[int64]map[string]float64)
	for _, df := range dfs {
		readings, err := store.ListDfReadings(ctx, q, df.ID, startRts, endRts)
		if err != nil {
			return nil, err
		}
		for _, dfr := range readings {
			line, ok := valueMap[dfr.Time]
			if !ok {
				line = make(map[string]float64)
				valueMap[dfr.Time] = line
			}
			line[df.Name] = dfr.Value
		}
	}
	return valueMap, nil
}
