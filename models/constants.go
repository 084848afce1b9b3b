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

// Batch caps and scheduling constants. Every long-running sweep is bounded
// by one of these so a single pass cannot monopolize the store.
const (
	NumMaxDfReadingsToProcess = 50000
	NumMaxDsReadingsToProcess = 100000

	MinTimeResolMs        int64 = 1000
	MinTimeAppFuncInvocMs int64 = 60000

	MaxDsToHealthProc        = 100
	TimeDsHealthEvalMs int64 = 5000
	NextEvalMarginCoef       = 1.5

	TimeAssetUpdMs  int64 = 10000
	MaxAssetsToUpd        = 100
	MaxDevicesToUpd       = 50

	// 3000-01-01, "never" for practical purposes.
	MaxTsMs int64 = 32503679999999

	TimeDelayAssetMandatoryUpdateMs int64 = 7200000
)

// ReevalFields are the asset fields a child may ask its parent to recompute.
var ReevalFields = []string{"status", "curr_state", "health"}
