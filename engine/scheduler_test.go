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

package main

import (
	"testing"

	"go.corp.nvidia.com/monapps/models"
)

func TestParseAppMember(t *testing.T) {
	id, err := parseAppMember("app:42")
	if err != nil || id != 42 {
		t.Errorf("parseAppMember(app:42) = %d, %v", id, err)
	}

	for _, member := range []string{"asset_updater", "app:", "app:x", "42"} {
		if _, err := parseAppMember(member); err == nil {
			t.Errorf("parseAppMember(%q) succeeded", member)
		}
	}
}

func TestUpdaterIntervals(t *testing.T) {
	// The sweeps re-arm on the cadence of the work they drain.
	if updaterIntervalsMs[memberAssetUpdater] != models.TimeAssetUpdMs {
		t.Errorf("asset updater interval = %d", updaterIntervalsMs[memberAssetUpdater])
	}
	if updaterIntervalsMs[memberDeviceUpdater] != models.TimeAssetUpdMs {
		t.Errorf("device updater interval = %d", updaterIntervalsMs[memberDeviceUpdater])
	}
	if updaterIntervalsMs[memberDsHealthUpdater] != models.TimeDsHealthEvalMs {
		t.Errorf("ds health updater interval = %d", updaterIntervalsMs[memberDsHealthUpdater])
	}
}
