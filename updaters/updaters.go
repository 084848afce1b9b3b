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

// Package updaters holds the periodic aggregation sweeps: the device
// updater (datastream healths into device health), the asset updater
// (child grades up the asset tree, leaves first) and the datastream
// no-data health watchdog. Each sweep is one bounded transaction over the
// due slice of its table.
package updaters

import (
	"go.corp.nvidia.com/monapps/models"
)

// Committer publishes an entity's tracked changes after a successful
// transaction and resets its change set.
type Committer interface {
	Commit(entity any)
}

func commitSaved(c Committer, saved []any) {
	for _, entity := range saved {
		if c != nil {
			c.Commit(entity)
			continue
		}
		switch v := entity.(type) {
		case *models.Asset:
			v.Changes.Reset()
		case *models.Device:
			v.Changes.Reset()
		case *models.Datastream:
			v.Changes.Reset()
		}
	}
}
