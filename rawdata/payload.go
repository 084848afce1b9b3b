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

package rawdata

import (
	"encoding/json"
	"fmt"

	"go.corp.nvidia.com/monapps/models"
)

// DsRow is the fragment of a message row addressed to one datastream:
// an optional value plus optional alarm events.
type DsRow struct {
	Value    any                      `json:"v,omitempty"`
	Errors   models.IncomingAlarmDict `json:"e,omitempty"`
	Warnings models.IncomingAlarmDict `json:"w,omitempty"`
	Infos    []string                 `json:"i,omitempty"`
}

// NumericValue returns the measured value if the row carries one. Anything
// but a JSON number is silently treated as absent.
func (r DsRow) NumericValue() (float64, bool) {
	v, ok := r.Value.(float64)
	return v, ok
}

// Row is one per-timestamp entry of a raw message: device-level alarm events
// plus datastream fragments keyed by datastream name.
type Row struct {
	Errors   models.IncomingAlarmDict
	Warnings models.IncomingAlarmDict
	Infos    []string
	Streams  map[string]DsRow
}

// UnmarshalJSON splits the reserved "e"/"w"/"i" keys from the datastream
// fragments.
func (row *Row) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	row.Streams = make(map[string]DsRow, len(raw))
	for key, val := range raw {
		var err error
		switch key {
		case "e":
			err = json.Unmarshal(val, &row.Errors)
		case "w":
			err = json.Unmarshal(val, &row.Warnings)
		case "i":
			err = json.Unmarshal(val, &row.Infos)
		default:
			var ds DsRow
			if err = json.Unmarshal(val, &ds); err == nil {
				row.Streams[key] = ds
			}
		}
		if err != nil {
			return fmt.Errorf("row key %q: %w", key, err)
		}
	}
	return nil
}

// Payload is the body of one raw-data message for one device: rows keyed by
// millisecond timestamps rendered as strings.
type Payload map[string]Row
