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
)

func TestDecodeGenericRawMessage(t *testing.T) {
	body := []byte(`{
		"A1B2C3D4E5F60708": {
			"60000": {
				"Temperature": {"v": 21.5},
				"e": {"low_batt": {}}
			}
		}
	}`)

	bodies, err := decodeRawMessage("rawdata/plant1", body)
	if err != nil {
		t.Fatalf("decodeRawMessage: %v", err)
	}
	payload, ok := bodies["a1b2c3d4e5f60708"]
	if !ok {
		t.Fatalf("dev_ui not lowercased, got keys %v", sortedKeys(bodies))
	}
	row, ok := payload["60000"]
	if !ok {
		t.Fatalf("missing row, payload %v", payload)
	}
	if v, ok := row.Streams["Temperature"].NumericValue(); !ok || v != 21.5 {
		t.Errorf("Temperature value = %v (%v)", v, ok)
	}
	if _, ok := row.Errors["low_batt"]; !ok {
		t.Errorf("device error missing: %v", row.Errors)
	}
}

func TestDecodeChirpstackRawMessage(t *testing.T) {
	body := []byte(`{
		"deviceInfo": {"devEui": "A1B2C3D4E5F60708"},
		"object": {
			"120000": {"Humidity": {"v": 40}}
		}
	}`)

	bodies, err := decodeRawMessage("application/1/device/chirpstack/event/up", body)
	if err != nil {
		t.Fatalf("decodeRawMessage: %v", err)
	}
	payload, ok := bodies["a1b2c3d4e5f60708"]
	if !ok {
		t.Fatalf("devEui not lowercased, got keys %v", sortedKeys(bodies))
	}
	if v, ok := payload["120000"].Streams["Humidity"].NumericValue(); !ok || v != 40 {
		t.Errorf("Humidity value = %v (%v)", v, ok)
	}
}

func TestDecodeChirpstackWithoutDevEui(t *testing.T) {
	body := []byte(`{"object": {"120000": {"Humidity": {"v": 40}}}}`)
	if _, err := decodeRawMessage("chirpstack/up", body); err == nil {
		t.Fatal("expected an error for a message without deviceInfo.devEui")
	}
}

func TestDecodeChirpstackWithoutObject(t *testing.T) {
	body := []byte(`{"deviceInfo": {"devEui": "AA"}}`)
	if _, err := decodeRawMessage("chirpstack/up", body); err == nil {
		t.Fatal("expected an error for a message without object")
	}
}

func TestDecodeInvalidJSON(t *testing.T) {
	if _, err := decodeRawMessage("rawdata/x", []byte(`{`)); err == nil {
		t.Fatal("expected an error for invalid JSON")
	}
}
