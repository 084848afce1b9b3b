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
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	engineutils "go.corp.nvidia.com/monapps/engine/utils"
	"go.corp.nvidia.com/monapps/rawdata"
)

// ingress feeds raw device messages from the broker into the raw-data
// processor. The broker orders messages per topic; paho dispatches them
// on its router goroutine, so processing is serial per subscription.
type ingress struct {
	ctx    context.Context
	proc   *rawdata.Processor
	inst   *engineutils.Instruments
	logger *slog.Logger
}

// handle decodes one raw-data message and runs the processor once per
// device it addresses. Invalid JSON is dropped with an error log;
// processor failures roll back only the failing device's writes.
func (in *ingress) handle(_ pahomqtt.Client, msg pahomqtt.Message) {
	start := time.Now()
	in.inst.RawMessageTotal.Add(in.ctx, 1)

	bodies, err := decodeRawMessage(msg.Topic(), msg.Payload())
	if err != nil {
		in.inst.RawMessageErrorTotal.Add(in.ctx, 1)
		in.logger.Error("Dropping an undecodable raw message",
			"topic", msg.Topic(), "error", err)
		return
	}

	for _, devUI := range sortedKeys(bodies) {
		if err := in.proc.Execute(in.ctx, devUI, bodies[devUI]); err != nil {
			in.inst.RawMessageErrorTotal.Add(in.ctx, 1)
		}
	}
	in.inst.RawMessageDuration.Record(in.ctx, time.Since(start).Seconds())
}

// chirpstackEnvelope is the uplink-event shape of the Chirpstack MQTT
// integration; only the device EUI and the decoded object are used.
type chirpstackEnvelope struct {
	DeviceInfo struct {
		DevEui string `json:"devEui"`
	} `json:"deviceInfo"`
	Object rawdata.Payload `json:"object"`
}

// decodeRawMessage parses a raw-data message body into per-device
// payloads keyed by lowercase dev_ui. A topic containing "chirpstack"
// carries one device per message; the generic shape carries a map of
// devices.
func decodeRawMessage(topic string, body []byte) (map[string]rawdata.Payload, error) {
	if strings.Contains(topic, "chirpstack") {
		var env chirpstackEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, err
		}
		if env.DeviceInfo.DevEui == "" {
			return nil, fmt.Errorf("chirpstack message without deviceInfo.devEui")
		}
		if env.Object == nil {
			return nil, fmt.Errorf("chirpstack message without object")
		}
		return map[string]rawdata.Payload{
			strings.ToLower(env.DeviceInfo.DevEui): env.Object,
		}, nil
	}

	var generic map[string]rawdata.Payload
	if err := json.Unmarshal(body, &generic); err != nil {
		return nil, err
	}
	bodies := make(map[string]rawdata.Payload, len(generic))
	for devUI, payload := range generic {
		bodies[strings.ToLower(devUI)] = payload
	}
	return bodies, nil
}

func sortedKeys(m map[string]rawdata.Payload) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
