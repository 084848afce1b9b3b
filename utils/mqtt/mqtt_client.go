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

// Package mqtt wraps the paho client with the connection, flag and
// reconnect conventions used by the other transport clients.
package mqtt

import (
	"flag"
	"fmt"
	"log/slog"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"go.corp.nvidia.com/monapps/utils"
)

const (
	connectTimeout  = 5 * time.Second
	publishTimeout  = 5 * time.Second
	maxReconnectGap = 60 * time.Second
)

// MqttConfig holds broker connection configuration.
type MqttConfig struct {
	Host     string
	Port     int
	ClientID string
	Username string
	Password string
}

// MqttClient handles MQTT publish and subscribe operations.
type MqttClient struct {
	client pahomqtt.Client
	logger *slog.Logger
}

// NewMqttClient connects a new MQTT client. The paho auto-reconnect is
// bounded by the same maximum gap the other clients use for their retry
// backoff.
func NewMqttClient(config MqttConfig, logger *slog.Logger) (*MqttClient, error) {
	opts := pahomqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", config.Host, config.Port)).
		SetClientID(config.ClientID).
		SetUsername(config.Username).
		SetPassword(config.Password).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(maxReconnectGap).
		SetConnectTimeout(connectTimeout).
		SetOrderMatters(true)

	opts.OnConnect = func(pahomqtt.Client) {
		logger.Info("Connected to the broker", "client_id", config.ClientID)
	}
	opts.OnConnectionLost = func(_ pahomqtt.Client, err error) {
		logger.Error("Disconnected from the broker",
			"client_id", config.ClientID, "error", err)
	}

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqtt connect to %s:%d timed out", config.Host, config.Port)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s:%d: %w", config.Host, config.Port, err)
	}

	logger.Info("MQTT client connected successfully",
		slog.String("address", fmt.Sprintf("%s:%d", config.Host, config.Port)),
		slog.String("client_id", config.ClientID),
	)
	return &MqttClient{client: client, logger: logger}, nil
}

// Close disconnects after letting in-flight messages drain.
func (c *MqttClient) Close() {
	c.logger.Info("closing mqtt client")
	c.client.Disconnect(uint(publishTimeout.Milliseconds()))
}

// IsConnected reports whether the broker link is currently up.
func (c *MqttClient) IsConnected() bool {
	return c.client.IsConnected()
}

// Publish sends one message and waits for the broker handshake (a no-op
// wait at QoS 0).
func (c *MqttClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Subscribe registers a handler for a topic filter.
func (c *MqttClient) Subscribe(filter string, qos byte, handler pahomqtt.MessageHandler) error {
	token := c.client.Subscribe(filter, qos, handler)
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("subscribe to %s timed out", filter)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe to %s: %w", filter, err)
	}
	c.logger.Info("Subscribed", "filter", filter, "qos", qos)
	return nil
}

// CreateClient creates an MQTT client from MqttConfig.
func (config *MqttConfig) CreateClient(logger *slog.Logger) (*MqttClient, error) {
	return NewMqttClient(*config, logger)
}

// MqttFlagPointers holds pointers to flag values for MQTT configuration.
type MqttFlagPointers struct {
	host     *string
	port     *int
	clientID *string
	username *string
	password *string
}

// RegisterMqttFlags registers MQTT-related command-line flags.
// Returns an MqttFlagPointers that should be converted to MqttConfig
// after flag.Parse() is called.
func RegisterMqttFlags() *MqttFlagPointers {
	return &MqttFlagPointers{
		host: flag.String("mqtt-host",
			utils.GetEnv("MONAPPS_MQTT_HOST", "localhost"),
			"MQTT broker host"),
		port: flag.Int("mqtt-port",
			utils.GetEnvInt("MONAPPS_MQTT_PORT", 1883),
			"MQTT broker port"),
		clientID: flag.String("mqtt-client-id",
			utils.GetEnv("MONAPPS_MQTT_CLIENT_ID", "monapps-engine"),
			"MQTT client identifier"),
		username: flag.String("mqtt-username",
			utils.GetEnv("MONAPPS_MQTT_USERNAME", ""),
			"MQTT username"),
		password: flag.String("mqtt-password",
			utils.GetEnvOrConfig("MONAPPS_MQTT_PASSWORD", "mqtt_password", ""),
			"MQTT password"),
	}
}

// ToMqttConfig converts flag pointers to MqttConfig.
// This should be called after flag.Parse().
func (m *MqttFlagPointers) ToMqttConfig() MqttConfig {
	return MqttConfig{
		Host:     *m.host,
		Port:     *m.port,
		ClientID: *m.clientID,
		Username: *m.username,
		Password: *m.password,
	}
}
