// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package mqtt publishes sensor states as retained JSON messages.
package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"

	"github.com/wneessen/icecream-benelux/internal/config"
	"github.com/wneessen/icecream-benelux/internal/logger"
	"github.com/wneessen/icecream-benelux/internal/sensor"
)

const (
	qos             = 1
	publishTimeout  = time.Second * 10
	disconnectQuiet = 250
)

var ErrPublishTimeout = errors.New("timed out waiting for publish acknowledgement")

// publisher is the part of the paho client used for publishing.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) MQTT.Token
}

type Client struct {
	client MQTT.Client
	pub    publisher
	prefix string
	logger *logger.Logger
}

// New returns a Client for the broker in the configuration. It does not connect yet.
func New(conf *config.Config, log *logger.Logger) (*Client, error) {
	if conf.MQTT.Broker == "" {
		return nil, errors.New("mqtt broker is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}

	c := &Client{prefix: conf.MQTT.TopicPrefix, logger: log}
	opts := MQTT.NewClientOptions()
	opts.AddBroker(conf.MQTT.Broker)
	opts.SetClientID(conf.MQTT.ClientID)
	if conf.MQTT.Username != "" {
		opts.SetUsername(conf.MQTT.Username)
		opts.SetPassword(conf.MQTT.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(time.Second * 5)
	opts.SetMaxReconnectInterval(time.Minute)
	opts.SetOnConnectHandler(func(MQTT.Client) {
		c.logger.Info("MQTT connection established", slog.String("broker", conf.MQTT.Broker))
	})
	opts.SetConnectionLostHandler(func(_ MQTT.Client, err error) {
		c.logger.Error("MQTT connection lost", logger.Err(err))
	})

	c.client = MQTT.NewClient(opts)
	c.pub = c.client
	return c, nil
}

// Connect starts connecting to the broker. With connect retry enabled the token completes once
// the first connection attempt is scheduled, further attempts happen in the background.
func (c *Client) Connect() error {
	token := c.client.Connect()
	if !token.WaitTimeout(publishTimeout) {
		c.logger.Warn("MQTT broker not reachable yet, retrying in background")
		return nil
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}
	return nil
}

func (c *Client) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		c.client.Disconnect(disconnectQuiet)
	}
}

// Publish sends the state of the sensor as retained message to its state topic.
func (c *Client) Publish(s sensor.Sensor) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode sensor state: %w", err)
	}
	topic := Topic(c.prefix, s.UniqueID)
	token := c.pub.Publish(topic, qos, true, payload)
	if !token.WaitTimeout(publishTimeout) {
		return ErrPublishTimeout
	}
	if err = token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	c.logger.Debug("published sensor state", slog.String("topic", topic))
	return nil
}

// Topic returns the state topic of a sensor.
func Topic(prefix, uniqueID string) string {
	return fmt.Sprintf("%s/%s/state", prefix, uniqueID)
}
