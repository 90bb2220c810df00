// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package mqtt publishes bridge state to an MQTT broker and turns messages
// on command topics into bridge intents. Topic layout and discovery follow
// Home Assistant conventions.
package mqtt

import (
	"errors"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Thermoquad/autoterm-bridge/pkg/bridge"
)

// PasswordEnv holds the broker password
const PasswordEnv = "AUTOTERM_MQTT_PASSWORD"

// Config describes the broker connection
type Config struct {
	Broker          string // tcp://host:1883
	Username        string
	Password        string
	ClientID        string
	Prefix          string // topic prefix, "autoterm" when empty
	DiscoveryPrefix string // Home Assistant discovery prefix, disabled when empty
}

func (c Config) prefix() string {
	if c.Prefix == "" {
		return "autoterm"
	}
	return c.Prefix
}

func (c Config) clientID() string {
	if c.ClientID == "" {
		return "autoterm_bridge"
	}
	return c.ClientID
}

// Publisher is the part of a paho client the sink needs
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

// Client is a connected MQTT sink and intent source
type Client struct {
	*Sink
	client  paho.Client
	cfg     Config
	intents chan<- bridge.Intent
	log     zerolog.Logger
}

// Connect opens the broker connection. Messages on command topics are
// parsed and sent to intents without blocking; they are dropped when the
// channel is full. The connection is retried in the background when the
// broker is unreachable.
func Connect(cfg Config, intents chan<- bridge.Intent) (*Client, error) {
	if cfg.Broker == "" {
		return nil, errors.New("no MQTT broker given")
	}

	c := &Client{
		cfg:     cfg,
		intents: intents,
		log:     log.With().Str("component", "mqtt").Logger(),
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetClientID(cfg.clientID())
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetWill(availabilityTopic(cfg.prefix()), "offline", 0, true)
	opts.SetOnConnectHandler(func(pc paho.Client) {
		c.log.Info().Str("broker", cfg.Broker).Msg("Connected to MQTT broker")
		pc.Subscribe(cfg.prefix()+"/+/set", 0, c.handleMessage)
		pc.Subscribe(cfg.prefix()+"/climate/+/set", 0, c.handleMessage)

		// Retained state is lost when the broker restarts
		c.Sink.Republish()
		pc.Publish(availabilityTopic(cfg.prefix()), 0, true, "online")
		if cfg.DiscoveryPrefix != "" {
			PublishDiscovery(pc, cfg.DiscoveryPrefix, cfg.prefix(), cfg.clientID())
		}
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		c.log.Warn().Err(err).Msg("MQTT connection lost")
	})

	c.client = paho.NewClient(opts)
	c.Sink = NewSink(c.client, cfg.prefix())

	if token := c.client.Connect(); token.WaitTimeout(5*time.Second) && token.Error() != nil {
		c.log.Warn().Err(token.Error()).Msg("Could not connect to MQTT initially, will retry in background")
	}
	return c, nil
}

func (c *Client) handleMessage(_ paho.Client, msg paho.Message) {
	name, ok := CommandName(c.cfg.prefix(), msg.Topic())
	if !ok {
		return
	}
	payload := string(msg.Payload())

	in, err := ParseCommand(name, payload)
	if err != nil {
		c.log.Warn().Err(err).Str("topic", msg.Topic()).Str("payload", payload).Msg("Invalid command")
		return
	}
	c.log.Info().Str("command", name).Str("payload", payload).Msg("Received command")

	select {
	case c.intents <- in:
	default:
		c.log.Warn().Str("command", name).Msg("Intent queue full, command dropped")
	}
}

// Close marks the bridge offline and disconnects
func (c *Client) Close() {
	token := c.client.Publish(availabilityTopic(c.cfg.prefix()), 0, true, "offline")
	token.WaitTimeout(time.Second)
	c.client.Disconnect(250)
}

func availabilityTopic(prefix string) string {
	return fmt.Sprintf("%s/availability", prefix)
}
