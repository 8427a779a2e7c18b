// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package transport moves monitor data over MQTT.
package transport

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/posture_monitor/internal/feedback"
	"github.com/relabs-tech/posture_monitor/internal/session"
)

// Publisher is the subset of mqtt.Client the sinks use.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Connect dials the broker and waits for the connection.
func Connect(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker at %s: %w", broker, token.Error())
	}
	return client, nil
}

// PublishJSON marshals v and publishes it without waiting for the broker.
func PublishJSON(p Publisher, topic string, retained bool, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", topic, err)
	}
	p.Publish(topic, 0, retained, b)
	return nil
}

// FeedbackSink publishes feedback events for the audio side to play.
type FeedbackSink struct {
	pub   Publisher
	topic string
}

func NewFeedbackSink(p Publisher, topic string) *FeedbackSink {
	return &FeedbackSink{pub: p, topic: topic}
}

func (s *FeedbackSink) Deliver(ev feedback.Event) error {
	return PublishJSON(s.pub, s.topic, false, ev)
}

// StatsSink publishes session statistics, retained so a late subscriber sees
// the last completed session.
type StatsSink struct {
	pub   Publisher
	topic string
}

func NewStatsSink(p Publisher, topic string) *StatsSink {
	return &StatsSink{pub: p, topic: topic}
}

func (s *StatsSink) Store(st session.Statistics) error {
	return PublishJSON(s.pub, s.topic, true, st)
}
