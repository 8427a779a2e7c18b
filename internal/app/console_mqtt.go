// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/relabs-tech/posture_monitor/internal/config"
	"github.com/relabs-tech/posture_monitor/internal/engine"
	"github.com/relabs-tech/posture_monitor/internal/feedback"
	"github.com/relabs-tech/posture_monitor/internal/session"
	"github.com/relabs-tech/posture_monitor/internal/transport"
)

// RunConsoleMQTT prints feedback, state and session results published by the
// monitor until interrupted.
func RunConsoleMQTT(cfg *config.Config, log *zap.Logger) error {
	log = log.Named("console")

	client, err := transport.Connect(cfg.MQTTBroker, cfg.MQTTClientIDConsole)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	log.Info("connected to MQTT broker", zap.String("broker", cfg.MQTTBroker))

	subs := map[string]func(io.Writer, []byte) error{
		cfg.TopicFeedback:    printFeedback,
		cfg.TopicState:       printState,
		cfg.TopicStatistics:  printStatistics,
		cfg.TopicCalibration: printCalibration,
	}
	for topic, show := range subs {
		token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
			if err := show(os.Stdout, msg.Payload()); err != nil {
				log.Warn("payload unmarshal error", zap.String("topic", msg.Topic()), zap.Error(err))
			}
		})
		token.Wait()
		if token.Error() != nil {
			return token.Error()
		}
		log.Info("subscribed", zap.String("topic", topic))
	}

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	return nil
}

func printFeedback(w io.Writer, payload []byte) error {
	var ev feedback.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return err
	}
	fmt.Fprintf(w, "[FEEDBACK] %-8s %-7s %5.1f°  %s\n", ev.Level, ev.Axis, ev.Magnitude, ev.Instruction)
	return nil
}

func printState(w io.Writer, payload []byte) error {
	var s engine.Snapshot
	if err := json.Unmarshal(payload, &s); err != nil {
		return err
	}
	if s.CurrentPosture == nil {
		fmt.Fprintf(w, "[STATE] waiting for samples  monitoring=%t\n", s.IsMonitoring)
		return nil
	}
	p := s.CurrentPosture
	fmt.Fprintf(w, "[STATE] PITCH=%6.2f  YAW=%6.2f  ROLL=%6.2f  type=%-14s score=%5.1f  deviating=%t\n",
		p.Pitch, p.Yaw, p.Roll, s.PostureType, s.PostureScore, s.IsDeviating)
	return nil
}

func printStatistics(w io.Writer, payload []byte) error {
	var st session.Statistics
	if err := json.Unmarshal(payload, &st); err != nil {
		return err
	}
	fmt.Fprintf(w, "[SESSION] %s %s  duration=%s  samples=%d  accuracy=%.0f%%  score=%d (%s)\n",
		st.Kind, st.ID, st.Duration, st.DataPointCount, st.Accuracy*100, st.Score, st.Grade)
	fmt.Fprintf(w, "[SESSION] %s\n", st.Grade.Suggestion())
	return nil
}

func printCalibration(w io.Writer, payload []byte) error {
	var m calibrationMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return err
	}
	if !m.OK {
		fmt.Fprintf(w, "[CALIB] failed: %s\n", m.Error)
		return nil
	}
	fmt.Fprintf(w, "[CALIB] new target PITCH=%6.2f  YAW=%6.2f  ROLL=%6.2f  from %d samples\n",
		m.Target.Pitch, m.Target.Yaw, m.Target.Roll, m.Samples)
	return nil
}
