// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/relabs-tech/posture_monitor/internal/config"
	"github.com/relabs-tech/posture_monitor/internal/engine"
	"github.com/relabs-tech/posture_monitor/internal/metrics"
	"github.com/relabs-tech/posture_monitor/internal/orientation"
	"github.com/relabs-tech/posture_monitor/internal/posture"
	"github.com/relabs-tech/posture_monitor/internal/session"
	"github.com/relabs-tech/posture_monitor/internal/store"
	"github.com/relabs-tech/posture_monitor/internal/transport"
)

const (
	shutdownTimeout = 5 * time.Second
	persistTimeout  = 5 * time.Second
)

// calibrationMessage is the MQTT form of engine.CalibrationResult.
type calibrationMessage struct {
	OK       bool            `json:"ok"`
	Samples  int             `json:"samples"`
	Target   posture.Posture `json:"target"`
	Finished time.Time       `json:"finished"`
	Error    string          `json:"error,omitempty"`
}

func newCalibrationMessage(r engine.CalibrationResult) calibrationMessage {
	m := calibrationMessage{OK: r.OK(), Samples: r.Samples, Target: r.Target, Finished: r.Finished}
	if r.Err != nil {
		m.Error = r.Err.Error()
	}
	return m
}

// statsSinks hands statistics to every sink and joins their errors.
type statsSinks []engine.StatsSink

func (s statsSinks) Store(st session.Statistics) error {
	var errs []error
	for _, sink := range s {
		if err := sink.Store(st); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RunMonitor subscribes to orientation samples, evaluates them and serves the
// control API until interrupted. configPath is watched for feedback and
// sample rate changes; an empty path disables the watch.
func RunMonitor(cfg *config.Config, configPath string, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	client, err := transport.Connect(cfg.MQTTBroker, cfg.MQTTClientIDMonitor)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	log.Info("connected to MQTT broker", zap.String("broker", cfg.MQTTBroker))

	sinks := statsSinks{transport.NewStatsSink(client, cfg.TopicStatistics)}
	var history HistoryStore
	if cfg.RedisAddr != "" {
		rdb, err := store.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Warn("session history disabled", zap.Error(err))
		} else {
			defer rdb.Close()
			st := store.New(rdb, store.Options{Limit: cfg.HistoryLimit})
			async := store.NewAsyncSink(st, persistTimeout, log)
			defer async.Wait()
			sinks = append(sinks, async)
			history = st
		}
	}

	target := cfg.Target()
	eng, err := engine.New(engine.Options{
		Settings:            cfg.Settings(),
		Target:              &target,
		WindowSize:          cfg.ScoreWindow,
		SampleRate:          cfg.SampleRate,
		CalibrationDuration: cfg.CalibrationDuration,
		Logger:              log,
		Metrics:             m,
		FeedbackSink:        transport.NewFeedbackSink(client, cfg.TopicFeedback),
		StatsSink:           sinks,
	})
	if err != nil {
		return err
	}

	eng.OnCalibration(func(r engine.CalibrationResult) {
		if err := transport.PublishJSON(client, cfg.TopicCalibration, true, newCalibrationMessage(r)); err != nil {
			log.Warn("calibration publish failed", zap.Error(err))
		}
	})

	eng.OnSampleRate(func(hz float64) {
		publishSampleRate(client, cfg.TopicSampleRate, hz, log)
	})
	publishSampleRate(client, cfg.TopicSampleRate, eng.SampleRate(), log)

	token := client.Subscribe(cfg.TopicSamples, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var s orientation.Sample
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			m.Invalid()
			log.Debug("sample unmarshal error", zap.Error(err))
			return
		}
		if err := eng.Process(s); err != nil {
			log.Debug("sample rejected", zap.Error(err))
		}
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Info("subscribed to samples", zap.String("topic", cfg.TopicSamples))

	eng.StartMonitoring()

	if configPath != "" {
		go func() {
			err := config.Watch(ctx, configPath, log, func(c *config.Config) {
				applyConfig(eng, c, log)
			})
			if err != nil {
				log.Warn("config watch disabled", zap.Error(err))
			}
		}()
	}

	go publishState(ctx, eng, client, cfg.TopicState, cfg.StatePublishInterval, log)

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.WebServerPort),
		Handler: NewRouter(WebOptions{
			Engine:        eng,
			History:       history,
			Metrics:       m,
			Gatherer:      reg,
			Logger:        log,
			StateInterval: cfg.StatePublishInterval,
		}),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("web server listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("web server: %w", err)
		}
	}

	log.Info("shutting down")
	if _, ok, err := eng.EndSession(); err == nil && ok {
		log.Info("open session recorded on shutdown")
	}
	eng.StopMonitoring()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// sampleRateMessage tells the producer how fast to publish.
type sampleRateMessage struct {
	Hz float64 `json:"hz"`
}

// publishSampleRate is retained so a producer that starts later picks up the
// current rate.
func publishSampleRate(pub transport.Publisher, topic string, hz float64, log *zap.Logger) {
	if err := transport.PublishJSON(pub, topic, true, sampleRateMessage{Hz: hz}); err != nil {
		log.Warn("sample rate publish failed", zap.Error(err))
	}
}

// applyConfig pushes the reloadable part of a config into the engine.
func applyConfig(eng *engine.Engine, c *config.Config, log *zap.Logger) {
	if err := eng.SetSettings(c.Settings()); err != nil {
		log.Warn("reloaded settings rejected", zap.Error(err))
	}
	if err := eng.SetSampleRate(c.SampleRate); err != nil {
		log.Warn("reloaded sample rate rejected", zap.Error(err))
	}
	log.Info("configuration reloaded")
}

// publishState publishes a snapshot every interval. It also closes
// calibration windows whose samples stopped before the deadline.
func publishState(ctx context.Context, eng *engine.Engine, pub transport.Publisher, topic string, every time.Duration, log *zap.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			eng.PollCalibration()
			if err := transport.PublishJSON(pub, topic, true, eng.Snapshot()); err != nil {
				log.Warn("state publish failed", zap.Error(err))
			}
		}
	}
}
