// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/relabs-tech/posture_monitor/internal/config"
	"github.com/relabs-tech/posture_monitor/internal/engine"
	"github.com/relabs-tech/posture_monitor/internal/orientation"
	"github.com/relabs-tech/posture_monitor/internal/transport"
)

// RunProducer reads orientation samples from the configured source and
// publishes them for the monitor.
func RunProducer(cfg *config.Config, log *zap.Logger) error {
	log = log.Named("producer")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, interval, closeSrc, err := openSource(cfg)
	if err != nil {
		return err
	}
	defer closeSrc()
	// A quiet serial sensor blocks Next forever; closing the port unblocks it.
	go closeOnDone(ctx, closeSrc)

	client, err := transport.Connect(cfg.MQTTBroker, cfg.MQTTClientIDProducer)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	intervals := make(chan time.Duration, 1)
	if interval > 0 {
		token := client.Subscribe(cfg.TopicSampleRate, 0, func(_ mqtt.Client, msg mqtt.Message) {
			d, err := parseSampleRate(msg.Payload())
			if err != nil {
				log.Warn("bad sample rate message", zap.Error(err))
				return
			}
			select {
			case intervals <- d:
			default:
				// replace a pending change nobody has applied yet
				select {
				case <-intervals:
				default:
				}
				intervals <- d
			}
		})
		token.Wait()
		if token.Error() != nil {
			return token.Error()
		}
	}

	log.Info("connected to MQTT, starting publish loop",
		zap.String("broker", cfg.MQTTBroker),
		zap.String("source", cfg.SampleSource),
		zap.String("topic", cfg.TopicSamples))

	n, err := publishSamples(ctx, src, client, cfg.TopicSamples, interval, intervals, log)
	log.Info("producer stopped", zap.Int("published", n))
	return err
}

// parseSampleRate decodes a sample rate message into a publish interval.
func parseSampleRate(payload []byte) (time.Duration, error) {
	var m sampleRateMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return 0, err
	}
	if m.Hz <= 0 || m.Hz > engine.MaxSampleRate {
		return 0, fmt.Errorf("sample rate must be in (0, %v], got %v", engine.MaxSampleRate, m.Hz)
	}
	return intervalFor(m.Hz), nil
}

func intervalFor(hz float64) time.Duration {
	return time.Duration(float64(time.Second) / hz)
}

// openSource picks the sample source. The mock source is paced by a ticker at
// the configured rate; a serial sensor paces itself.
func openSource(cfg *config.Config) (orientation.Source, time.Duration, func(), error) {
	switch cfg.SampleSource {
	case "mock":
		return orientation.NewMockSource(), intervalFor(cfg.SampleRate), func() {}, nil
	case "serial":
		src, err := orientation.NewSerialSource(orientation.SerialOptions{
			PortName: cfg.SerialPort,
			BaudRate: uint(cfg.SerialBaudRate),
		})
		if err != nil {
			return nil, 0, nil, err
		}
		var once sync.Once
		return src, 0, func() { once.Do(func() { src.Close() }) }, nil
	}
	return nil, 0, nil, fmt.Errorf("unknown sample source %q", cfg.SampleSource)
}

// publishSamples publishes until ctx is done or the source is exhausted and
// returns how many samples went out. interval 0 reads back to back and ignores
// intervals; otherwise each value received on intervals re-paces the ticker.
// A source error other than io.EOF ends the loop with that error, unless ctx
// is already done.
func publishSamples(ctx context.Context, src orientation.Source, pub transport.Publisher, topic string, interval time.Duration, intervals <-chan time.Duration, log *zap.Logger) (int, error) {
	var ticker *time.Ticker
	if interval > 0 {
		ticker = time.NewTicker(interval)
		defer ticker.Stop()
	}

	published := 0
	for {
		if ticker != nil {
			if !waitTick(ctx, ticker, intervals, log) {
				return published, nil
			}
		} else if ctx.Err() != nil {
			return published, nil
		}

		s, err := src.Next()
		if errors.Is(err, io.EOF) {
			log.Info("sample source exhausted")
			return published, nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return published, nil
			}
			return published, err
		}

		if err := transport.PublishJSON(pub, topic, false, s); err != nil {
			log.Warn("publish failed", zap.Error(err))
			continue
		}
		published++
	}
}

func closeOnDone(ctx context.Context, closeFn func()) {
	<-ctx.Done()
	closeFn()
}

// waitTick blocks until the next tick, applying interval changes on the way.
// It reports false once ctx is done.
func waitTick(ctx context.Context, ticker *time.Ticker, intervals <-chan time.Duration, log *zap.Logger) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case d := <-intervals:
			ticker.Reset(d)
			log.Info("publish interval changed", zap.Duration("interval", d))
		case <-ticker.C:
			return true
		}
	}
}
