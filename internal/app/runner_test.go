// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/relabs-tech/posture_monitor/internal/config"
	"github.com/relabs-tech/posture_monitor/internal/engine"
	"github.com/relabs-tech/posture_monitor/internal/feedback"
	"github.com/relabs-tech/posture_monitor/internal/orientation"
	"github.com/relabs-tech/posture_monitor/internal/posture"
	"github.com/relabs-tech/posture_monitor/internal/session"
)

type fakePublisher struct {
	mu     sync.Mutex
	topics []string
	bodies [][]byte
}

func (f *fakePublisher) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = append(f.topics, topic)
	f.bodies = append(f.bodies, payload.([]byte))
	return &mqtt.DummyToken{}
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.topics)
}

type sliceSource struct {
	samples []orientation.Sample
	err     error
}

func (s *sliceSource) Next() (orientation.Sample, error) {
	if len(s.samples) == 0 {
		if s.err != nil {
			return orientation.Sample{}, s.err
		}
		return orientation.Sample{}, io.EOF
	}
	next := s.samples[0]
	s.samples = s.samples[1:]
	return next, nil
}

func TestPublishSamplesUntilEOF(t *testing.T) {
	src := &sliceSource{samples: []orientation.Sample{
		{Quaternion: orientation.Identity, Quality: 1},
		{Quaternion: orientation.FromEuler(10, 0, 0), Quality: 1},
		{Quaternion: orientation.FromEuler(-5, 0, 2), Quality: 0.8},
	}}
	pub := &fakePublisher{}

	n, err := publishSamples(context.Background(), src, pub, "posture/samples", 0, nil, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.Equal(t, 3, pub.count())
	assert.Equal(t, "posture/samples", pub.topics[0])

	var s orientation.Sample
	require.NoError(t, json.Unmarshal(pub.bodies[1], &s))
	pitch, _, _ := orientation.QuaternionToEuler(s.Quaternion)
	assert.InDelta(t, 10, pitch, 1e-9)
}

func TestPublishSamplesSourceError(t *testing.T) {
	boom := errors.New("port gone")
	src := &sliceSource{samples: []orientation.Sample{{Quaternion: orientation.Identity}}, err: boom}

	n, err := publishSamples(context.Background(), src, &fakePublisher{}, "t", 0, nil, zap.NewNop())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, n)
}

func TestPublishSamplesStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pub := &fakePublisher{}
	done := make(chan int)
	go func() {
		n, _ := publishSamples(ctx, orientation.NewMockSource(), pub, "t", 5*time.Millisecond, nil, zap.NewNop())
		done <- n
	}()

	assert.Eventually(t, func() bool { return pub.count() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case n := <-done:
		assert.GreaterOrEqual(t, n, 2)
	case <-time.After(2 * time.Second):
		t.Fatal("publishSamples did not stop")
	}
}

func TestPublishSamplesFollowsIntervalChanges(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pub := &fakePublisher{}
	intervals := make(chan time.Duration, 1)
	go publishSamples(ctx, orientation.NewMockSource(), pub, "t", time.Hour, intervals, zap.NewNop())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, pub.count())

	intervals <- 5 * time.Millisecond
	assert.Eventually(t, func() bool { return pub.count() >= 2 }, 2*time.Second, 5*time.Millisecond)
}

// blockingSource stands in for a serial sensor that went quiet.
type blockingSource struct {
	closed chan struct{}
}

func (b *blockingSource) Next() (orientation.Sample, error) {
	<-b.closed
	return orientation.Sample{}, errors.New("read on closed port")
}

func TestPublishSamplesUnblocksQuietSourceOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := &blockingSource{closed: make(chan struct{})}
	go closeOnDone(ctx, func() { close(src.closed) })

	type result struct {
		n   int
		err error
	}
	done := make(chan result)
	go func() {
		n, err := publishSamples(ctx, src, &fakePublisher{}, "t", 0, nil, zap.NewNop())
		done <- result{n, err}
	}()

	cancel()
	select {
	case r := <-done:
		assert.NoError(t, r.err)
		assert.Equal(t, 0, r.n)
	case <-time.After(2 * time.Second):
		t.Fatal("publishSamples stayed blocked on the source")
	}
}

func TestParseSampleRate(t *testing.T) {
	d, err := parseSampleRate([]byte(`{"hz":25}`))
	require.NoError(t, err)
	assert.Equal(t, 40*time.Millisecond, d)

	_, err = parseSampleRate([]byte(`{"hz":0}`))
	assert.Error(t, err)
	_, err = parseSampleRate([]byte(`{"hz":250}`))
	assert.Error(t, err)
	_, err = parseSampleRate([]byte(`nope`))
	assert.Error(t, err)
}

func TestPublishSampleRate(t *testing.T) {
	pub := &fakePublisher{}
	publishSampleRate(pub, "posture/control/sample_rate", 20, zap.NewNop())

	require.Equal(t, 1, pub.count())
	d, err := parseSampleRate(pub.bodies[0])
	require.NoError(t, err)
	assert.Equal(t, 50*time.Millisecond, d)
}

func TestOpenSource(t *testing.T) {
	cfg, err := config.Defaults()
	require.NoError(t, err)

	src, interval, closeSrc, err := openSource(cfg)
	require.NoError(t, err)
	defer closeSrc()
	assert.NotNil(t, src)
	assert.Equal(t, 20*time.Millisecond, interval)

	cfg.SampleSource = "carrier-pigeon"
	_, _, _, err = openSource(cfg)
	assert.Error(t, err)
}

func TestPublishState(t *testing.T) {
	eng, err := engine.New(engine.Options{})
	require.NoError(t, err)
	require.NoError(t, eng.StartCalibration(time.Millisecond))

	pub := &fakePublisher{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go publishState(ctx, eng, pub, "posture/state", 5*time.Millisecond, zap.NewNop())

	assert.Eventually(t, func() bool { return pub.count() >= 2 }, 2*time.Second, 5*time.Millisecond)

	// the empty calibration window was closed by the ticker
	assert.False(t, eng.CalibrationStatus().Active)

	pub.mu.Lock()
	var snap engine.Snapshot
	require.NoError(t, json.Unmarshal(pub.bodies[0], &snap))
	assert.Equal(t, "posture/state", pub.topics[0])
	pub.mu.Unlock()
}

type failingSink struct{ err error }

func (f failingSink) Store(session.Statistics) error { return f.err }

func TestStatsSinksJoinsErrors(t *testing.T) {
	var got []string
	record := sinkFunc(func(st session.Statistics) error {
		got = append(got, st.ID)
		return nil
	})
	boom := errors.New("redis down")

	sinks := statsSinks{failingSink{boom}, record}
	err := sinks.Store(session.Statistics{ID: "s1"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"s1"}, got)

	assert.NoError(t, statsSinks{record}.Store(session.Statistics{ID: "s2"}))
}

type sinkFunc func(session.Statistics) error

func (f sinkFunc) Store(st session.Statistics) error { return f(st) }

func TestCalibrationMessage(t *testing.T) {
	ok := newCalibrationMessage(engine.CalibrationResult{Target: posture.New(-8, 1, 2, time.Time{}), Samples: 250})
	assert.True(t, ok.OK)
	assert.Empty(t, ok.Error)
	assert.Equal(t, 250, ok.Samples)

	failed := newCalibrationMessage(engine.CalibrationResult{Err: engine.ErrNoCalibrationData})
	assert.False(t, failed.OK)
	assert.Equal(t, engine.ErrNoCalibrationData.Error(), failed.Error)
}

func TestApplyConfig(t *testing.T) {
	eng, err := engine.New(engine.Options{})
	require.NoError(t, err)

	cfg, err := config.Defaults()
	require.NoError(t, err)
	cfg.Sensitivity = 9
	cfg.SampleRate = 20
	applyConfig(eng, cfg, zap.NewNop())
	assert.Equal(t, 9.0, eng.Settings().Sensitivity)
	assert.Equal(t, 20.0, eng.SampleRate())

	cfg.Sensitivity = 0
	cfg.SampleRate = 500
	applyConfig(eng, cfg, zap.NewNop())
	assert.Equal(t, 9.0, eng.Settings().Sensitivity)
	assert.Equal(t, 20.0, eng.SampleRate())
}

func TestConsolePrinters(t *testing.T) {
	var buf bytes.Buffer

	ev := feedback.Event{Level: feedback.LevelModerate, Axis: posture.AxisPitch, Magnitude: 22.5, Instruction: "Head too low, please raise"}
	b, _ := json.Marshal(ev)
	require.NoError(t, printFeedback(&buf, b))
	assert.Contains(t, buf.String(), "[FEEDBACK] moderate")
	assert.Contains(t, buf.String(), "Head too low, please raise")

	buf.Reset()
	st := session.Statistics{ID: "s1", Kind: session.KindTraining, Score: 91, Grade: session.GradeExcellent, Accuracy: 0.91}
	b, _ = json.Marshal(st)
	require.NoError(t, printStatistics(&buf, b))
	assert.Contains(t, buf.String(), "score=91 (excellent)")
	assert.Contains(t, buf.String(), session.GradeExcellent.Suggestion())

	buf.Reset()
	b, _ = json.Marshal(engine.Snapshot{IsMonitoring: true})
	require.NoError(t, printState(&buf, b))
	assert.Contains(t, buf.String(), "waiting for samples")

	buf.Reset()
	p := posture.New(-20, 0, 0, time.Time{})
	b, _ = json.Marshal(engine.Snapshot{CurrentPosture: &p, PostureType: posture.Forward, PostureScore: 42})
	require.NoError(t, printState(&buf, b))
	assert.Contains(t, buf.String(), "PITCH=-20.00")
	assert.Contains(t, buf.String(), fmt.Sprintf("score=%5.1f", 42.0))

	buf.Reset()
	b, _ = json.Marshal(calibrationMessage{Error: "no calibration data"})
	require.NoError(t, printCalibration(&buf, b))
	assert.Contains(t, buf.String(), "failed: no calibration data")

	assert.Error(t, printFeedback(&buf, []byte("{")))
}
