// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package engine composes the posture pipeline: every sample runs through the
// feedback monitor, the rolling score window, the session aggregator and the
// calibration collector, in that order, before any handler sees it.
package engine

import (
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/relabs-tech/posture_monitor/internal/feedback"
	"github.com/relabs-tech/posture_monitor/internal/metrics"
	"github.com/relabs-tech/posture_monitor/internal/orientation"
	"github.com/relabs-tech/posture_monitor/internal/posture"
	"github.com/relabs-tech/posture_monitor/internal/score"
	"github.com/relabs-tech/posture_monitor/internal/session"
)

const (
	DefaultSampleRate          = 50.0 // Hz
	MaxSampleRate              = 100.0
	DefaultCalibrationDuration = 5 * time.Second
)

// StatsSink receives statistics when a session completes. Implementations
// must hand off and return; the engine does not wait on persistence.
type StatsSink interface {
	Store(session.Statistics) error
}

// Options configures a new Engine. Zero values pick defaults.
type Options struct {
	Settings            feedback.Settings
	Target              *posture.Posture // nil uses posture.StandardSitting
	WindowSize          int
	SampleRate          float64
	CalibrationDuration time.Duration

	Clock        func() time.Time
	Logger       *zap.Logger
	Metrics      *metrics.Metrics
	FeedbackSink feedback.Sink
	StatsSink    StatsSink
}

// Engine is safe for concurrent use. Samples and control operations are
// serialised; handlers run synchronously, in arrival order, after the state
// lock is released and before the call returns. Handlers must not call
// Process or any other mutating method.
type Engine struct {
	// dispatch serialises mutations together with their handler fan-out.
	dispatch sync.Mutex
	mu       sync.Mutex

	clock   func() time.Time
	log     *zap.Logger
	metrics *metrics.Metrics
	fbSink  feedback.Sink
	stSink  StatsSink

	settings   feedback.Settings
	target     posture.Posture
	sampleRate float64

	monitor  *feedback.Monitor
	window   *score.Window
	sessions *session.Aggregator
	calib    calibration

	current    posture.Posture
	hasCurrent bool
	motion     orientation.MotionState
	lastScore  float64

	monitoring    bool
	monitorPaused bool
	monitorStart  time.Time
	monitorPause  time.Time
	monitorIdle   time.Duration

	onSample   []func(Snapshot)
	onFeedback []func(feedback.Event)
	onSession  []func(session.Statistics)
	onCalib    []func(CalibrationResult)
	onRate     []func(float64)
}

// New validates opts and returns an engine that is not yet monitoring.
func New(opts Options) (*Engine, error) {
	if opts.Settings == (feedback.Settings{}) {
		opts.Settings = feedback.DefaultSettings()
	}
	if err := opts.Settings.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigurationOutOfRange, err)
	}
	if opts.SampleRate == 0 {
		opts.SampleRate = DefaultSampleRate
	}
	if err := checkSampleRate(opts.SampleRate); err != nil {
		return nil, err
	}
	if opts.CalibrationDuration <= 0 {
		opts.CalibrationDuration = DefaultCalibrationDuration
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	target := posture.StandardSitting()
	if opts.Target != nil {
		if err := opts.Target.Validate(); err != nil {
			return nil, fmt.Errorf("%w: target: %v", ErrConfigurationOutOfRange, err)
		}
		target = *opts.Target
	}

	return &Engine{
		clock:      opts.Clock,
		log:        opts.Logger.Named("engine"),
		metrics:    opts.Metrics,
		fbSink:     opts.FeedbackSink,
		stSink:     opts.StatsSink,
		settings:   opts.Settings,
		target:     target,
		sampleRate: opts.SampleRate,
		monitor:    feedback.NewMonitor(),
		window:     score.NewWindow(opts.WindowSize),
		sessions:   session.NewAggregator(),
		calib:      calibration{defaultDuration: opts.CalibrationDuration},
		lastScore:  100,
	}, nil
}

func checkSampleRate(hz float64) error {
	if math.IsNaN(hz) || hz <= 0 || hz > MaxSampleRate {
		return fmt.Errorf("%w: sample rate must be in (0, %v], got %v", ErrConfigurationOutOfRange, MaxSampleRate, hz)
	}
	return nil
}

// OnSample registers a handler called with the state after each sample.
func (e *Engine) OnSample(fn func(Snapshot)) {
	e.mu.Lock()
	e.onSample = append(e.onSample, fn)
	e.mu.Unlock()
}

// OnFeedback registers a handler for every emitted feedback event.
func (e *Engine) OnFeedback(fn func(feedback.Event)) {
	e.mu.Lock()
	e.onFeedback = append(e.onFeedback, fn)
	e.mu.Unlock()
}

// OnSessionComplete registers a handler for sessions that ended with data.
func (e *Engine) OnSessionComplete(fn func(session.Statistics)) {
	e.mu.Lock()
	e.onSession = append(e.onSession, fn)
	e.mu.Unlock()
}

// OnCalibration registers a handler for finished calibrations, successful or not.
func (e *Engine) OnCalibration(fn func(CalibrationResult)) {
	e.mu.Lock()
	e.onCalib = append(e.onCalib, fn)
	e.mu.Unlock()
}

// OnSampleRate registers a handler for accepted sample rate changes. The
// engine only reports the rate; sources are paced by whoever listens here.
func (e *Engine) OnSampleRate(fn func(hz float64)) {
	e.mu.Lock()
	e.onRate = append(e.onRate, fn)
	e.mu.Unlock()
}

// outbox collects what a locked step produced so it can be delivered once
// the state lock is released.
type outbox struct {
	snapshot *Snapshot
	event    *feedback.Event
	stats    *session.Statistics
	calib    *CalibrationResult
	rate     *float64

	onSample   []func(Snapshot)
	onFeedback []func(feedback.Event)
	onSession  []func(session.Statistics)
	onCalib    []func(CalibrationResult)
	onRate     []func(float64)
}

func (e *Engine) newOutbox() *outbox {
	return &outbox{
		onSample:   e.onSample,
		onFeedback: e.onFeedback,
		onSession:  e.onSession,
		onCalib:    e.onCalib,
		onRate:     e.onRate,
	}
}

func (e *Engine) deliver(o *outbox) {
	if o.event != nil {
		if e.fbSink != nil {
			if err := e.fbSink.Deliver(*o.event); err != nil {
				e.log.Warn("feedback sink failed", zap.Error(err))
			}
		}
		for _, fn := range o.onFeedback {
			fn(*o.event)
		}
	}
	if o.stats != nil {
		if e.stSink != nil {
			if err := e.stSink.Store(*o.stats); err != nil {
				e.log.Warn("statistics sink failed", zap.String("session", o.stats.ID), zap.Error(err))
			}
		}
		for _, fn := range o.onSession {
			fn(*o.stats)
		}
	}
	if o.calib != nil {
		for _, fn := range o.onCalib {
			fn(*o.calib)
		}
	}
	if o.rate != nil {
		for _, fn := range o.onRate {
			fn(*o.rate)
		}
	}
	if o.snapshot != nil {
		for _, fn := range o.onSample {
			fn(*o.snapshot)
		}
	}
}

// Process converts an orientation sample and runs it through the pipeline.
func (e *Engine) Process(s orientation.Sample) error {
	q := s.Quaternion
	for _, v := range []float64{q.W, q.X, q.Y, q.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			e.metrics.Invalid()
			return fmt.Errorf("%w: quaternion %+v", ErrInvalidSample, q)
		}
	}
	motion := orientation.DetectMotionState(s.Acceleration, orientation.AngularVelocityFromRate(s.RotationRate))
	return e.process(posture.FromSample(s), motion)
}

// ProcessPosture runs an already converted posture through the pipeline. A
// zero timestamp is replaced with the engine clock.
func (e *Engine) ProcessPosture(p posture.Posture) error {
	return e.process(p, "")
}

func (e *Engine) process(p posture.Posture, motion orientation.MotionState) error {
	if err := p.Validate(); err != nil {
		e.metrics.Invalid()
		return fmt.Errorf("%w: %v", ErrInvalidSample, err)
	}

	e.dispatch.Lock()
	defer e.dispatch.Unlock()

	e.mu.Lock()
	now := e.clock()
	if p.Timestamp.IsZero() {
		p.Timestamp = now
	}
	e.motion = motion
	out := e.newOutbox()
	e.step(p, now, out)
	snap := e.snapshotLocked(now)
	out.snapshot = &snap
	e.mu.Unlock()

	e.deliver(out)
	return nil
}

// step is the single writer: monitor, window, session, calibration.
func (e *Engine) step(p posture.Posture, now time.Time, out *outbox) {
	e.current = p
	e.hasCurrent = true

	if e.monitoring && !e.monitorPaused {
		res := e.monitor.Evaluate(p, e.target, e.settings, now)
		if res.Entered {
			e.metrics.Deviation()
			e.sessions.RecordDeviation()
			e.log.Debug("deviation",
				zap.Float64("magnitude", res.Magnitude),
				zap.Int("count", res.DeviationCount))
		}
		if d := res.Decision; d != nil {
			if d.Emitted() {
				e.metrics.Emitted(d.Event.Level.String())
				out.event = d.Event
				e.log.Info("feedback",
					zap.Stringer("level", d.Event.Level),
					zap.String("instruction", d.Event.Instruction))
			} else {
				e.metrics.Suppressed(string(d.Suppressed))
				e.log.Debug("feedback suppressed", zap.String("reason", string(d.Suppressed)))
			}
		}

		e.window.Push(p)
		e.lastScore = e.window.Score(e.target, e.settings.Sensitivity)
		e.metrics.Score(e.lastScore)
	}

	e.metrics.Sample()
	e.sessions.Record(p)

	if e.calib.active {
		if now.Before(e.calib.deadline) {
			e.calib.collected = append(e.calib.collected, p)
		} else {
			r := e.finishCalibrationLocked(now)
			out.calib = &r
		}
	}
}

// StartMonitoring begins feedback evaluation and scoring. The deviation count
// and score window are reset. Calling it while monitoring does nothing.
func (e *Engine) StartMonitoring() {
	e.dispatch.Lock()
	defer e.dispatch.Unlock()
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.monitoring {
		return
	}
	e.startMonitoringLocked(e.clock())
}

func (e *Engine) startMonitoringLocked(now time.Time) {
	e.monitor.Reset()
	e.window.Reset()
	e.lastScore = 100
	e.monitoring = true
	e.monitorPaused = false
	e.monitorStart = now
	e.monitorIdle = 0
	e.log.Info("monitoring started")
}

// StopMonitoring is idempotent. A running session keeps what it recorded.
func (e *Engine) StopMonitoring() {
	e.dispatch.Lock()
	defer e.dispatch.Unlock()
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.monitoring {
		return
	}
	e.monitoring = false
	e.monitorPaused = false
	e.log.Info("monitoring stopped", zap.Int("deviations", e.monitor.DeviationCount()))
}

// PauseMonitoring suspends evaluation and freezes the monitoring clock.
func (e *Engine) PauseMonitoring() {
	e.dispatch.Lock()
	defer e.dispatch.Unlock()
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.monitoring || e.monitorPaused {
		return
	}
	e.monitorPaused = true
	e.monitorPause = e.clock()
}

// ResumeMonitoring continues a paused monitor without resetting anything.
func (e *Engine) ResumeMonitoring() {
	e.dispatch.Lock()
	defer e.dispatch.Unlock()
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.monitoring || !e.monitorPaused {
		return
	}
	if now := e.clock(); now.After(e.monitorPause) {
		e.monitorIdle += now.Sub(e.monitorPause)
	}
	e.monitorPaused = false
}

func (e *Engine) monitoringDurationLocked(now time.Time) time.Duration {
	if !e.monitoring {
		return 0
	}
	if e.monitorPaused {
		now = e.monitorPause
	}
	d := now.Sub(e.monitorStart) - e.monitorIdle
	if d < 0 {
		return 0
	}
	return d
}

// StartSession opens a session against the current target, with the current
// sensitivity as its tolerance. Monitoring is started if it was stopped.
func (e *Engine) StartSession(kind session.Kind) (string, error) {
	e.dispatch.Lock()
	defer e.dispatch.Unlock()
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock()
	if err := e.sessions.Start(kind, e.target, e.settings.Sensitivity, now); err != nil {
		return "", err
	}
	if !e.monitoring {
		e.startMonitoringLocked(now)
	}
	e.log.Info("session started", zap.String("session", e.sessions.ID()), zap.String("kind", string(kind)))
	return e.sessions.ID(), nil
}

func (e *Engine) PauseSession() error {
	e.dispatch.Lock()
	defer e.dispatch.Unlock()
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessions.Pause(e.clock())
}

func (e *Engine) ResumeSession() error {
	e.dispatch.Lock()
	defer e.dispatch.Unlock()
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessions.Resume(e.clock())
}

// CancelSession abandons the running session without statistics.
func (e *Engine) CancelSession() error {
	e.dispatch.Lock()
	defer e.dispatch.Unlock()
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessions.Cancel(e.clock())
}

// EndSession closes the running session. ok is false when it recorded no
// samples; nothing is sent to the sinks in that case.
func (e *Engine) EndSession() (st session.Statistics, ok bool, err error) {
	e.dispatch.Lock()
	defer e.dispatch.Unlock()

	e.mu.Lock()
	id := e.sessions.ID()
	st, ok, err = e.sessions.End(e.clock())
	out := e.newOutbox()
	if ok {
		out.stats = &st
		e.metrics.SessionCompleted(string(st.Grade))
	}
	e.mu.Unlock()

	if err != nil {
		return st, false, err
	}
	if !ok {
		e.log.Info("session ended without data", zap.String("session", id))
		return st, false, nil
	}

	e.log.Info("session completed",
		zap.String("session", st.ID),
		zap.Int("score", st.Score),
		zap.String("grade", string(st.Grade)),
		zap.Duration("duration", st.Duration))
	e.deliver(out)
	return st, true, nil
}

// SetTarget replaces the reference posture from the next sample on.
func (e *Engine) SetTarget(p posture.Posture) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: target: %v", ErrConfigurationOutOfRange, err)
	}
	e.mu.Lock()
	e.target = p
	e.mu.Unlock()
	return nil
}

func (e *Engine) Target() posture.Posture {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.target
}

// SetSettings validates s and swaps it in; on error the prior settings stay.
func (e *Engine) SetSettings(s feedback.Settings) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigurationOutOfRange, err)
	}
	e.mu.Lock()
	e.settings = s
	e.mu.Unlock()
	e.log.Info("settings updated",
		zap.Float64("sensitivity", s.Sensitivity),
		zap.Duration("alert_delay", s.AlertDelay),
		zap.String("strategy", string(s.Strategy)))
	return nil
}

func (e *Engine) Settings() feedback.Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings
}

// SetSampleRate accepts rates in (0, 100] Hz. A changed rate is passed to
// the OnSampleRate handlers; setting the current rate again does nothing.
func (e *Engine) SetSampleRate(hz float64) error {
	if err := checkSampleRate(hz); err != nil {
		return err
	}

	e.dispatch.Lock()
	defer e.dispatch.Unlock()

	e.mu.Lock()
	if hz == e.sampleRate {
		e.mu.Unlock()
		return nil
	}
	e.sampleRate = hz
	out := e.newOutbox()
	out.rate = &hz
	e.mu.Unlock()

	e.deliver(out)
	return nil
}

func (e *Engine) SampleRate() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sampleRate
}
