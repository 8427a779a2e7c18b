// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package engine

import (
	"time"

	"go.uber.org/zap"

	"github.com/relabs-tech/posture_monitor/internal/posture"
)

// CalibrationResult reports a finished calibration. On failure Err is set and
// the target posture was not changed.
type CalibrationResult struct {
	Target   posture.Posture `json:"target"`
	Samples  int             `json:"samples"`
	Started  time.Time       `json:"started"`
	Finished time.Time       `json:"finished"`
	Err      error           `json:"-"`
}

// OK reports whether the calibration produced a new target.
func (r CalibrationResult) OK() bool { return r.Err == nil }

// CalibrationStatus is the progress of a running calibration.
type CalibrationStatus struct {
	Active    bool          `json:"active"`
	Samples   int           `json:"samples"`
	Remaining time.Duration `json:"remaining"`
	Progress  float64       `json:"progress"` // 0..1
}

type calibration struct {
	defaultDuration time.Duration

	active    bool
	started   time.Time
	deadline  time.Time
	collected []posture.Posture
}

// StartCalibration collects samples for d (the configured default when d is
// not positive). The average of what was collected becomes the new target.
func (e *Engine) StartCalibration(d time.Duration) error {
	e.dispatch.Lock()
	defer e.dispatch.Unlock()
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.calib.active {
		return ErrCalibrationInProgress
	}
	if d <= 0 {
		d = e.calib.defaultDuration
	}

	now := e.clock()
	e.calib.active = true
	e.calib.started = now
	e.calib.deadline = now.Add(d)
	e.calib.collected = e.calib.collected[:0]
	e.log.Info("calibration started", zap.Duration("duration", d))
	return nil
}

// CancelCalibration drops a running calibration. No result is reported.
func (e *Engine) CancelCalibration() error {
	e.dispatch.Lock()
	defer e.dispatch.Unlock()
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.calib.active {
		return ErrNotCalibrating
	}
	e.calib.active = false
	e.calib.collected = nil
	e.log.Info("calibration cancelled")
	return nil
}

// PollCalibration finishes a calibration whose deadline has passed even when
// no further samples arrive. done is false while the window is still open or
// when no calibration is running.
func (e *Engine) PollCalibration() (r CalibrationResult, done bool) {
	e.dispatch.Lock()
	defer e.dispatch.Unlock()

	e.mu.Lock()
	now := e.clock()
	if !e.calib.active || now.Before(e.calib.deadline) {
		e.mu.Unlock()
		return CalibrationResult{}, false
	}
	r = e.finishCalibrationLocked(now)
	out := e.newOutbox()
	out.calib = &r
	e.mu.Unlock()

	e.deliver(out)
	return r, true
}

// CalibrationStatus reports progress of the running calibration.
func (e *Engine) CalibrationStatus() CalibrationStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calibrationStatusLocked(e.clock())
}

func (e *Engine) calibrationStatusLocked(now time.Time) CalibrationStatus {
	c := &e.calib
	if !c.active {
		return CalibrationStatus{}
	}
	total := c.deadline.Sub(c.started)
	remaining := c.deadline.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	progress := 1.0
	if total > 0 {
		progress = 1 - float64(remaining)/float64(total)
	}
	return CalibrationStatus{
		Active:    true,
		Samples:   len(c.collected),
		Remaining: remaining,
		Progress:  progress,
	}
}

func (e *Engine) finishCalibrationLocked(now time.Time) CalibrationResult {
	c := &e.calib
	c.active = false

	r := CalibrationResult{Samples: len(c.collected), Started: c.started, Finished: now}
	mean, ok := posture.Mean(c.collected, now)
	c.collected = nil

	if !ok {
		r.Err = ErrNoCalibrationData
		r.Target = e.target
		e.metrics.Calibration("no_data")
		e.log.Warn("calibration failed", zap.Error(r.Err))
		return r
	}

	e.target = mean
	r.Target = mean
	e.metrics.Calibration("ok")
	e.log.Info("calibration complete",
		zap.Int("samples", r.Samples),
		zap.Float64("pitch", mean.Pitch),
		zap.Float64("yaw", mean.Yaw),
		zap.Float64("roll", mean.Roll))
	return r
}
