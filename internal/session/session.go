// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package session records postures over a bounded interval and produces the
// end-of-session statistics.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/relabs-tech/posture_monitor/internal/posture"
)

var (
	ErrSessionActive    = errors.New("session already in progress")
	ErrSessionNotActive = errors.New("no session in progress")
	ErrSessionNotPaused = errors.New("session is not paused")
)

// State of the aggregator.
type State string

const (
	StateIdle      State = "idle"
	StateActive    State = "active"
	StatePaused    State = "paused"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
)

// Kind tags what the session was for.
type Kind string

const (
	KindTraining    Kind = "training"
	KindCalibration Kind = "calibration"
	KindAssessment  Kind = "assessment"
	KindFree        Kind = "free"
)

// ParseKind accepts a kind name. The empty string maps to KindTraining.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case "":
		return KindTraining, nil
	case KindTraining, KindCalibration, KindAssessment, KindFree:
		return k, nil
	}
	return "", fmt.Errorf("unknown session kind %q", s)
}

// Aggregator is the Idle → Active ⇄ Paused → Completed state machine. Each
// session owns its posture buffer; nothing outside appends to it. Not safe for
// concurrent use.
type Aggregator struct {
	state     State
	id        string
	kind      Kind
	target    posture.Posture
	tolerance float64

	postures   []posture.Posture
	deviations int

	start    time.Time
	end      time.Time
	pausedAt time.Time
	paused   time.Duration

	stats   Statistics
	hasData bool
}

// NewAggregator returns an idle aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{state: StateIdle}
}

func (a *Aggregator) State() State { return a.state }
func (a *Aggregator) ID() string   { return a.id }
func (a *Aggregator) Kind() Kind   { return a.kind }
func (a *Aggregator) Len() int     { return len(a.postures) }

// Running reports whether a session is Active or Paused.
func (a *Aggregator) Running() bool {
	return a.state == StateActive || a.state == StatePaused
}

// Start begins a new session from Idle, Completed or Cancelled. All counters
// and buffers from a previous session are dropped. A non-positive tolerance
// uses posture.DefaultTolerance.
func (a *Aggregator) Start(kind Kind, target posture.Posture, tolerance float64, now time.Time) error {
	if a.Running() {
		return ErrSessionActive
	}
	if tolerance <= 0 {
		tolerance = posture.DefaultTolerance
	}
	if kind == "" {
		kind = KindTraining
	}

	*a = Aggregator{
		state:     StateActive,
		id:        uuid.NewString(),
		kind:      kind,
		target:    target,
		tolerance: tolerance,
		start:     now,
	}
	return nil
}

// Pause freezes elapsed-time accounting and stops accrual.
func (a *Aggregator) Pause(now time.Time) error {
	if a.state != StateActive {
		return ErrSessionNotActive
	}
	a.state = StatePaused
	a.pausedAt = now
	return nil
}

// Resume continues the same session without resetting anything.
func (a *Aggregator) Resume(now time.Time) error {
	if a.state != StatePaused {
		return ErrSessionNotPaused
	}
	if now.After(a.pausedAt) {
		a.paused += now.Sub(a.pausedAt)
	}
	a.pausedAt = time.Time{}
	a.state = StateActive
	return nil
}

// Record appends p. It returns false unless the session is Active.
func (a *Aggregator) Record(p posture.Posture) bool {
	if a.state != StateActive {
		return false
	}
	a.postures = append(a.postures, p)
	return true
}

// RecordDeviation counts one Normal → Deviating transition.
func (a *Aggregator) RecordDeviation() {
	if a.state == StateActive {
		a.deviations++
	}
}

// Elapsed is active time so far, excluding pauses.
func (a *Aggregator) Elapsed(now time.Time) time.Duration {
	switch a.state {
	case StateIdle:
		return 0
	case StateCompleted, StateCancelled:
		now = a.end
	case StatePaused:
		now = a.pausedAt
	}
	d := now.Sub(a.start) - a.paused
	if d < 0 {
		return 0
	}
	return d
}

// End closes the session and computes its statistics. ok is false when the
// session recorded no samples; that is a terminal "no data" outcome, not an
// error. Ending from a paused session closes the pause first.
func (a *Aggregator) End(now time.Time) (st Statistics, ok bool, err error) {
	if !a.Running() {
		return Statistics{}, false, ErrSessionNotActive
	}
	if a.state == StatePaused {
		_ = a.Resume(now)
	}

	a.end = now
	a.state = StateCompleted
	duration := a.Elapsed(now)

	st, ok = Compute(a.postures, a.target, a.tolerance)
	if !ok {
		a.stats, a.hasData = Statistics{}, false
		return Statistics{}, false, nil
	}

	st.ID = a.id
	st.Kind = a.kind
	st.StartTime = a.start
	st.EndTime = a.end
	st.Duration = duration
	st.AverageSampleRate = sampleRate(st.DataPointCount, duration)
	st.DeviationCount = a.deviations

	a.stats, a.hasData = st, true
	return st, true, nil
}

// Cancel abandons a running session. No statistics are produced.
func (a *Aggregator) Cancel(now time.Time) error {
	if !a.Running() {
		return ErrSessionNotActive
	}
	if a.state == StatePaused {
		_ = a.Resume(now)
	}
	a.end = now
	a.state = StateCancelled
	a.postures = nil
	return nil
}

// Statistics returns the result of the last End. ok is false before any
// session completed or when the last one had no data.
func (a *Aggregator) Statistics() (Statistics, bool) {
	if a.state != StateCompleted || !a.hasData {
		return Statistics{}, false
	}
	return a.stats, true
}
