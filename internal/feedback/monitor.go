// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package feedback

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/relabs-tech/posture_monitor/internal/posture"
)

// tokens below one by less than this still pass the interval gate. The
// limiter accumulates in float64 and would otherwise reject a sample that
// lands exactly on the interval boundary.
const tokenSlack = 1e-9

// State of the deviation detector.
type State int

const (
	StateNormal State = iota
	StateDeviating
)

func (s State) String() string {
	if s == StateDeviating {
		return "deviating"
	}
	return "normal"
}

// Result is what the monitor reports for one sample.
type Result struct {
	Deviation      posture.Deviation
	Magnitude      float64
	State          State
	Entered        bool // Normal -> Deviating on this sample
	Recovered      bool // Deviating -> Normal on this sample
	DeviationCount int

	// Decision is nil when the pipeline did not run for this sample.
	Decision *Decision
}

// Monitor is the two-state deviation detector plus the feedback decision
// pipeline. It is not safe for concurrent use; the engine serialises calls.
type Monitor struct {
	state    State
	count    int
	interval time.Duration
	limiter  *rate.Limiter
	lastEmit time.Time
}

// NewMonitor returns a monitor in the Normal state whose first emission is
// not rate limited.
func NewMonitor() *Monitor {
	return &Monitor{
		interval: MinInterval,
		limiter:  rate.NewLimiter(rate.Every(MinInterval), 1),
	}
}

func (m *Monitor) State() State        { return m.state }
func (m *Monitor) DeviationCount() int { return m.count }

// Reset returns to Normal and zeroes the deviation count. The time of the
// last emission is kept so a restart cannot be used to bypass the interval.
func (m *Monitor) Reset() {
	m.state = StateNormal
	m.count = 0
}

// Evaluate feeds one posture through the detector and, when entering the
// Deviating state, through the decision pipeline.
func (m *Monitor) Evaluate(p, target posture.Posture, s Settings, now time.Time) Result {
	d := posture.DeviationOf(p, target)
	mag := d.Magnitude()

	res := Result{Deviation: d, Magnitude: mag}

	switch {
	case m.state == StateNormal && mag > s.Sensitivity:
		m.state = StateDeviating
		m.count++
		res.Entered = true
	case m.state == StateDeviating && mag <= s.Sensitivity:
		m.state = StateNormal
		res.Recovered = true
	}

	res.State = m.state
	res.DeviationCount = m.count

	if res.Entered || (m.state == StateDeviating && s.RepeatWhileDeviating) {
		dec := m.decide(d, mag, s, now)
		res.Decision = &dec
	}
	return res
}

func (m *Monitor) decide(d posture.Deviation, mag float64, s Settings, now time.Time) Decision {
	if !s.Enabled || s.Muted {
		return Decision{Suppressed: ReasonDisabled}
	}
	if s.DoNotDisturb.Contains(now) {
		return Decision{Suppressed: ReasonDoNotDisturb}
	}

	m.setInterval(s.Interval())
	if m.limiter.TokensAt(now) < 1-tokenSlack {
		return Decision{Suppressed: ReasonRateLimited}
	}

	level := LevelFor(s.Strategy, mag)
	if level == LevelNone {
		return Decision{Suppressed: ReasonBelowThreshold}
	}

	axis, text := Instruction(d, level, s.Language)
	cue, prio := CueFor(level)

	// Reserve always succeeds; any sub-token debt is absorbed by tokenSlack.
	m.limiter.ReserveN(now, 1)
	m.lastEmit = now

	return Decision{Event: &Event{
		Level:       level,
		Instruction: text,
		Cue:         cue,
		Priority:    prio,
		Axis:        axis,
		Magnitude:   mag,
		Deviation:   d,
		Timestamp:   now,
	}}
}

// setInterval re-arms the limiter from the last emission whenever the
// interval changes, so the gate always measures time since that emission
// against the current interval.
func (m *Monitor) setInterval(iv time.Duration) {
	if iv == m.interval {
		return
	}
	m.interval = iv
	m.limiter = rate.NewLimiter(rate.Every(iv), 1)
	if !m.lastEmit.IsZero() {
		m.limiter.ReserveN(m.lastEmit, 1)
	}
}
