// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package engine

import (
	"time"

	"github.com/relabs-tech/posture_monitor/internal/feedback"
	"github.com/relabs-tech/posture_monitor/internal/orientation"
	"github.com/relabs-tech/posture_monitor/internal/posture"
	"github.com/relabs-tech/posture_monitor/internal/session"
)

// SessionSnapshot is the live view of the session aggregator.
type SessionSnapshot struct {
	ID      string        `json:"id,omitempty"`
	Kind    session.Kind  `json:"kind,omitempty"`
	State   session.State `json:"state"`
	Elapsed time.Duration `json:"elapsed"`
	Samples int           `json:"samples"`
}

// Snapshot is a read-only copy of the observable engine state.
type Snapshot struct {
	Timestamp      time.Time         `json:"timestamp"`
	CurrentPosture *posture.Posture  `json:"current_posture,omitempty"`
	Target         posture.Posture   `json:"target"`
	Deviation      posture.Deviation `json:"deviation"`
	PostureType    posture.Type      `json:"posture_type"`

	// Motion is empty when the last input was a bare posture.
	Motion orientation.MotionState `json:"motion,omitempty"`

	IsMonitoring       bool          `json:"is_monitoring"`
	MonitoringPaused   bool          `json:"monitoring_paused"`
	MonitoringDuration time.Duration `json:"monitoring_duration"`
	IsDeviating        bool          `json:"is_deviating"`
	DeviationCount     int           `json:"deviation_count"`
	PostureScore       float64       `json:"posture_score"`
	SampleRate         float64       `json:"sample_rate"`

	Session     SessionSnapshot   `json:"session"`
	Calibration CalibrationStatus `json:"calibration"`
}

// Snapshot returns the current observable state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked(e.clock())
}

func (e *Engine) snapshotLocked(now time.Time) Snapshot {
	s := Snapshot{
		Timestamp:          now,
		Target:             e.target,
		IsMonitoring:       e.monitoring,
		MonitoringPaused:   e.monitorPaused,
		MonitoringDuration: e.monitoringDurationLocked(now),
		IsDeviating:        e.monitor.State() == feedback.StateDeviating,
		DeviationCount:     e.monitor.DeviationCount(),
		PostureScore:       e.lastScore,
		SampleRate:         e.sampleRate,
		Session: SessionSnapshot{
			ID:      e.sessions.ID(),
			Kind:    e.sessions.Kind(),
			State:   e.sessions.State(),
			Elapsed: e.sessions.Elapsed(now),
			Samples: e.sessions.Len(),
		},
		Calibration: e.calibrationStatusLocked(now),
	}
	if e.hasCurrent {
		cur := e.current
		s.CurrentPosture = &cur
		s.Deviation = posture.DeviationOf(cur, e.target)
		s.PostureType = posture.Classify(cur, e.target)
		s.Motion = e.motion
	}
	return s
}
