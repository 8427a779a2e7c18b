// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package feedback

import (
	"time"

	"github.com/relabs-tech/posture_monitor/internal/posture"
)

// Event is one corrective signal handed to the audio side.
type Event struct {
	Level       Level             `json:"level"`
	Instruction string            `json:"instruction"`
	Cue         Cue               `json:"cue"`
	Priority    Priority          `json:"priority"`
	Axis        posture.Axis      `json:"axis"`
	Magnitude   float64           `json:"magnitude"`
	Deviation   posture.Deviation `json:"deviation"`
	Timestamp   time.Time         `json:"timestamp"`
}

// Sink receives emitted events. Implementations must not block: the engine
// calls Deliver while a sample is being processed.
type Sink interface {
	Deliver(Event) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(Event) error

func (f SinkFunc) Deliver(e Event) error { return f(e) }

// Reason explains why the pipeline did not emit.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonDisabled       Reason = "disabled"
	ReasonDoNotDisturb   Reason = "do_not_disturb"
	ReasonRateLimited    Reason = "rate_limited"
	ReasonBelowThreshold Reason = "below_threshold"
)

// Decision is the outcome of one run of the pipeline. Exactly one of Event
// and Suppressed is set.
type Decision struct {
	Event      *Event `json:"event,omitempty"`
	Suppressed Reason `json:"suppressed,omitempty"`
}

// Emitted reports whether the decision carries an event.
func (d Decision) Emitted() bool { return d.Event != nil }
