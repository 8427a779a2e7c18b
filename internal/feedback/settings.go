// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package feedback

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// MinInterval is the floor on the time between two emitted feedback events.
const MinInterval = 3 * time.Second

// Settings is read on every decision cycle.
type Settings struct {
	Enabled     bool          `json:"enabled"`
	Muted       bool          `json:"muted"`
	Sensitivity float64       `json:"sensitivity"` // degrees
	AlertDelay  time.Duration `json:"alert_delay"`
	Strategy    Strategy      `json:"strategy"`
	Language    Language      `json:"language"`

	DoNotDisturb DoNotDisturb `json:"do_not_disturb"`

	// RepeatWhileDeviating runs the decision pipeline on every deviating
	// sample instead of only on entry. The interval gate still applies.
	RepeatWhileDeviating bool `json:"repeat_while_deviating"`
}

// DefaultSettings mirrors the factory configuration of the device.
func DefaultSettings() Settings {
	return Settings{
		Enabled:     true,
		Sensitivity: 15,
		AlertDelay:  5 * time.Second,
		Strategy:    StrategyAdaptive,
		Language:    English,
		DoNotDisturb: DoNotDisturb{
			Start: ClockTime{Hour: 22},
			End:   ClockTime{Hour: 8},
		},
	}
}

// Interval is the effective minimum time between emitted events.
func (s Settings) Interval() time.Duration {
	if s.AlertDelay > MinInterval {
		return s.AlertDelay
	}
	return MinInterval
}

// Validate checks every field that the decision pipeline depends on.
func (s Settings) Validate() error {
	var errs []error

	if math.IsNaN(s.Sensitivity) || math.IsInf(s.Sensitivity, 0) || s.Sensitivity <= 0 {
		errs = append(errs, fmt.Errorf("sensitivity must be > 0, got %v", s.Sensitivity))
	}
	if s.AlertDelay < 0 {
		errs = append(errs, fmt.Errorf("alert delay must be >= 0, got %s", s.AlertDelay))
	}
	if !s.Strategy.Valid() {
		errs = append(errs, fmt.Errorf("unknown feedback strategy %q", s.Strategy))
	}
	if _, ok := instructions[s.Language]; !ok {
		errs = append(errs, fmt.Errorf("unknown language %q", s.Language))
	}
	if !s.DoNotDisturb.Start.Valid() || !s.DoNotDisturb.End.Valid() {
		errs = append(errs, fmt.Errorf("invalid do-not-disturb window %s-%s",
			s.DoNotDisturb.Start, s.DoNotDisturb.End))
	}

	return errors.Join(errs...)
}
