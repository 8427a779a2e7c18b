// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package feedback

import (
	"fmt"
	"strings"
)

// Level is the intensity tier of a corrective signal. Levels are ordered.
type Level int

const (
	LevelNone Level = iota
	LevelGentle
	LevelModerate
	LevelStrong
)

var levelNames = [...]string{"none", "gentle", "moderate", "strong"}

func (l Level) String() string {
	if l >= 0 && int(l) < len(levelNames) {
		return levelNames[l]
	}
	return fmt.Sprintf("level(%d)", int(l))
}

func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *Level) UnmarshalText(b []byte) error {
	for i, n := range levelNames {
		if n == string(b) {
			*l = Level(i)
			return nil
		}
	}
	return fmt.Errorf("unknown feedback level %q", string(b))
}

// Strategy selects the magnitude thresholds that map a deviation to a Level.
type Strategy string

const (
	StrategyGentle   Strategy = "gentle"
	StrategyModerate Strategy = "moderate"
	StrategyStrict   Strategy = "strict"
	StrategyAdaptive Strategy = "adaptive"
)

// thresholds are the exclusive lower bounds of gentle, moderate and strong.
// A zero bound means the level is never reached.
type thresholds struct {
	gentle, moderate, strong float64
}

var strategyThresholds = map[Strategy]thresholds{
	StrategyGentle:   {gentle: 20},
	StrategyModerate: {gentle: 10, moderate: 20, strong: 30},
	StrategyStrict:   {gentle: 5, moderate: 10, strong: 20},
	StrategyAdaptive: {gentle: 8, moderate: 15, strong: 25},
}

// ParseStrategy accepts a strategy name, case-insensitively.
func ParseStrategy(s string) (Strategy, error) {
	st := Strategy(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := strategyThresholds[st]; !ok {
		return "", fmt.Errorf("unknown feedback strategy %q", s)
	}
	return st, nil
}

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	_, ok := strategyThresholds[s]
	return ok
}

// LevelFor maps a deviation magnitude to a Level. Each bucket excludes its
// lower bound and includes its upper bound.
func LevelFor(s Strategy, magnitude float64) Level {
	th, ok := strategyThresholds[s]
	if !ok {
		th = strategyThresholds[StrategyAdaptive]
	}

	switch {
	case th.strong > 0 && magnitude > th.strong:
		return LevelStrong
	case th.moderate > 0 && magnitude > th.moderate:
		return LevelModerate
	case magnitude > th.gentle:
		return LevelGentle
	}
	return LevelNone
}

// Priority orders audio output in the sink's queue.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

var priorityNames = [...]string{"low", "normal", "high"}

func (p Priority) String() string {
	if p >= 0 && int(p) < len(priorityNames) {
		return priorityNames[p]
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

func (p Priority) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Priority) UnmarshalText(b []byte) error {
	for i, n := range priorityNames {
		if n == string(b) {
			*p = Priority(i)
			return nil
		}
	}
	return fmt.Errorf("unknown priority %q", string(b))
}

// Cue names the sound played ahead of the spoken instruction.
type Cue string

const (
	CueChime   Cue = "chime"
	CueWarning Cue = "warning"
	CueAlert   Cue = "alert"
)

// CueFor returns the sound and priority for a level.
func CueFor(l Level) (Cue, Priority) {
	switch l {
	case LevelStrong:
		return CueAlert, PriorityHigh
	case LevelModerate:
		return CueWarning, PriorityNormal
	default:
		return CueChime, PriorityLow
	}
}
