// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package posture holds the head posture value types and the pure functions
// that compare a posture against a target.
package posture

import (
	"fmt"
	"math"
	"time"

	"github.com/relabs-tech/posture_monitor/internal/orientation"
)

// DefaultTolerance is the per-axis tolerance used when none is configured.
const DefaultTolerance = 10.0

// Posture is an immutable pitch/yaw/roll snapshot in degrees.
type Posture struct {
	Pitch     float64   `json:"pitch"`
	Yaw       float64   `json:"yaw"`
	Roll      float64   `json:"roll"`
	Timestamp time.Time `json:"timestamp"`
	Quality   float64   `json:"quality"` // 0..1
}

// New builds a posture with full quality.
func New(pitch, yaw, roll float64, ts time.Time) Posture {
	return Posture{Pitch: pitch, Yaw: yaw, Roll: roll, Timestamp: ts, Quality: 1.0}
}

// FromSample converts a raw orientation sample into a posture.
func FromSample(s orientation.Sample) Posture {
	pitch, yaw, roll := orientation.QuaternionToEuler(s.Quaternion)
	return Posture{
		Pitch:     pitch,
		Yaw:       yaw,
		Roll:      roll,
		Timestamp: s.Timestamp,
		Quality:   clampQuality(s.Quality),
	}
}

// Zero is the neutral posture.
func Zero() Posture {
	return Posture{Quality: 1.0}
}

// StandardSitting is the default target: head slightly lowered.
func StandardSitting() Posture {
	return Posture{Pitch: -5, Quality: 1.0}
}

// Validate reports non-finite angles.
func (p Posture) Validate() error {
	for _, a := range []struct {
		name string
		v    float64
	}{{"pitch", p.Pitch}, {"yaw", p.Yaw}, {"roll", p.Roll}} {
		if math.IsNaN(a.v) || math.IsInf(a.v, 0) {
			return fmt.Errorf("%s is not finite: %v", a.name, a.v)
		}
	}
	return nil
}

// Distance is the Euclidean distance between two angle triples.
func Distance(a, b Posture) float64 {
	return DeviationOf(a, b).Magnitude()
}

// DeviationOf returns current − target per axis.
func DeviationOf(current, target Posture) Deviation {
	return Deviation{
		PitchDelta: current.Pitch - target.Pitch,
		YawDelta:   current.Yaw - target.Yaw,
		RollDelta:  current.Roll - target.Roll,
	}
}

// IsWithinTolerance is true iff every axis delta is within tolerance. This is
// an independent per-axis box check, not a radius check on the magnitude.
func IsWithinTolerance(p, target Posture, tolerance float64) bool {
	return math.Abs(p.Pitch-target.Pitch) <= tolerance &&
		math.Abs(p.Yaw-target.Yaw) <= tolerance &&
		math.Abs(p.Roll-target.Roll) <= tolerance
}

// Mean averages the angles of the given postures. ok is false for an empty slice.
func Mean(ps []Posture, ts time.Time) (mean Posture, ok bool) {
	if len(ps) == 0 {
		return Posture{}, false
	}
	var sp, sy, sr float64
	for _, p := range ps {
		sp += p.Pitch
		sy += p.Yaw
		sr += p.Roll
	}
	n := float64(len(ps))
	return New(sp/n, sy/n, sr/n, ts), true
}

func clampQuality(q float64) float64 {
	switch {
	case math.IsNaN(q):
		return 0
	case q < 0:
		return 0
	case q > 1:
		return 1
	}
	return q
}
