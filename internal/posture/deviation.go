// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package posture

import "math"

// Deviation is the per-axis difference current − target, in degrees.
type Deviation struct {
	PitchDelta float64 `json:"pitch_delta"`
	YawDelta   float64 `json:"yaw_delta"`
	RollDelta  float64 `json:"roll_delta"`
}

// Magnitude is the Euclidean norm over the three axis deltas. It is not a
// geodesic rotation distance.
func (d Deviation) Magnitude() float64 {
	return math.Sqrt(d.PitchDelta*d.PitchDelta + d.YawDelta*d.YawDelta + d.RollDelta*d.RollDelta)
}

// MaxDeviation is the largest absolute axis delta.
func (d Deviation) MaxDeviation() float64 {
	return math.Max(math.Abs(d.PitchDelta), math.Max(math.Abs(d.YawDelta), math.Abs(d.RollDelta)))
}

// ExceedsThreshold reports magnitude > threshold.
func (d Deviation) ExceedsThreshold(threshold float64) bool {
	return d.Magnitude() > threshold
}

// PrimaryAxis is the axis with the greatest |delta|; ties go pitch, then yaw, then roll.
func (d Deviation) PrimaryAxis() Axis {
	absPitch := math.Abs(d.PitchDelta)
	absYaw := math.Abs(d.YawDelta)
	absRoll := math.Abs(d.RollDelta)

	switch {
	case absPitch >= absYaw && absPitch >= absRoll:
		return AxisPitch
	case absYaw >= absRoll:
		return AxisYaw
	default:
		return AxisRoll
	}
}

// Delta returns the delta on one axis.
func (d Deviation) Delta(axis Axis) float64 {
	switch axis {
	case AxisPitch:
		return d.PitchDelta
	case AxisYaw:
		return d.YawDelta
	default:
		return d.RollDelta
	}
}

// Axis names a rotation axis.
type Axis string

const (
	AxisPitch Axis = "pitch"
	AxisYaw   Axis = "yaw"
	AxisRoll  Axis = "roll"
)
