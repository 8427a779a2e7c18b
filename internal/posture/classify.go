// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package posture

// ClassificationThreshold separates good postures from directional ones.
const ClassificationThreshold = 15.0

// Type is the coarse classification of a posture relative to a reference.
type Type string

const (
	Good      Type = "good"
	Forward   Type = "forward"
	Backward  Type = "backward"
	LeftTilt  Type = "left_tilt"
	RightTilt Type = "right_tilt"
	Unknown   Type = "unknown"
)

// AllTypes lists every classification in display order.
var AllTypes = []Type{Good, Forward, Backward, LeftTilt, RightTilt, Unknown}

// Classify compares p against reference. Below ClassificationThreshold the
// posture is good; otherwise the dominant axis decides the direction. A
// yaw-dominant deviation has no posture direction and is Unknown.
func Classify(p, reference Posture) Type {
	d := DeviationOf(p, reference)
	if d.Magnitude() < ClassificationThreshold {
		return Good
	}

	switch d.PrimaryAxis() {
	case AxisPitch:
		if d.PitchDelta > 0 {
			return Backward
		}
		return Forward
	case AxisRoll:
		if d.RollDelta > 0 {
			return RightTilt
		}
		return LeftTilt
	}
	return Unknown
}

// Valid reports whether t is one of the known classifications.
func (t Type) Valid() bool {
	for _, k := range AllTypes {
		if k == t {
			return true
		}
	}
	return false
}
