// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import "math"

const (
	accelMovingThreshold    = 0.1 // g
	rotationMovingThreshold = 5.0 // degrees/s
)

// AngularVelocity is the head rotation rate in degrees/s.
type AngularVelocity struct {
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
	Roll  float64 `json:"roll"`
}

// AngularVelocityFromRate converts a gyro rotation rate (rad/s) to degrees/s.
func AngularVelocityFromRate(rate Vector3) AngularVelocity {
	return AngularVelocity{
		Pitch: Degrees(rate.X),
		Yaw:   Degrees(rate.Y),
		Roll:  Degrees(rate.Z),
	}
}

func (a AngularVelocity) Magnitude() float64 {
	return math.Sqrt(a.Pitch*a.Pitch + a.Yaw*a.Yaw + a.Roll*a.Roll)
}

// IsStationary reports whether the total rotation rate is below threshold.
func (a AngularVelocity) IsStationary(threshold float64) bool {
	return a.Magnitude() < threshold
}

// MotionState describes what the head is doing between samples.
type MotionState string

const (
	MotionStationary   MotionState = "stationary"
	MotionMoving       MotionState = "moving"
	MotionRotating     MotionState = "rotating"
	MotionAccelerating MotionState = "accelerating"
)

// DetectMotionState classifies a sample from its user acceleration and
// angular velocity.
func DetectMotionState(accel Vector3, av AngularVelocity) MotionState {
	accelerating := accel.Magnitude() > accelMovingThreshold
	rotating := av.Magnitude() > rotationMovingThreshold

	switch {
	case !accelerating && !rotating:
		return MotionStationary
	case rotating && !accelerating:
		return MotionRotating
	case accelerating && !rotating:
		return MotionAccelerating
	default:
		return MotionMoving
	}
}
