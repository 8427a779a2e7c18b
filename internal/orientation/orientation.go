// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"math"
	"time"
)

// Vector3 is a plain 3D vector (acceleration in g, rotation rate in rad/s).
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vector3) Magnitude() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Normalize returns the unit vector. The zero vector stays zero.
func (v Vector3) Normalize() Vector3 {
	mag := v.Magnitude()
	if mag == 0 {
		return Vector3{}
	}
	return Vector3{X: v.X / mag, Y: v.Y / mag, Z: v.Z / mag}
}

func (v Vector3) Dot(o Vector3) float64 {
	return v.X*o.X + v.Y*o.Y + v.Z*o.Z
}

func (v Vector3) Cross(o Vector3) Vector3 {
	return Vector3{
		X: v.Y*o.Z - v.Z*o.Y,
		Y: v.Z*o.X - v.X*o.Z,
		Z: v.X*o.Y - v.Y*o.X,
	}
}

// Quaternion represents a rotation as {w, x, y, z}.
type Quaternion struct {
	W float64 `json:"w"`
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Identity is the no-rotation quaternion.
var Identity = Quaternion{W: 1}

func (q Quaternion) Conjugate() Quaternion {
	return Quaternion{W: q.W, X: -q.X, Y: -q.Y, Z: -q.Z}
}

func (q Quaternion) Magnitude() float64 {
	return math.Sqrt(q.W*q.W + q.X*q.X + q.Y*q.Y + q.Z*q.Z)
}

// Normalize returns the unit quaternion. A zero quaternion maps to Identity.
func (q Quaternion) Normalize() Quaternion {
	mag := q.Magnitude()
	if mag == 0 || math.IsNaN(mag) {
		return Identity
	}
	return Quaternion{W: q.W / mag, X: q.X / mag, Y: q.Y / mag, Z: q.Z / mag}
}

// ToEuler converts q to pitch/yaw/roll in degrees. q is assumed to be unit length;
// use QuaternionToEuler when that cannot be guaranteed.
//
//	pitch = atan2(2(wx+yz), 1-2(x²+y²))
//	yaw   = asin(clamp(2(wy-zx), -1, 1))
//	roll  = atan2(2(wz+xy), 1-2(y²+z²))
func (q Quaternion) ToEuler() (pitch, yaw, roll float64) {
	w, x, y, z := q.W, q.X, q.Y, q.Z

	pitchRad := math.Atan2(2*(w*x+y*z), 1-2*(x*x+y*y))
	yawRad := math.Asin(clamp(2*(w*y-z*x), -1, 1))
	rollRad := math.Atan2(2*(w*z+x*y), 1-2*(y*y+z*z))

	return Degrees(pitchRad), Degrees(yawRad), Degrees(rollRad)
}

// QuaternionToEuler normalizes q and converts it to pitch/yaw/roll in degrees.
// A zero-magnitude quaternion yields 0, 0, 0.
func QuaternionToEuler(q Quaternion) (pitch, yaw, roll float64) {
	return q.Normalize().ToEuler()
}

// FromEuler builds a unit quaternion from pitch/yaw/roll in degrees, the inverse
// of ToEuler for yaw within (-90, 90).
func FromEuler(pitch, yaw, roll float64) Quaternion {
	hp := Radians(pitch) / 2
	hy := Radians(yaw) / 2
	hr := Radians(roll) / 2

	cp, sp := math.Cos(hp), math.Sin(hp)
	cy, sy := math.Cos(hy), math.Sin(hy)
	cr, sr := math.Cos(hr), math.Sin(hr)

	return Quaternion{
		W: cp*cy*cr + sp*sy*sr,
		X: sp*cy*cr - cp*sy*sr,
		Y: cp*sy*cr + sp*cy*sr,
		Z: cp*cy*sr - sp*sy*cr,
	}
}

// Degrees converts radians to degrees.
func Degrees(radians float64) float64 {
	return radians * 180.0 / math.Pi
}

// Radians converts degrees to radians.
func Radians(degrees float64) float64 {
	return degrees * math.Pi / 180.0
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Sample is one raw orientation reading as it crosses the ingestion boundary.
type Sample struct {
	Quaternion   Quaternion `json:"quaternion"`
	Acceleration Vector3    `json:"acceleration"`  // g
	RotationRate Vector3    `json:"rotation_rate"` // rad/s
	Timestamp    time.Time  `json:"timestamp"`
	Quality      float64    `json:"quality"` // 0..1
	Source       string     `json:"source"`
}

// Source is anything that can provide samples over time: the mock source,
// a serial-attached head sensor, a replay file.
type Source interface {
	Next() (Sample, error)
}

// ComputeQuaternionFromAccel estimates orientation from accelerometer data
// only. Gravity fixes the tilt about X and Y; rotation about Z carries no
// gravity information and is left at 0.
//
// Uses simple tilt formulas:
//
//	tiltX = atan2(ay, az)
//	tiltY = atan2(-ax, sqrt(ay² + az²))
func ComputeQuaternionFromAccel(ax, ay, az float64) Quaternion {
	tiltX := Degrees(math.Atan2(ay, az))
	tiltY := Degrees(math.Atan2(-ax, math.Sqrt(ay*ay+az*az)))

	return FromEuler(tiltX, tiltY, 0)
}
