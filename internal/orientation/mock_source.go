// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"math"
	"time"
)

type mockSource struct {
	start time.Time
	now   func() time.Time
}

// NewMockSource creates a mock orientation source that generates a head
// slowly nodding forward and tilting, the way someone slumps at a desk.
func NewMockSource() Source {
	return newMockSource(time.Now)
}

func newMockSource(now func() time.Time) *mockSource {
	return &mockSource{start: now(), now: now}
}

func (m *mockSource) Next() (Sample, error) {
	t := m.now()
	elapsed := t.Sub(m.start).Seconds()

	pitch := -5 + 20*math.Sin(elapsed*0.2)
	yaw := 8 * math.Sin(elapsed*0.05)
	roll := 10 * math.Cos(elapsed*0.3)

	rate := Vector3{
		X: Radians(20 * 0.2 * math.Cos(elapsed*0.2)),
		Y: Radians(8 * 0.05 * math.Cos(elapsed*0.05)),
		Z: Radians(-10 * 0.3 * math.Sin(elapsed*0.3)),
	}

	return Sample{
		Quaternion:   FromEuler(pitch, yaw, roll),
		RotationRate: rate,
		Timestamp:    t,
		Quality:      1.0,
		Source:       "mock",
	}, nil
}
