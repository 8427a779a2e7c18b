// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package score keeps the rolling window of recent postures behind the live
// posture score.
package score

import "github.com/relabs-tech/posture_monitor/internal/posture"

// DefaultCapacity is the window size used when none is configured.
const DefaultCapacity = 100

// Window is a fixed-capacity FIFO of postures backed by a ring buffer.
// It is not safe for concurrent use.
type Window struct {
	buf   []posture.Posture
	start int
	size  int
}

// NewWindow returns an empty window. A capacity below 1 uses DefaultCapacity.
func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Window{buf: make([]posture.Posture, capacity)}
}

func (w *Window) Len() int { return w.size }
func (w *Window) Cap() int { return len(w.buf) }

// Push appends p, evicting the oldest entry when the window is full.
func (w *Window) Push(p posture.Posture) {
	if w.size < len(w.buf) {
		w.buf[(w.start+w.size)%len(w.buf)] = p
		w.size++
		return
	}
	w.buf[w.start] = p
	w.start = (w.start + 1) % len(w.buf)
}

// Reset empties the window without releasing its buffer.
func (w *Window) Reset() {
	w.start = 0
	w.size = 0
}

// Postures returns a copy of the window contents, oldest first.
func (w *Window) Postures() []posture.Posture {
	out := make([]posture.Posture, w.size)
	for i := range out {
		out[i] = w.buf[(w.start+i)%len(w.buf)]
	}
	return out
}

// Score is 100 × (postures within tolerance of target) ÷ window size, or 100
// for an empty window.
func (w *Window) Score(target posture.Posture, tolerance float64) float64 {
	if w.size == 0 {
		return 100
	}
	within := 0
	for i := 0; i < w.size; i++ {
		if posture.IsWithinTolerance(w.buf[(w.start+i)%len(w.buf)], target, tolerance) {
			within++
		}
	}
	return 100 * float64(within) / float64(w.size)
}
