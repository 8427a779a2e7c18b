// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package session

import (
	"math"
	"time"

	"github.com/relabs-tech/posture_monitor/internal/posture"
)

// Grade buckets a session score.
type Grade string

const (
	GradeExcellent    Grade = "excellent"
	GradeGood         Grade = "good"
	GradeAverage      Grade = "average"
	GradeBelowAverage Grade = "below_average"
	GradePoor         Grade = "poor"
)

// GradeFor maps a 0..100 score to its band.
func GradeFor(score int) Grade {
	switch {
	case score >= 90 && score <= 100:
		return GradeExcellent
	case score >= 75 && score < 90:
		return GradeGood
	case score >= 60 && score < 75:
		return GradeAverage
	case score >= 40 && score < 60:
		return GradeBelowAverage
	}
	return GradePoor
}

// Suggestion is the short advice shown with a session summary.
func (g Grade) Suggestion() string {
	switch g {
	case GradeExcellent:
		return "Great job! Keep holding that posture."
	case GradeGood:
		return "Well done. A little more attention to detail will get you there."
	case GradeAverage:
		return "There is room to improve, keep practising."
	case GradeBelowAverage:
		return "More practice needed, focus on holding the correct posture."
	}
	return "Recalibrate and start again from the basic exercises."
}

// Statistics is the terminal aggregate of a session. It is computed once, when
// the session ends.
type Statistics struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	// Duration is active time; paused intervals are excluded.
	Duration time.Duration `json:"duration"`

	DataPointCount      int                      `json:"data_point_count"`
	AverageDeviation    posture.Deviation        `json:"average_deviation"`
	MaxDeviation        float64                  `json:"max_deviation"`
	Accuracy            float64                  `json:"accuracy"`
	PostureDistribution map[posture.Type]float64 `json:"posture_distribution"`
	AverageSampleRate   float64                  `json:"average_sample_rate"` // Hz
	Score               int                      `json:"score"`
	Grade               Grade                    `json:"grade"`
	DeviationCount      int                      `json:"deviation_count"`

	Target    posture.Posture `json:"target"`
	Tolerance float64         `json:"tolerance"`
}

// Compute derives the statistics for postures recorded against target. ok is
// false when postures is empty.
func Compute(postures []posture.Posture, target posture.Posture, tolerance float64) (st Statistics, ok bool) {
	n := len(postures)
	if n == 0 {
		return Statistics{}, false
	}

	var sum posture.Deviation
	var within int
	counts := make(map[posture.Type]int)

	for _, p := range postures {
		d := posture.DeviationOf(p, target)
		sum.PitchDelta += d.PitchDelta
		sum.YawDelta += d.YawDelta
		sum.RollDelta += d.RollDelta

		if m := d.Magnitude(); m > st.MaxDeviation {
			st.MaxDeviation = m
		}
		if posture.IsWithinTolerance(p, target, tolerance) {
			within++
		}
		counts[posture.Classify(p, target)]++
	}

	fn := float64(n)
	st.DataPointCount = n
	st.AverageDeviation = posture.Deviation{
		PitchDelta: sum.PitchDelta / fn,
		YawDelta:   sum.YawDelta / fn,
		RollDelta:  sum.RollDelta / fn,
	}
	st.Accuracy = float64(within) / fn
	st.PostureDistribution = make(map[posture.Type]float64, len(counts))
	for t, c := range counts {
		st.PostureDistribution[t] = float64(c) / fn
	}
	st.Score = int(math.Round(st.Accuracy * 100))
	st.Grade = GradeFor(st.Score)
	st.Target = target
	st.Tolerance = tolerance

	return st, true
}

// sampleRate is count/duration for more than one sample, else 0.
func sampleRate(count int, d time.Duration) float64 {
	if count <= 1 || d <= 0 {
		return 0
	}
	return float64(count) / d.Seconds()
}
