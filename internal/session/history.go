// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package session

import "time"

// Summary is the list-view projection of a completed session.
type Summary struct {
	ID             string        `json:"id"`
	Kind           Kind          `json:"kind"`
	Date           time.Time     `json:"date"`
	Duration       time.Duration `json:"duration"`
	Score          int           `json:"score"`
	Grade          Grade         `json:"grade"`
	DeviationCount int           `json:"deviation_count"`
}

// Summarize projects st for history listings.
func (st Statistics) Summarize() Summary {
	return Summary{
		ID:             st.ID,
		Kind:           st.Kind,
		Date:           st.StartTime,
		Duration:       st.Duration,
		Score:          st.Score,
		Grade:          st.Grade,
		DeviationCount: st.DeviationCount,
	}
}

// History aggregates a list of sessions.
type History struct {
	TotalCount      int           `json:"total_count"`
	TotalDuration   time.Duration `json:"total_duration"`
	AverageDuration time.Duration `json:"average_duration"`
	AverageScore    float64       `json:"average_score"`
	BestScore       int           `json:"best_score"`
	TrainingDays    int           `json:"training_days"`    // distinct days in the last 7
	ConsecutiveDays int           `json:"consecutive_days"` // streak ending today
}

// Summarize aggregates summaries relative to now. Calendar days are taken in
// now's location.
func Summarize(sums []Summary, now time.Time) History {
	var h History
	if len(sums) == 0 {
		return h
	}

	loc := now.Location()
	days := make(map[string]struct{}, len(sums))
	weekAgo := now.AddDate(0, 0, -7)
	recent := make(map[string]struct{})
	var scoreSum int

	for i, s := range sums {
		h.TotalDuration += s.Duration
		scoreSum += s.Score
		if i == 0 || s.Score > h.BestScore {
			h.BestScore = s.Score
		}

		day := s.Date.In(loc).Format(time.DateOnly)
		days[day] = struct{}{}
		if !s.Date.Before(weekAgo) {
			recent[day] = struct{}{}
		}
	}

	h.TotalCount = len(sums)
	h.AverageDuration = h.TotalDuration / time.Duration(len(sums))
	h.AverageScore = float64(scoreSum) / float64(len(sums))
	h.TrainingDays = len(recent)

	for d := startOfDay(now); ; d = d.AddDate(0, 0, -1) {
		if _, ok := days[d.Format(time.DateOnly)]; !ok {
			break
		}
		h.ConsecutiveDays++
	}
	return h
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
