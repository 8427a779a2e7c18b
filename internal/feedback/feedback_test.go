// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package feedback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/posture_monitor/internal/posture"
)

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return time.Date(2026, 3, 2, h, m, 0, 0, time.UTC)
}

func pitch(deg float64) posture.Posture {
	return posture.New(deg, 0, 0, t0)
}

func TestLevelForStrategyTable(t *testing.T) {
	cases := []struct {
		strategy  Strategy
		magnitude float64
		want      Level
	}{
		{StrategyModerate, 25, LevelModerate},
		{StrategyModerate, 35, LevelStrong},
		{StrategyModerate, 5, LevelNone},
		{StrategyModerate, 10, LevelNone},
		{StrategyModerate, 10.001, LevelGentle},
		{StrategyModerate, 20, LevelGentle},
		{StrategyModerate, 30, LevelModerate},

		{StrategyGentle, 20, LevelNone},
		{StrategyGentle, 21, LevelGentle},
		{StrategyGentle, 500, LevelGentle},

		{StrategyStrict, 5, LevelNone},
		{StrategyStrict, 6, LevelGentle},
		{StrategyStrict, 11, LevelModerate},
		{StrategyStrict, 21, LevelStrong},

		{StrategyAdaptive, 8, LevelNone},
		{StrategyAdaptive, 9, LevelGentle},
		{StrategyAdaptive, 15, LevelGentle},
		{StrategyAdaptive, 16, LevelModerate},
		{StrategyAdaptive, 25, LevelModerate},
		{StrategyAdaptive, 25.5, LevelStrong},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, LevelFor(tc.strategy, tc.magnitude), "%s @ %v", tc.strategy, tc.magnitude)
	}
}

func TestLevelOrderingAndText(t *testing.T) {
	assert.Less(t, LevelNone, LevelGentle)
	assert.Less(t, LevelGentle, LevelModerate)
	assert.Less(t, LevelModerate, LevelStrong)

	b, err := LevelStrong.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "strong", string(b))

	var l Level
	require.NoError(t, l.UnmarshalText([]byte("gentle")))
	assert.Equal(t, LevelGentle, l)
	assert.Error(t, l.UnmarshalText([]byte("loud")))
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy(" Strict ")
	require.NoError(t, err)
	assert.Equal(t, StrategyStrict, s)

	_, err = ParseStrategy("aggressive")
	assert.Error(t, err)
}

func TestCueFor(t *testing.T) {
	cue, prio := CueFor(LevelGentle)
	assert.Equal(t, CueChime, cue)
	assert.Equal(t, PriorityLow, prio)

	cue, prio = CueFor(LevelModerate)
	assert.Equal(t, CueWarning, cue)
	assert.Equal(t, PriorityNormal, prio)

	cue, prio = CueFor(LevelStrong)
	assert.Equal(t, CueAlert, cue)
	assert.Equal(t, PriorityHigh, prio)
}

func TestDoNotDisturbOvernight(t *testing.T) {
	w := DoNotDisturb{Enabled: true, Start: ClockTime{Hour: 22}, End: ClockTime{Hour: 8}}

	assert.True(t, w.Contains(at(23, 30)))
	assert.False(t, w.Contains(at(9, 0)))
	assert.True(t, w.Contains(at(22, 0)))
	assert.True(t, w.Contains(at(3, 15)))
	assert.True(t, w.Contains(at(8, 0)))
	assert.False(t, w.Contains(at(8, 1)))
	assert.False(t, w.Contains(at(21, 59)))
}

func TestDoNotDisturbSameDay(t *testing.T) {
	w := DoNotDisturb{Enabled: true, Start: ClockTime{Hour: 10}, End: ClockTime{Hour: 18}}

	assert.False(t, w.Contains(at(9, 0)))
	assert.True(t, w.Contains(at(12, 0)))
	assert.True(t, w.Contains(at(18, 0)))
	assert.False(t, w.Contains(at(18, 1)))

	w.Enabled = false
	assert.False(t, w.Contains(at(12, 0)))
}

func TestParseClockTime(t *testing.T) {
	c, err := ParseClockTime("22:05")
	require.NoError(t, err)
	assert.Equal(t, ClockTime{Hour: 22, Minute: 5}, c)
	assert.Equal(t, "22:05", c.String())

	_, err = ParseClockTime("25:00")
	assert.Error(t, err)
	_, err = ParseClockTime("noon")
	assert.Error(t, err)

	var u ClockTime
	require.NoError(t, u.UnmarshalText([]byte("07:30")))
	assert.Equal(t, ClockTime{Hour: 7, Minute: 30}, u)
}

func TestInstructionByAxisAndLevel(t *testing.T) {
	axis, text := Instruction(posture.Deviation{PitchDelta: 12}, LevelGentle, English)
	assert.Equal(t, posture.AxisPitch, axis)
	assert.Equal(t, "Lower your head slightly", text)

	_, text = Instruction(posture.Deviation{PitchDelta: -30}, LevelStrong, English)
	assert.Equal(t, "Head too low, please raise", text)

	axis, text = Instruction(posture.Deviation{YawDelta: 18, RollDelta: 4}, LevelModerate, English)
	assert.Equal(t, posture.AxisYaw, axis)
	assert.Equal(t, "Head turned right, turn left", text)

	axis, text = Instruction(posture.Deviation{RollDelta: -20}, LevelGentle, Chinese)
	assert.Equal(t, posture.AxisRoll, axis)
	assert.Equal(t, "请稍微向右倾斜", text)

	// unknown language falls back to English
	_, text = Instruction(posture.Deviation{RollDelta: 20}, LevelModerate, Language("fr"))
	assert.Equal(t, "Head tilted right, please adjust", text)
}

func TestParseLanguage(t *testing.T) {
	l, err := ParseLanguage("Chinese")
	require.NoError(t, err)
	assert.Equal(t, Chinese, l)

	l, err = ParseLanguage("en")
	require.NoError(t, err)
	assert.Equal(t, English, l)

	_, err = ParseLanguage("klingon")
	assert.Error(t, err)
}

func TestSettingsValidate(t *testing.T) {
	require.NoError(t, DefaultSettings().Validate())

	s := DefaultSettings()
	s.Sensitivity = 0
	assert.Error(t, s.Validate())

	s = DefaultSettings()
	s.AlertDelay = -time.Second
	assert.Error(t, s.Validate())

	s = DefaultSettings()
	s.Strategy = "loud"
	assert.Error(t, s.Validate())

	s = DefaultSettings()
	s.DoNotDisturb.Start = ClockTime{Hour: 24}
	assert.Error(t, s.Validate())
}

func TestSettingsInterval(t *testing.T) {
	s := DefaultSettings()
	assert.Equal(t, 5*time.Second, s.Interval())

	s.AlertDelay = time.Second
	assert.Equal(t, MinInterval, s.Interval())

	s.AlertDelay = 0
	assert.Equal(t, MinInterval, s.Interval())
}

func TestMonitorHysteresisCountsOnce(t *testing.T) {
	m := NewMonitor()
	s := DefaultSettings()
	target := posture.Zero()

	r := m.Evaluate(pitch(20), target, s, t0)
	assert.True(t, r.Entered)
	assert.Equal(t, StateDeviating, r.State)
	require.NotNil(t, r.Decision)
	assert.True(t, r.Decision.Emitted())

	r = m.Evaluate(pitch(20), target, s, t0.Add(100*time.Millisecond))
	assert.False(t, r.Entered)
	assert.Nil(t, r.Decision, "no re-trigger while still deviating")

	r = m.Evaluate(pitch(0), target, s, t0.Add(200*time.Millisecond))
	assert.True(t, r.Recovered)
	assert.Equal(t, StateNormal, r.State)
	assert.Nil(t, r.Decision)

	assert.Equal(t, 1, m.DeviationCount())
}

func TestMonitorBoundaryIsNotDeviating(t *testing.T) {
	m := NewMonitor()
	s := DefaultSettings()

	r := m.Evaluate(pitch(15), posture.Zero(), s, t0)
	assert.Equal(t, StateNormal, r.State)
	assert.Equal(t, 0, r.DeviationCount)
}

func TestMonitorEmitsInstruction(t *testing.T) {
	m := NewMonitor()
	s := DefaultSettings()

	r := m.Evaluate(pitch(20), posture.Zero(), s, t0)
	require.NotNil(t, r.Decision)
	ev := r.Decision.Event
	require.NotNil(t, ev)

	assert.Equal(t, LevelModerate, ev.Level)
	assert.Equal(t, "Head too far back, please lower", ev.Instruction)
	assert.Equal(t, CueWarning, ev.Cue)
	assert.Equal(t, PriorityNormal, ev.Priority)
	assert.Equal(t, posture.AxisPitch, ev.Axis)
	assert.InDelta(t, 20.0, ev.Magnitude, 1e-12)
	assert.Equal(t, t0, ev.Timestamp)
}

func TestMonitorSuppressionReasons(t *testing.T) {
	target := posture.Zero()

	s := DefaultSettings()
	s.Enabled = false
	r := NewMonitor().Evaluate(pitch(30), target, s, t0)
	require.NotNil(t, r.Decision)
	assert.Equal(t, ReasonDisabled, r.Decision.Suppressed)
	assert.Equal(t, 1, r.DeviationCount)

	s = DefaultSettings()
	s.Muted = true
	r = NewMonitor().Evaluate(pitch(30), target, s, t0)
	assert.Equal(t, ReasonDisabled, r.Decision.Suppressed)

	s = DefaultSettings()
	s.DoNotDisturb = DoNotDisturb{Enabled: true, Start: ClockTime{Hour: 9}, End: ClockTime{Hour: 11}}
	r = NewMonitor().Evaluate(pitch(30), target, s, t0)
	assert.Equal(t, ReasonDoNotDisturb, r.Decision.Suppressed)

	s = DefaultSettings()
	s.Strategy = StrategyGentle
	r = NewMonitor().Evaluate(pitch(18), target, s, t0)
	assert.Equal(t, ReasonBelowThreshold, r.Decision.Suppressed)
	assert.Nil(t, r.Decision.Event)
}

func TestMonitorRateLimitsReentry(t *testing.T) {
	m := NewMonitor()
	s := DefaultSettings() // 5s alert delay
	target := posture.Zero()

	r := m.Evaluate(pitch(30), target, s, t0)
	require.True(t, r.Decision.Emitted())

	m.Evaluate(pitch(0), target, s, t0.Add(time.Second))
	r = m.Evaluate(pitch(30), target, s, t0.Add(2*time.Second))
	require.True(t, r.Entered)
	assert.Equal(t, ReasonRateLimited, r.Decision.Suppressed)

	m.Evaluate(pitch(0), target, s, t0.Add(3*time.Second))
	r = m.Evaluate(pitch(30), target, s, t0.Add(5500*time.Millisecond))
	require.True(t, r.Entered)
	assert.True(t, r.Decision.Emitted())
	assert.Equal(t, 3, m.DeviationCount())
}

func TestMonitorIntervalFollowsAlertDelayChanges(t *testing.T) {
	target := posture.Zero()

	t.Run("raised", func(t *testing.T) {
		m := NewMonitor()
		s := DefaultSettings()
		s.AlertDelay = 3 * time.Second

		require.True(t, m.Evaluate(pitch(30), target, s, t0).Decision.Emitted())
		m.Evaluate(pitch(0), target, s, t0.Add(time.Second))

		s.AlertDelay = 10 * time.Second
		r := m.Evaluate(pitch(30), target, s, t0.Add(5*time.Second))
		require.True(t, r.Entered)
		assert.Equal(t, ReasonRateLimited, r.Decision.Suppressed)

		m.Evaluate(pitch(0), target, s, t0.Add(6*time.Second))
		r = m.Evaluate(pitch(30), target, s, t0.Add(10*time.Second))
		assert.True(t, r.Decision.Emitted())
	})

	t.Run("lowered", func(t *testing.T) {
		m := NewMonitor()
		s := DefaultSettings()
		s.AlertDelay = 10 * time.Second

		require.True(t, m.Evaluate(pitch(30), target, s, t0).Decision.Emitted())
		m.Evaluate(pitch(0), target, s, t0.Add(time.Second))

		s.AlertDelay = 3 * time.Second
		r := m.Evaluate(pitch(30), target, s, t0.Add(4*time.Second))
		require.True(t, r.Entered)
		assert.True(t, r.Decision.Emitted())

		m.Evaluate(pitch(0), target, s, t0.Add(5*time.Second))
		r = m.Evaluate(pitch(30), target, s, t0.Add(6*time.Second))
		assert.Equal(t, ReasonRateLimited, r.Decision.Suppressed)
	})
}

func TestMonitorSuppressionDoesNotConsumeInterval(t *testing.T) {
	m := NewMonitor()
	s := DefaultSettings()
	s.Strategy = StrategyGentle
	target := posture.Zero()

	r := m.Evaluate(pitch(18), target, s, t0)
	assert.Equal(t, ReasonBelowThreshold, r.Decision.Suppressed)

	m.Evaluate(pitch(0), target, s, t0.Add(100*time.Millisecond))
	r = m.Evaluate(pitch(25), target, s, t0.Add(200*time.Millisecond))
	assert.True(t, r.Decision.Emitted())
}

func TestMonitorRepeatWhileDeviating(t *testing.T) {
	m := NewMonitor()
	s := DefaultSettings()
	s.AlertDelay = 0 // floor of 3s applies
	s.RepeatWhileDeviating = true
	target := posture.Zero()

	r := m.Evaluate(pitch(30), target, s, t0)
	assert.True(t, r.Decision.Emitted())

	r = m.Evaluate(pitch(30), target, s, t0.Add(time.Second))
	require.NotNil(t, r.Decision)
	assert.Equal(t, ReasonRateLimited, r.Decision.Suppressed)

	r = m.Evaluate(pitch(30), target, s, t0.Add(3500*time.Millisecond))
	assert.True(t, r.Decision.Emitted())
	assert.Equal(t, 1, m.DeviationCount())
}

func TestMonitorResetKeepsLastEmission(t *testing.T) {
	m := NewMonitor()
	s := DefaultSettings()
	target := posture.Zero()

	m.Evaluate(pitch(30), target, s, t0)
	m.Reset()
	assert.Equal(t, 0, m.DeviationCount())
	assert.Equal(t, StateNormal, m.State())

	r := m.Evaluate(pitch(30), target, s, t0.Add(time.Second))
	assert.Equal(t, 1, r.DeviationCount)
	assert.Equal(t, ReasonRateLimited, r.Decision.Suppressed)
}
