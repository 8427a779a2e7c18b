// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package feedback

import (
	"fmt"
	"strings"

	"github.com/relabs-tech/posture_monitor/internal/posture"
)

// Language selects the instruction table.
type Language string

const (
	English Language = "en"
	Chinese Language = "zh"
)

// ParseLanguage accepts "en"/"english" and "zh"/"chinese".
func ParseLanguage(s string) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "en", "english":
		return English, nil
	case "zh", "chinese":
		return Chinese, nil
	}
	return "", fmt.Errorf("unknown language %q", s)
}

// phrase holds the gentle and the firm wording for one direction.
type phrase struct {
	gentle, firm string
}

// direction key: axis plus whether the delta is positive.
type direction struct {
	axis     posture.Axis
	positive bool
}

var instructions = map[Language]map[direction]phrase{
	English: {
		{posture.AxisPitch, true}:  {"Lower your head slightly", "Head too far back, please lower"},
		{posture.AxisPitch, false}: {"Raise your head slightly", "Head too low, please raise"},
		{posture.AxisYaw, true}:    {"Turn left slightly", "Head turned right, turn left"},
		{posture.AxisYaw, false}:   {"Turn right slightly", "Head turned left, turn right"},
		{posture.AxisRoll, true}:   {"Tilt left slightly", "Head tilted right, please adjust"},
		{posture.AxisRoll, false}:  {"Tilt right slightly", "Head tilted left, please adjust"},
	},
	Chinese: {
		{posture.AxisPitch, true}:  {"请稍微低一点头", "头部太向后了，请低头"},
		{posture.AxisPitch, false}: {"请稍微抬一点头", "头部太低了，请抬头"},
		{posture.AxisYaw, true}:    {"请稍微向左转", "头部偏右，请向左转"},
		{posture.AxisYaw, false}:   {"请稍微向右转", "头部偏左，请向右转"},
		{posture.AxisRoll, true}:   {"请稍微向左倾斜", "头部右倾，请调整"},
		{posture.AxisRoll, false}:  {"请稍微向右倾斜", "头部左倾，请调整"},
	},
}

// Instruction returns the corrective sentence for the dominant axis of d.
func Instruction(d posture.Deviation, level Level, lang Language) (posture.Axis, string) {
	axis := d.PrimaryAxis()

	table, ok := instructions[lang]
	if !ok {
		table = instructions[English]
	}

	p := table[direction{axis: axis, positive: d.Delta(axis) > 0}]
	if level == LevelGentle {
		return axis, p.gentle
	}
	return axis, p.firm
}
