// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package engine

import "errors"

// None of these leave the engine unusable; callers match them with errors.Is.
var (
	// ErrInvalidSample: non-finite values. The sample is discarded and no
	// state changes.
	ErrInvalidSample = errors.New("invalid sample")

	// ErrConfigurationOutOfRange: the new value is rejected and the prior
	// configuration kept.
	ErrConfigurationOutOfRange = errors.New("configuration out of range")

	// ErrNoCalibrationData: the calibration window saw no samples. The
	// target posture is left unchanged.
	ErrNoCalibrationData = errors.New("no calibration data")

	ErrCalibrationInProgress = errors.New("calibration already in progress")
	ErrNotCalibrating        = errors.New("no calibration in progress")
)
