// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/relabs-tech/posture_monitor/internal/feedback"
	"github.com/relabs-tech/posture_monitor/internal/posture"
)

// EnvPrefix namespaces environment overrides: POSTURE_SENSITIVITY=12 wins over
// SENSITIVITY=15 in the file.
const EnvPrefix = "POSTURE"

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker           string
	MQTTClientIDMonitor  string
	MQTTClientIDProducer string
	MQTTClientIDConsole  string

	// Topics
	TopicSamples     string
	TopicFeedback    string
	TopicState       string
	TopicStatistics  string
	TopicCalibration string
	TopicSampleRate  string

	// Sample source
	SampleSource   string // "mock" or "serial"
	SerialPort     string
	SerialBaudRate int
	SampleRate     float64 // Hz, (0, 100]

	// Feedback
	FeedbackEnabled      bool
	Muted                bool
	Sensitivity          float64 // degrees
	AlertDelay           time.Duration
	Strategy             feedback.Strategy
	Language             feedback.Language
	RepeatWhileDeviating bool
	DNDEnabled           bool
	DNDStart             feedback.ClockTime
	DNDEnd               feedback.ClockTime

	// Target posture used until the first calibration
	TargetPitch float64
	TargetYaw   float64
	TargetRoll  float64

	// Score and calibration
	ScoreWindow         int
	CalibrationDuration time.Duration

	// Web Server
	WebServerPort        int
	StatePublishInterval time.Duration

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	HistoryLimit  int

	// Logging
	LogLevel string
	LogFile  string
}

// defaults are registered on every viper instance; they double as the list of
// accepted keys.
var defaults = map[string]any{
	"MQTT_BROKER":             "tcp://localhost:1883",
	"MQTT_CLIENT_ID_MONITOR":  "posture-monitor",
	"MQTT_CLIENT_ID_PRODUCER": "posture-producer",
	"MQTT_CLIENT_ID_CONSOLE":  "posture-console",

	"TOPIC_SAMPLES":     "posture/samples",
	"TOPIC_FEEDBACK":    "posture/feedback",
	"TOPIC_STATE":       "posture/state",
	"TOPIC_STATISTICS":  "posture/statistics",
	"TOPIC_CALIBRATION": "posture/calibration",
	"TOPIC_SAMPLE_RATE": "posture/control/sample_rate",

	"SAMPLE_SOURCE":    "mock",
	"SERIAL_PORT":      "/dev/ttyUSB0",
	"SERIAL_BAUD_RATE": 115200,
	"SAMPLE_RATE":      50.0,

	"FEEDBACK_ENABLED":       true,
	"MUTED":                  false,
	"SENSITIVITY":            15.0,
	"ALERT_DELAY_SECONDS":    5.0,
	"STRATEGY":               string(feedback.StrategyAdaptive),
	"LANGUAGE":               string(feedback.English),
	"REPEAT_WHILE_DEVIATING": false,
	"DND_ENABLED":            false,
	"DND_START":              "22:00",
	"DND_END":                "08:00",

	"TARGET_PITCH": -5.0,
	"TARGET_YAW":   0.0,
	"TARGET_ROLL":  0.0,

	"SCORE_WINDOW":        100,
	"CALIBRATION_SECONDS": 5.0,

	"WEB_SERVER_PORT":           8080,
	"STATE_PUBLISH_INTERVAL_MS": 200,

	"REDIS_ADDR":     "localhost:6379",
	"REDIS_PASSWORD": "",
	"REDIS_DB":       0,
	"HISTORY_LIMIT":  100,

	"LOG_LEVEL": "info",
	"LOG_FILE":  "",
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("env")
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	return v
}

// Load reads the KEY=VALUE configuration file and returns a Config struct.
// Every key may be overridden by POSTURE_<KEY> in the environment.
func Load(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return fromViper(v)
}

// Defaults returns the configuration with no file, environment overrides
// still applied.
func Defaults() (*Config, error) {
	return fromViper(newViper())
}

func fromViper(v *viper.Viper) (*Config, error) {
	if err := checkKeys(v); err != nil {
		return nil, err
	}

	c := &Config{
		MQTTBroker:           v.GetString("MQTT_BROKER"),
		MQTTClientIDMonitor:  v.GetString("MQTT_CLIENT_ID_MONITOR"),
		MQTTClientIDProducer: v.GetString("MQTT_CLIENT_ID_PRODUCER"),
		MQTTClientIDConsole:  v.GetString("MQTT_CLIENT_ID_CONSOLE"),

		TopicSamples:     v.GetString("TOPIC_SAMPLES"),
		TopicFeedback:    v.GetString("TOPIC_FEEDBACK"),
		TopicState:       v.GetString("TOPIC_STATE"),
		TopicStatistics:  v.GetString("TOPIC_STATISTICS"),
		TopicCalibration: v.GetString("TOPIC_CALIBRATION"),
		TopicSampleRate:  v.GetString("TOPIC_SAMPLE_RATE"),

		SampleSource:   strings.ToLower(v.GetString("SAMPLE_SOURCE")),
		SerialPort:     v.GetString("SERIAL_PORT"),
		SerialBaudRate: v.GetInt("SERIAL_BAUD_RATE"),
		SampleRate:     v.GetFloat64("SAMPLE_RATE"),

		FeedbackEnabled:      v.GetBool("FEEDBACK_ENABLED"),
		Muted:                v.GetBool("MUTED"),
		Sensitivity:          v.GetFloat64("SENSITIVITY"),
		AlertDelay:           seconds(v.GetFloat64("ALERT_DELAY_SECONDS")),
		RepeatWhileDeviating: v.GetBool("REPEAT_WHILE_DEVIATING"),
		DNDEnabled:           v.GetBool("DND_ENABLED"),

		TargetPitch: v.GetFloat64("TARGET_PITCH"),
		TargetYaw:   v.GetFloat64("TARGET_YAW"),
		TargetRoll:  v.GetFloat64("TARGET_ROLL"),

		ScoreWindow:         v.GetInt("SCORE_WINDOW"),
		CalibrationDuration: seconds(v.GetFloat64("CALIBRATION_SECONDS")),

		WebServerPort:        v.GetInt("WEB_SERVER_PORT"),
		StatePublishInterval: time.Duration(v.GetInt("STATE_PUBLISH_INTERVAL_MS")) * time.Millisecond,

		RedisAddr:     v.GetString("REDIS_ADDR"),
		RedisPassword: v.GetString("REDIS_PASSWORD"),
		RedisDB:       v.GetInt("REDIS_DB"),
		HistoryLimit:  v.GetInt("HISTORY_LIMIT"),

		LogLevel: v.GetString("LOG_LEVEL"),
		LogFile:  v.GetString("LOG_FILE"),
	}

	var err error
	if c.Strategy, err = feedback.ParseStrategy(v.GetString("STRATEGY")); err != nil {
		return nil, fmt.Errorf("STRATEGY: %w", err)
	}
	if c.Language, err = feedback.ParseLanguage(v.GetString("LANGUAGE")); err != nil {
		return nil, fmt.Errorf("LANGUAGE: %w", err)
	}
	if c.DNDStart, err = feedback.ParseClockTime(v.GetString("DND_START")); err != nil {
		return nil, fmt.Errorf("DND_START: %w", err)
	}
	if c.DNDEnd, err = feedback.ParseClockTime(v.GetString("DND_END")); err != nil {
		return nil, fmt.Errorf("DND_END: %w", err)
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// checkKeys rejects keys in the file that nothing reads. Viper lowercases keys.
func checkKeys(v *viper.Viper) error {
	var unknown []string
	for _, k := range v.AllKeys() {
		if _, ok := defaults[strings.ToUpper(k)]; !ok {
			unknown = append(unknown, strings.ToUpper(k))
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("unknown config key(s): %s", strings.Join(unknown, ", "))
	}
	return nil
}

// validate checks ranges and required fields.
func (c *Config) validate() error {
	var errs []error

	if c.MQTTBroker == "" {
		errs = append(errs, errors.New("MQTT_BROKER is required"))
	}
	if c.TopicSamples == "" {
		errs = append(errs, errors.New("TOPIC_SAMPLES is required"))
	}
	if math.IsNaN(c.SampleRate) || c.SampleRate <= 0 || c.SampleRate > 100 {
		errs = append(errs, fmt.Errorf("SAMPLE_RATE must be in (0, 100], got %v", c.SampleRate))
	}
	switch c.SampleSource {
	case "mock":
	case "serial":
		if c.SerialPort == "" {
			errs = append(errs, errors.New("SERIAL_PORT is required for SAMPLE_SOURCE=serial"))
		}
		if c.SerialBaudRate <= 0 {
			errs = append(errs, fmt.Errorf("SERIAL_BAUD_RATE must be > 0, got %d", c.SerialBaudRate))
		}
	default:
		errs = append(errs, fmt.Errorf("SAMPLE_SOURCE must be mock or serial, got %q", c.SampleSource))
	}
	if c.ScoreWindow <= 0 {
		errs = append(errs, fmt.Errorf("SCORE_WINDOW must be > 0, got %d", c.ScoreWindow))
	}
	if c.CalibrationDuration <= 0 {
		errs = append(errs, fmt.Errorf("CALIBRATION_SECONDS must be > 0, got %s", c.CalibrationDuration))
	}
	if c.WebServerPort <= 0 || c.WebServerPort > 65535 {
		errs = append(errs, fmt.Errorf("WEB_SERVER_PORT must be 1-65535, got %d", c.WebServerPort))
	}
	if c.StatePublishInterval <= 0 {
		errs = append(errs, fmt.Errorf("STATE_PUBLISH_INTERVAL_MS must be > 0, got %s", c.StatePublishInterval))
	}
	if c.HistoryLimit <= 0 {
		errs = append(errs, fmt.Errorf("HISTORY_LIMIT must be > 0, got %d", c.HistoryLimit))
	}
	if err := c.Target().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("TARGET: %w", err))
	}
	if err := c.Settings().Validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Settings builds the feedback settings the engine reads on every sample.
func (c *Config) Settings() feedback.Settings {
	return feedback.Settings{
		Enabled:     c.FeedbackEnabled,
		Muted:       c.Muted,
		Sensitivity: c.Sensitivity,
		AlertDelay:  c.AlertDelay,
		Strategy:    c.Strategy,
		Language:    c.Language,
		DoNotDisturb: feedback.DoNotDisturb{
			Enabled: c.DNDEnabled,
			Start:   c.DNDStart,
			End:     c.DNDEnd,
		},
		RepeatWhileDeviating: c.RepeatWhileDeviating,
	}
}

// Target is the configured initial target posture.
func (c *Config) Target() posture.Posture {
	return posture.Posture{Pitch: c.TargetPitch, Yaw: c.TargetYaw, Roll: c.TargetRoll, Quality: 1}
}
