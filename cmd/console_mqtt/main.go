// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"

	"go.uber.org/zap"

	"github.com/relabs-tech/posture_monitor/internal/app"
	"github.com/relabs-tech/posture_monitor/internal/config"
	"github.com/relabs-tech/posture_monitor/internal/logging"
)

func main() {
	configPath := flag.String("config", "posture_config.txt", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting posture console (MQTT subscriber)", zap.String("config", *configPath))

	if err := app.RunConsoleMQTT(cfg, logger); err != nil {
		logger.Fatal("fatal", zap.Error(err))
	}
}
