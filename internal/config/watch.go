// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// reloadDebounce collapses the burst of events editors emit on save.
const reloadDebounce = 500 * time.Millisecond

// Watch reloads configPath whenever it changes and passes the new Config to
// onChange. A file that fails to load is logged and the previous configuration
// stays in effect. Watch blocks until ctx is done.
func Watch(ctx context.Context, configPath string, log *zap.Logger, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	defer watcher.Close()

	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}

	// Watch the directory: editors that write via rename replace the inode.
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		return fmt.Errorf("failed to watch config dir: %w", err)
	}

	log = log.Named("config")
	timer := time.NewTimer(reloadDebounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != absPath {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				timer.Reset(reloadDebounce)
			}

		case <-timer.C:
			cfg, err := Load(absPath)
			if err != nil {
				log.Error("config reload failed, keeping previous", zap.Error(err))
				continue
			}
			log.Info("config reloaded", zap.String("path", absPath))
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error("config watcher error", zap.Error(err))
		}
	}
}
