// Tandem - Event Co-occurrence Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tandem

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/tandem/internal/config"
	"github.com/tomtom215/tandem/internal/logging"
)

// reloadLogLevel re-reads the configuration and applies its log level. Other
// settings need a restart. A configuration that fails to load or validate
// leaves the current level in place.
func reloadLogLevel(load func() (*config.Config, error)) (string, error) {
	cfg, err := load()
	if err != nil {
		return "", err
	}
	logging.SetLevelString(cfg.Logging.Level)
	return cfg.Logging.Level, nil
}

// watchReload applies reloadLogLevel on every SIGHUP until ctx is done.
func watchReload(ctx context.Context, load func() (*config.Config, error)) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		defer signal.Stop(hup)
		for {
			select {
			case <-hup:
				level, err := reloadLogLevel(load)
				logging.Err(err).Str("level", level).Msg("Log level reload")
			case <-ctx.Done():
				return
			}
		}
	}()
}
