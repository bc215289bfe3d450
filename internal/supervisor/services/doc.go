// Tandem - Event Co-occurrence Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tandem

// Package services adapts Tandem components to suture.Service.
//
// Serve returns ctx.Err() on shutdown and a wrapped error on failure, which
// suture answers with a restart under its backoff policy.
//
//	tree.AddAPIService(services.NewServerService("http-server", httpServer, 10*time.Second))
//	tree.AddMessagingService(services.NewRunnerService(loop.Name(), loop))
package services
