// Tandem - Event Co-occurrence Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tandem

/*
Package supervisor runs Tandem's long-lived components under a suture/v4
supervisor tree.

# Tree Layout

	tandem (root)
	├── messaging-layer
	│   ├── aggregator consumer loop
	│   ├── action sink consumer loop
	│   └── similarity sink consumer loop
	├── data-layer
	│   └── WAL retry loop
	└── api-layer
	    ├── http-server
	    └── grpc-server

Only the services of the enabled roles are added. A failing service is
restarted with suture's backoff without touching the other layers, so a broker
outage that stalls the consumer loops leaves the query API serving.

# Services

The services subpackage adapts the two lifecycle shapes used in Tandem:

  - ServerService: ListenAndServe/Shutdown (*http.Server, *rpc.Server)
  - RunnerService: Run(ctx) error (*eventprocessor.ConsumerLoop, *wal.RetryLoop)

# Logging

Supervisor events go through sutureslog into the zerolog-backed slog handler
from the logging package.
*/
package supervisor
