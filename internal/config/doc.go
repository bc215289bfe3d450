// Tandem - Event Co-occurrence Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tandem

/*
Package config loads and validates Tandem's configuration.

# Configuration Sources

Configuration is layered with Koanf v2, later layers overriding earlier ones:

 1. Built-in defaults (defaultConfig)
 2. Optional YAML file: $CONFIG_PATH, ./config.yaml or /etc/tandem/config.yaml
 3. Environment variables listed in envMappings

Environment variables not present in the mapping are ignored.

# Roles

A single binary can run any subset of the three roles:

  - collector: accepts user actions and publishes them to the action stream
  - aggregator: consumes actions, maintains co-occurrence state, emits similarity deltas
  - analyzer: persists actions and similarities to DuckDB and serves queries

Select roles with TANDEM_ROLES (comma separated). All three run by default.

# Example

	TANDEM_ROLES=aggregator \
	NATS_URL=nats://nats:4222 \
	NATS_EMBEDDED=false \
	./tandem
*/
package config
