// Tandem - Event Co-occurrence Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tandem

package database

import (
	"context"
	"fmt"
)

// schemaStatements create the store tables. Every statement is idempotent.
var schemaStatements = []string{
	`CREATE SEQUENCE IF NOT EXISTS user_action_id_seq START 1`,
	`CREATE SEQUENCE IF NOT EXISTS event_similarity_id_seq START 1`,

	`CREATE TABLE IF NOT EXISTS user_action (
		id          BIGINT PRIMARY KEY DEFAULT nextval('user_action_id_seq'),
		user_id     BIGINT NOT NULL,
		event_id    BIGINT NOT NULL,
		action_type VARCHAR NOT NULL,
		action_date TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS event_similarity (
		id         BIGINT PRIMARY KEY DEFAULT nextval('event_similarity_id_seq'),
		event_a    BIGINT NOT NULL,
		event_b    BIGINT NOT NULL,
		score      DOUBLE NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE (event_a, event_b)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_user_action_user_date ON user_action(user_id, action_date)`,
	`CREATE INDEX IF NOT EXISTS idx_user_action_event ON user_action(event_id)`,
	`CREATE INDEX IF NOT EXISTS idx_event_similarity_b ON event_similarity(event_b)`,
}

func (db *DB) createSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
