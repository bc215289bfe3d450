// Tandem - Event Co-occurrence Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tandem

package wal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/tandem/internal/logging"
	"github.com/tomtom215/tandem/internal/metrics"
)

// deleteBatchSize bounds the keys removed per transaction to stay under
// badger's transaction size limit.
const deleteBatchSize = 1000

// Compact deletes confirmed entries and reclaims value log space. It returns
// the number of entries removed.
func (w *BadgerWAL) Compact(ctx context.Context) (int, error) {
	if err := w.checkOpen(); err != nil {
		return 0, err
	}
	start := time.Now()

	keys, err := w.confirmedKeys(ctx)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for len(keys) > 0 {
		n := min(len(keys), deleteBatchSize)
		batch := keys[:n]
		keys = keys[n:]
		if err := w.db.Update(func(txn *badger.Txn) error {
			for _, k := range batch {
				if err := txn.Delete(k); err != nil {
					return err
				}
			}
			return nil
		}); err != nil {
			return deleted, fmt.Errorf("delete confirmed entries: %w", err)
		}
		deleted += n
	}

	if err := w.runGC(); err != nil {
		logging.Warn().Err(err).Msg("WAL value log GC failed")
	}

	w.mu.Lock()
	w.lastCompaction = time.Now()
	w.mu.Unlock()

	metrics.WALOperations.WithLabelValues("compact").Inc()
	logging.Debug().Int("deleted", deleted).Dur("duration", time.Since(start)).Msg("WAL compaction complete")
	return deleted, nil
}

func (w *BadgerWAL) confirmedKeys(ctx context.Context) ([][]byte, error) {
	var keys [][]byte
	err := w.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixConfirmed)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan confirmed entries: %w", err)
	}
	return keys, nil
}

// runGC rewrites value log files until badger reports nothing left to reclaim.
func (w *BadgerWAL) runGC() error {
	ratio := w.config.GCRatio
	if ratio <= 0 || ratio >= 1 {
		ratio = 0.5
	}
	for {
		err := w.db.RunValueLogGC(ratio)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
