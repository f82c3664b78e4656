// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/ManuGH/guardian/internal/domain/emergency/model"
)

const badgerLogPrefix = "log:"

// BadgerLog is an embedded key-value event log. Keys are "log:" followed by a
// big-endian sequence number, so iteration order is append order.
type BadgerLog struct {
	db  *badger.DB
	seq *badger.Sequence
}

// OpenBadgerLog opens a badger directory. An empty path opens an in-memory store.
func OpenBadgerLog(path string) (*BadgerLog, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger log: open: %w", err)
	}
	seq, err := db.GetSequence([]byte("seq:log"), 64)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("badger log: sequence: %w", err)
	}
	return &BadgerLog{db: db, seq: seq}, nil
}

func (b *BadgerLog) Close() error {
	if err := b.seq.Release(); err != nil {
		_ = b.db.Close()
		return err
	}
	return b.db.Close()
}

func logKey(n uint64) []byte {
	key := make([]byte, len(badgerLogPrefix)+8)
	copy(key, badgerLogPrefix)
	binary.BigEndian.PutUint64(key[len(badgerLogPrefix):], n)
	return key
}

func (b *BadgerLog) Append(_ context.Context, entry model.LogEntry) error {
	buf, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("badger log: encode entry: %w", err)
	}
	n, err := b.seq.Next()
	if err != nil {
		return fmt.Errorf("badger log: next sequence: %w", err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(logKey(n), buf)
	})
}

// List returns the newest limit entries in append order. limit <= 0 returns all.
func (b *BadgerLog) List(ctx context.Context, limit int) ([]model.LogEntry, error) {
	var newestFirst []model.LogEntry
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(badgerLogPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration seeks from just past the prefix range.
		seek := append([]byte(badgerLogPrefix), 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF)
		for it.Seek(seek); it.ValidForPrefix(opts.Prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var entry model.LogEntry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				return fmt.Errorf("badger log: decode entry: %w", err)
			}
			newestFirst = append(newestFirst, entry)
			if limit > 0 && len(newestFirst) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reverse(newestFirst), nil
}

func reverse(entries []model.LogEntry) []model.LogEntry {
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries
}
