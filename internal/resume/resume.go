// plexodb - PLEXOS solution bundle to DuckDB assembler
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package resume records which time-series tables a run has already merged
// into the destination database, in a small BadgerDB store, so a re-run
// with --resume can skip tables a prior aborted run already finished.
package resume

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

const completedPrefix = "completed:"

// Store is a durable set of table names a run has finished merging.
type Store struct {
	db *badger.DB
}

// Open creates or reopens a checkpoint store at path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // the pipeline's own zerolog logger covers this

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint store at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying BadgerDB handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// MarkComplete records tableName as fully merged into the destination.
func (s *Store) MarkComplete(tableName string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(completedPrefix+tableName), []byte{1})
	})
}

// IsComplete reports whether tableName was already marked complete by a
// prior run.
func (s *Store) IsComplete(tableName string) (bool, error) {
	complete := false
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(completedPrefix + tableName))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		complete = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("check completion of %s: %w", tableName, err)
	}
	return complete, nil
}

// CompletedTables returns every table name previously marked complete.
func (s *Store) CompletedTables() ([]string, error) {
	var names []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(completedPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			names = append(names, string(key[len(completedPrefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list completed tables: %w", err)
	}
	return names, nil
}
