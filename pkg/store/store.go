// Package store persists the cross-platform message-identity correlation.
//
// Each correlation row ties one source message id to one target message id it
// produced. A source may fan out to several targets (one per extra image);
// a target always maps back to exactly one source. Rows must survive process
// restarts, since deletes and replies may reference messages sent before the
// last restart.
package store

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
)

// Key layout:
//
//	s/<sourceID>/<seq> -> targetID   (ordered fan-out, seq is zero-padded)
//	t/<targetID>       -> sourceID   (inverse lookup)
//
// Both keys for a row are written in one transaction, so the pair is atomic
// at row granularity without any global lock.
const seqWidth = 8

type Store struct {
	db  *badger.DB
	log zerolog.Logger
}

// Open opens (or creates) the store at dir. With inMemory set, nothing is
// persisted; that mode exists for tests.
func Open(dir string, inMemory bool, log zerolog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(dir).
		WithInMemory(inMemory).
		WithLogger(nil).
		WithSyncWrites(!inMemory)
	if inMemory {
		opts.Dir = ""
		opts.ValueDir = ""
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening correlation store: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func sourceKey(sourceID string, seq int) []byte {
	return fmt.Appendf(nil, "s/%s/%0*d", sourceID, seqWidth, seq)
}

func sourcePrefix(sourceID string) []byte {
	return fmt.Appendf(nil, "s/%s/", sourceID)
}

func targetKey(targetID string) []byte {
	return fmt.Appendf(nil, "t/%s", targetID)
}

// Record appends one correlation row. Recording the same (source, target)
// pair twice is a no-op. The write is synced before Record returns, so a
// dispatched message's row is durable before its event handler finishes.
func (s *Store) Record(sourceID, targetID string) error {
	for {
		err := s.db.Update(func(txn *badger.Txn) error {
			tk := targetKey(targetID)
			if item, err := txn.Get(tk); err == nil {
				return item.Value(func(val []byte) error {
					if string(val) != sourceID {
						return fmt.Errorf("target %s already owned by source %s", targetID, val)
					}
					return nil // duplicate pair
				})
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}

			seq, err := nextSeq(txn, sourcePrefix(sourceID))
			if err != nil {
				return err
			}
			if err := txn.Set(sourceKey(sourceID, seq), []byte(targetID)); err != nil {
				return err
			}
			return txn.Set(tk, []byte(sourceID))
		})
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		return err
	}
}

// TargetsFor returns the target message ids produced from sourceID, in
// insertion order. The slice is empty when none are known.
func (s *Store) TargetsFor(sourceID string) ([]string, error) {
	var targets []string
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(prefixIterOpts(sourcePrefix(sourceID)))
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				targets = append(targets, string(val))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return targets, err
}

// SourceFor returns the single source message id that produced targetID.
func (s *Store) SourceFor(targetID string) (string, bool, error) {
	var source string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(targetKey(targetID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			source = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return source, true, nil
}

// DeleteBySource removes every row owned by sourceID, including the inverse
// entries of all its targets.
func (s *Store) DeleteBySource(sourceID string) error {
	for {
		err := s.db.Update(func(txn *badger.Txn) error {
			it := txn.NewIterator(prefixIterOpts(sourcePrefix(sourceID)))
			var keys [][]byte
			var targets []string
			for it.Rewind(); it.Valid(); it.Next() {
				item := it.Item()
				keys = append(keys, item.KeyCopy(nil))
				err := item.Value(func(val []byte) error {
					targets = append(targets, string(val))
					return nil
				})
				if err != nil {
					it.Close()
					return err
				}
			}
			it.Close()
			for _, k := range keys {
				if err := txn.Delete(k); err != nil {
					return err
				}
			}
			for _, t := range targets {
				if err := txn.Delete(targetKey(t)); err != nil {
					return err
				}
			}
			return nil
		})
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		return err
	}
}

// DeleteByTarget removes the single row owning targetID.
func (s *Store) DeleteByTarget(targetID string) error {
	for {
		err := s.db.Update(func(txn *badger.Txn) error {
			tk := targetKey(targetID)
			item, err := txn.Get(tk)
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			var sourceID string
			if err := item.Value(func(val []byte) error {
				sourceID = string(val)
				return nil
			}); err != nil {
				return err
			}

			// Find the source-side entry pointing at this target.
			it := txn.NewIterator(prefixIterOpts(sourcePrefix(sourceID)))
			var sk []byte
			for it.Rewind(); it.Valid(); it.Next() {
				item := it.Item()
				err := item.Value(func(val []byte) error {
					if string(val) == targetID {
						sk = item.KeyCopy(nil)
					}
					return nil
				})
				if err != nil {
					it.Close()
					return err
				}
				if sk != nil {
					break
				}
			}
			it.Close()
			if sk != nil {
				if err := txn.Delete(sk); err != nil {
					return err
				}
			}
			return txn.Delete(tk)
		})
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		return err
	}
}

// RunGC runs one round of Badger value log garbage collection. Called
// periodically by the maintenance job; "nothing to collect" is not an error.
func (s *Store) RunGC() {
	for {
		if err := s.db.RunValueLogGC(0.5); err != nil {
			if !errors.Is(err, badger.ErrNoRewrite) {
				s.log.Warn().Err(err).Msg("value log GC failed")
			}
			return
		}
	}
}

func prefixIterOpts(prefix []byte) badger.IteratorOptions {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = true
	return opts
}

// nextSeq returns one past the highest existing sequence under prefix.
// Counting rows instead would reuse a live sequence after a partial delete.
func nextSeq(txn *badger.Txn, prefix []byte) (int, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()
	next := 0
	for it.Rewind(); it.Valid(); it.Next() {
		key := it.Item().Key()
		var seq int
		if _, err := fmt.Sscanf(string(key[len(prefix):]), "%d", &seq); err != nil {
			return 0, fmt.Errorf("malformed correlation key %q: %w", key, err)
		}
		if seq >= next {
			next = seq + 1
		}
	}
	return next, nil
}
