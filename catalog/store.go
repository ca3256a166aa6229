package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketItems = []byte("items")
	bucketMeta  = []byte("meta")
)

// Store is a durable keyed store of catalog Items backed by a single-file
// bbolt database. It is single-writer within one service cycle; concurrent
// writers are not supported.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the catalog database at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("could not open catalog db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketItems); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketMeta)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("could not create catalog buckets: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Upsert inserts or replaces an item by RemoteID. Atomic per call.
func (s *Store) Upsert(item Item) error {
	if item.RemoteID == "" {
		return fmt.Errorf("catalog: refusing to upsert item with empty remote id")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return putItem(tx, item)
	})
}

// UpsertBatch inserts or replaces several items within a single transaction.
func (s *Store) UpsertBatch(items []Item) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, item := range items {
			if item.RemoteID == "" {
				log.Error().Str("name", item.Name).Msg("Catalog integrity failure: item with empty remote id dropped from batch upsert.")
				continue
			}
			if err := putItem(tx, item); err != nil {
				return err
			}
		}
		return nil
	})
}

func putItem(tx *bolt.Tx, item Item) error {
	data, err := json.Marshal(item)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketItems).Put([]byte(item.RemoteID), data)
}

// Delete bulk-deletes items by RemoteID.
func (s *Store) Delete(ids []string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketItems)
		for _, id := range ids {
			if err := b.Delete([]byte(id)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Get fetches a single item by RemoteID, returning (nil, nil) if absent.
func (s *Store) Get(id string) (*Item, error) {
	var item *Item
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketItems).Get([]byte(id))
		if data == nil {
			return nil
		}
		var i Item
		if err := json.Unmarshal(data, &i); err != nil {
			return err
		}
		item = &i
		return nil
	})
	return item, err
}

// Predicate filters Items during a Children query without changing the
// result shape.
type Predicate func(Item) bool

// Children returns all items whose ParentID equals parentID. An empty
// parentID matches synchronization roots (ParentID == ""). The optional
// predicate filters results.
func (s *Store) Children(parentID string, predicate Predicate) ([]Item, error) {
	var results []Item
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketItems).ForEach(func(_, data []byte) error {
			var item Item
			if err := json.Unmarshal(data, &item); err != nil {
				return err
			}
			if item.ParentID != parentID {
				return nil
			}
			if predicate != nil && !predicate(item) {
				return nil
			}
			results = append(results, item)
			return nil
		})
	})
	return results, err
}

// Root returns the synchronization-root item with the given name, or nil if
// none exists.
func (s *Store) Root(name string) (*Item, error) {
	roots, err := s.Children("", func(i Item) bool { return i.Name == name })
	if err != nil || len(roots) == 0 {
		return nil, err
	}
	return &roots[0], nil
}

// MarkAllNotExisting sets Existing = false on every row. Called at the start
// of a refresh so that rows untouched by the following BFS can be swept.
func (s *Store) MarkAllNotExisting() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketItems)
		return b.ForEach(func(k, data []byte) error {
			var item Item
			if err := json.Unmarshal(data, &item); err != nil {
				return err
			}
			if !item.Existing {
				return nil
			}
			item.Existing = false
			updated, err := json.Marshal(item)
			if err != nil {
				return err
			}
			return b.Put(k, updated)
		})
	})
}

// SweepNotExisting deletes every row still marked Existing == false. Must
// only be called after a refresh's BFS has fully completed, so an
// interrupted refresh never deletes entries it simply didn't get around to
// re-observing.
func (s *Store) SweepNotExisting() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketItems)
		var stale [][]byte
		err := b.ForEach(func(k, data []byte) error {
			var item Item
			if err := json.Unmarshal(data, &item); err != nil {
				return err
			}
			if !item.Existing {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// Commit durably flushes batched writes. bbolt commits every Update
// transaction already, so this is a no-op kept to satisfy the store
// contract and to give callers one place to log checkpoints from.
func (s *Store) Commit() error {
	return nil
}

// Compact reclaims space by copying the database into a fresh file and
// replacing the original. bbolt has no online vacuum, so this is the
// idiomatic approximation other bbolt-backed Go projects use.
func (s *Store) Compact() error {
	path := s.db.Path()
	tmpPath := path + ".compact"

	tmp, err := bolt.Open(tmpPath, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return fmt.Errorf("could not open compaction target: %w", err)
	}

	err = s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, b *bolt.Bucket) error {
			return tmp.Update(func(ttx *bolt.Tx) error {
				dst, err := ttx.CreateBucketIfNotExists(name)
				if err != nil {
					return err
				}
				return b.ForEach(func(k, v []byte) error {
					return dst.Put(k, v)
				})
			})
		})
	})
	closeErr := tmp.Close()
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("could not copy catalog for compaction: %w", err)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("could not finalize compacted catalog: %w", closeErr)
	}

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("could not close catalog before swap: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("could not swap in compacted catalog: %w", err)
	}

	reopened, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return fmt.Errorf("could not reopen compacted catalog: %w", err)
	}
	s.db = reopened
	return nil
}
