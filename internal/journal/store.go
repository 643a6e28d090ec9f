package journal

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	// storeDirPerm is the permission mode for the database directory
	// (~/.journal-sync/).
	storeDirPerm = fs.FileMode(0o700)

	// storeFilePerm is the permission mode for the database file.
	storeFilePerm = fs.FileMode(0o600)

	// storeOpenTimeout is the maximum time to wait for the bolt
	// database lock.
	storeOpenTimeout = 5 * time.Second
)

var entriesBucket = []byte("entries")

// Store is the bbolt-backed local entry store. Entries are stored as
// JSON values keyed by entry id.
type Store struct {
	db *bolt.DB
}

// OpenAt opens (creating if necessary) the entry database at the given
// path. The entries bucket is created on open.
func OpenAt(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), storeDirPerm); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	db, err := bolt.Open(path, storeFilePerm, &bolt.Options{Timeout: storeOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening entry db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(entriesBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing entry db: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the entry with the given id, or nil if not found.
func (s *Store) Get(id string) (*Entry, error) {
	var e *Entry

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(entriesBucket).Get([]byte(id))
		if v == nil {
			return nil
		}

		e = &Entry{}

		return json.Unmarshal(v, e)
	})
	if err != nil {
		return nil, fmt.Errorf("reading entry %s: %w", id, err)
	}

	return e, nil
}

// GetAll returns every stored entry, newest creation first (the order
// the editor's entry list expects).
func (s *Store) GetAll() ([]Entry, error) {
	var entries []Entry

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(entriesBucket).ForEach(func(k, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("decoding entry %s: %w", k, err)
			}

			entries = append(entries, e)

			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})

	return entries, nil
}

// Put inserts or replaces an entry.
func (s *Store) Put(e Entry) error {
	if e.ID == "" {
		return fmt.Errorf("entry has no id")
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}

		return tx.Bucket(entriesBucket).Put([]byte(e.ID), data)
	})
}

// PutAll replaces the given entries in one transaction, so a
// reconciliation merge is applied atomically: readers observe either
// the pre-merge or the post-merge state, never a partial mix.
func (s *Store) PutAll(entries []Entry) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(entriesBucket)

		for _, e := range entries {
			if e.ID == "" {
				return fmt.Errorf("entry has no id")
			}

			data, err := json.Marshal(e)
			if err != nil {
				return err
			}

			if err := b.Put([]byte(e.ID), data); err != nil {
				return err
			}
		}

		return nil
	})
}

// Delete removes an entry by id. Deleting a missing id is a no-op.
func (s *Store) Delete(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(entriesBucket).Delete([]byte(id))
	})
}
