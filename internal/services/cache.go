package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/langchain-ai/opengpts-go/internal/models"
)

// BoltCache is a local cache of server state backed by a BoltDB file. It lets the client show
// the last known thread state and sidebar listings immediately on startup, or when a fetch
// fails, while a fresh fetch is in flight. It is a cache, never an authority: the server wins
// whenever it answers.
type BoltCache struct {
	db *bolt.DB
}

var (
	statesBucket     = []byte("thread-states")
	threadsBucket    = []byte("threads")
	assistantsBucket = []byte("assistants")
)

// NewBoltCache creates a new BoltCache at the specified file path. The database file is
// created with 0600 permissions if it doesn't exist.
func NewBoltCache(path string) (BoltCache, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return BoltCache{}, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{statesBucket, threadsBucket, assistantsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})

	return BoltCache{db: db}, err
}

// PutState stores the latest known state for a thread, replacing any previous entry.
func (b BoltCache) PutState(_ context.Context, threadID string, state models.ThreadState) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(statesBucket)
		if bkt == nil {
			return nil
		}

		v, err := json.Marshal(state)
		if err != nil {
			return fmt.Errorf("failed to marshal thread state: %w", err)
		}

		return bkt.Put([]byte(threadID), v)
	})
}

// State retrieves the cached state for a thread. A miss returns (nil, nil).
func (b BoltCache) State(_ context.Context, threadID string) (*models.ThreadState, error) {
	var state *models.ThreadState
	err := b.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(statesBucket)
		if bkt == nil {
			return nil
		}

		v := bkt.Get([]byte(threadID))
		if v == nil {
			return nil
		}

		var st models.ThreadState
		if err := json.Unmarshal(v, &st); err != nil {
			return fmt.Errorf("failed to unmarshal thread state: %w", err)
		}
		state = &st
		return nil
	})
	return state, err
}

// PutThreads replaces the cached thread listing.
func (b BoltCache) PutThreads(_ context.Context, threads []models.Thread) error {
	return putList(b.db, threadsBucket, threads, func(t models.Thread) string { return t.ID })
}

// Threads retrieves the cached thread listing.
func (b BoltCache) Threads(context.Context) ([]models.Thread, error) {
	var threads []models.Thread
	err := b.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(threadsBucket)
		if bkt == nil {
			return nil
		}

		return bkt.ForEach(func(_, v []byte) error {
			var thread models.Thread
			if err := json.Unmarshal(v, &thread); err != nil {
				return fmt.Errorf("failed to unmarshal thread: %w", err)
			}
			threads = append(threads, thread)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return threads, nil
}

// PutAssistants replaces the cached assistant listing.
func (b BoltCache) PutAssistants(_ context.Context, assistants []models.Assistant) error {
	return putList(b.db, assistantsBucket, assistants, func(a models.Assistant) string { return a.ID })
}

// Assistants retrieves the cached assistant listing.
func (b BoltCache) Assistants(context.Context) ([]models.Assistant, error) {
	var assistants []models.Assistant
	err := b.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(assistantsBucket)
		if bkt == nil {
			return nil
		}

		return bkt.ForEach(func(_, v []byte) error {
			var assistant models.Assistant
			if err := json.Unmarshal(v, &assistant); err != nil {
				return fmt.Errorf("failed to unmarshal assistant: %w", err)
			}
			assistants = append(assistants, assistant)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return assistants, nil
}

// Close releases the underlying database file.
func (b BoltCache) Close() error {
	return b.db.Close()
}

func putList[T any](db *bolt.DB, bucket []byte, items []T, key func(T) string) error {
	return db.Update(func(tx *bolt.Tx) error {
		// Replace wholesale so deletions on the server don't linger locally.
		if err := tx.DeleteBucket(bucket); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return err
		}
		bkt, err := tx.CreateBucket(bucket)
		if err != nil {
			return fmt.Errorf("failed to recreate bucket: %w", err)
		}

		for _, item := range items {
			v, err := json.Marshal(item)
			if err != nil {
				return fmt.Errorf("failed to marshal entry: %w", err)
			}
			if err := bkt.Put([]byte(key(item)), v); err != nil {
				return err
			}
		}
		return nil
	})
}
