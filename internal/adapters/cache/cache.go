// Package cache stores assembled recommendations in badger with a TTL.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/okian/reel/internal/domain/model"
	"github.com/okian/reel/pkg/metrics"
)

const (
	recommendationKeyPrefix = "rec:user:"
	defaultTTL              = time.Hour
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("cache closed")

// Option applies a configuration option to the Store.
type Option func(*settings)

type settings struct {
	path string
	ttl  time.Duration
}

// WithPath persists the cache under dir. Without it the cache lives in memory.
func WithPath(dir string) Option {
	return func(s *settings) {
		s.path = dir
	}
}

// WithTTL sets how long entries live.
func WithTTL(ttl time.Duration) Option {
	return func(s *settings) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// Store is a badger-backed recommendation cache.
type Store struct {
	db  *badger.DB
	ttl time.Duration
}

// Open opens the cache.
func Open(opts ...Option) (*Store, error) {
	s := settings{ttl: defaultTTL}
	for _, opt := range opts {
		opt(&s)
	}

	bopts := badger.DefaultOptions(s.path)
	if s.path == "" {
		bopts = bopts.WithInMemory(true)
	}
	bopts.Logger = nil

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Store{db: db, ttl: s.ttl}, nil
}

// RecommendationKey is the cache key of userID's ranking under modelVersion.
func RecommendationKey(userID, modelVersion string) string {
	return recommendationKeyPrefix + userID + ":model:" + modelVersion
}

// GetRecommendation returns the cached ranking, if present and not expired.
func (s *Store) GetRecommendation(ctx context.Context, userID, modelVersion string) (model.Recommendation, bool, error) {
	var rec model.Recommendation
	if err := ctx.Err(); err != nil {
		return rec, false, err
	}

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(RecommendationKey(userID, modelVersion)))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		metrics.RecordCacheMiss()
		return rec, false, nil
	case errors.Is(err, badger.ErrDBClosed):
		metrics.RecordCacheError("get")
		return rec, false, ErrClosed
	case err != nil:
		metrics.RecordCacheError("get")
		return rec, false, fmt.Errorf("get %s: %w", userID, err)
	}
	metrics.RecordCacheHit()
	return rec, true, nil
}

// PutRecommendation stores rec under its user and model version.
func (s *Store) PutRecommendation(ctx context.Context, rec model.Recommendation) error { //nolint:gocritic // hugeParam: value semantics
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal recommendation: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(RecommendationKey(rec.UserID, rec.ModelVersion)), data).WithTTL(s.ttl)
		return txn.SetEntry(e)
	})
	if err != nil {
		metrics.RecordCacheError("put")
		if errors.Is(err, badger.ErrDBClosed) {
			return ErrClosed
		}
		return fmt.Errorf("put %s: %w", rec.UserID, err)
	}
	return nil
}

// InvalidateUser drops every cached ranking of userID, across model versions.
func (s *Store) InvalidateUser(userID string) error {
	prefix := []byte(recommendationKeyPrefix + userID + ":")
	err := s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		var keys [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()

		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		metrics.RecordCacheError("invalidate")
		return fmt.Errorf("invalidate %s: %w", userID, err)
	}
	return nil
}

// Len counts the live entries.
func (s *Store) Len() int {
	n := 0
	_ = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
