package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
	"lukechampine.com/blake3"
)

var bucketIdempotency = []byte("idempotency")

// ErrIdempotencyMismatch is returned when a key is reused for a different
// transaction.
var ErrIdempotencyMismatch = errors.New("idempotency key reuse with a different transaction")

// IdempotencyRecord caches the result of a submission.
type IdempotencyRecord struct {
	TxHash    string          `json:"txHash"`
	Result    json.RawMessage `json:"result"`
	StoredAt  time.Time       `json:"storedAt"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

// IdempotencyStore persists submission results keyed by the client supplied
// Idempotency-Key header, so a client retrying after a lost response gets the
// original receipt instead of a nonce error.
type IdempotencyStore struct {
	db  *bolt.DB
	ttl time.Duration
	now func() time.Time
}

// OpenIdempotencyStore opens (and migrates) the BoltDB file at path.
func OpenIdempotencyStore(path string, ttl time.Duration) (*IdempotencyStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open idempotency store: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketIdempotency)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyStore{db: db, ttl: ttl, now: time.Now}, nil
}

// Close releases the underlying Bolt database handle.
func (s *IdempotencyStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// storeKey bounds client supplied keys to a fixed 32-byte bucket key.
func storeKey(key string) []byte {
	sum := blake3.Sum256([]byte(key))
	return sum[:]
}

// Lookup returns the cached result for key. Expired records are treated as
// absent. A record bound to a different transaction yields
// ErrIdempotencyMismatch.
func (s *IdempotencyStore) Lookup(key, txHash string) (*IdempotencyRecord, bool, error) {
	var rec IdempotencyRecord
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketIdempotency).Get(storeKey(key))
		if raw == nil {
			return nil
		}
		if err := json.Unmarshal(raw, &rec); err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if !found || s.now().After(rec.ExpiresAt) {
		return nil, false, nil
	}
	if rec.TxHash != txHash {
		return nil, false, ErrIdempotencyMismatch
	}
	return &rec, true, nil
}

// Save stores result for key.
func (s *IdempotencyStore) Save(key, txHash string, result json.RawMessage) error {
	now := s.now()
	rec := IdempotencyRecord{
		TxHash:    txHash,
		Result:    result,
		StoredAt:  now,
		ExpiresAt: now.Add(s.ttl),
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketIdempotency).Put(storeKey(key), raw)
	})
}

// Prune deletes expired records and returns how many were removed.
func (s *IdempotencyStore) Prune() (int, error) {
	now := s.now()
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketIdempotency)
		var stale [][]byte
		err := bucket.ForEach(func(k, v []byte) error {
			var rec IdempotencyRecord
			if err := json.Unmarshal(v, &rec); err != nil || now.After(rec.ExpiresAt) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	return removed, err
}
