package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/quizgate/internal/models"
	bolt "go.etcd.io/bbolt"
)

var accessCodesBucket = []byte("access_codes")

var errCodeRejected = errors.New("code rejected")

// BoltAccessCodeRepository stores codes in an embedded bbolt file. bbolt
// allows a single writer at a time, so the read-modify-write in
// FindValidAndConsume cannot interleave with another consumer.
type BoltAccessCodeRepository struct {
	db *bolt.DB
}

// OpenBoltDB opens (or creates) the database file and ensures the bucket exists
func OpenBoltDB(path string) (*bolt.DB, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 10 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}
	return db, nil
}

// NewBoltAccessCodeRepository creates the bucket if needed
func NewBoltAccessCodeRepository(db *bolt.DB) (*BoltAccessCodeRepository, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(accessCodesBucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}
	return &BoltAccessCodeRepository{db: db}, nil
}

// FindValidAndConsume increments the use count of a valid code
func (r *BoltAccessCodeRepository) FindValidAndConsume(ctx context.Context, code string, now time.Time) (*models.AccessCode, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Join(models.ErrUnavailable, err)
	}
	key := []byte(models.NormalizeCode(code))

	var consumed *models.AccessCode
	err := r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(accessCodesBucket)
		stored, err := decodeAccessCode(b.Get(key))
		if err != nil {
			return err
		}
		if stored == nil || !stored.IsValid(now) {
			return errCodeRejected
		}

		stored.CurrentUses++
		usedAt := now
		stored.LastUsedAt = &usedAt

		if err := putAccessCode(b, stored); err != nil {
			return err
		}
		consumed = stored
		return nil
	})
	if errors.Is(err, errCodeRejected) {
		return nil, models.ErrCodeInvalid
	}
	if err != nil {
		return nil, err
	}
	return consumed, nil
}

// Lookup reads a code without modifying it
func (r *BoltAccessCodeRepository) Lookup(ctx context.Context, code string) (*models.AccessCode, error) {
	key := []byte(models.NormalizeCode(code))

	var found *models.AccessCode
	err := r.db.View(func(tx *bolt.Tx) error {
		var err error
		found, err = decodeAccessCode(tx.Bucket(accessCodesBucket).Get(key))
		return err
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, models.ErrNotFound
	}
	return found, nil
}

// Create stores a new code, failing with ErrConflict on duplicates
func (r *BoltAccessCodeRepository) Create(ctx context.Context, code *models.AccessCode) error {
	c := code.Clone()
	c.Code = models.NormalizeCode(c.Code)

	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(accessCodesBucket)
		if b.Get([]byte(c.Code)) != nil {
			return models.ErrConflict
		}
		return putAccessCode(b, c)
	})
}

// Reset zeroes the use count of a code
func (r *BoltAccessCodeRepository) Reset(ctx context.Context, code string) (*models.AccessCode, error) {
	key := []byte(models.NormalizeCode(code))

	var reset *models.AccessCode
	err := r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(accessCodesBucket)
		stored, err := decodeAccessCode(b.Get(key))
		if err != nil {
			return err
		}
		if stored == nil {
			return models.ErrNotFound
		}
		stored.CurrentUses = 0
		if err := putAccessCode(b, stored); err != nil {
			return err
		}
		reset = stored
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reset, nil
}

// List returns all codes ordered by creation time
func (r *BoltAccessCodeRepository) List(ctx context.Context) ([]*models.AccessCode, error) {
	codes := make([]*models.AccessCode, 0)
	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(accessCodesBucket).ForEach(func(_, v []byte) error {
			code, err := decodeAccessCode(v)
			if err != nil {
				return err
			}
			codes = append(codes, code)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sortCodes(codes)
	return codes, nil
}

// HealthCheck verifies the bucket is readable
func (r *BoltAccessCodeRepository) HealthCheck(ctx context.Context) error {
	return r.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(accessCodesBucket) == nil {
			return fmt.Errorf("bolt health check failed: bucket %s missing", accessCodesBucket)
		}
		return nil
	})
}

func decodeAccessCode(raw []byte) (*models.AccessCode, error) {
	if raw == nil {
		return nil, nil
	}
	var code models.AccessCode
	if err := json.Unmarshal(raw, &code); err != nil {
		return nil, fmt.Errorf("failed to decode access code: %w", err)
	}
	return &code, nil
}

func putAccessCode(b *bolt.Bucket, code *models.AccessCode) error {
	raw, err := json.Marshal(code)
	if err != nil {
		return fmt.Errorf("failed to encode access code: %w", err)
	}
	return b.Put([]byte(code.Code), raw)
}
