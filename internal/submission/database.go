package submission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/zombor/id-capture/internal/document"
)

const bucketName = "submissions"

// ErrNotFound is returned for an unknown submission ID
var ErrNotFound = errors.New("submission not found")

// DB defines the interface for submission storage
type DB interface {
	// SaveSubmission stores a submission, replacing one with the same ID
	SaveSubmission(sub *document.Submission) error

	// GetSubmission retrieves a submission by ID
	GetSubmission(id string) (*document.Submission, error)

	// ListSubmissions returns all submissions, newest first
	ListSubmissions() ([]*document.Submission, error)

	// DeleteSubmission removes a submission
	DeleteSubmission(id string) error

	// Close closes the database connection
	Close() error
}

// BoltDB implements DB using BoltDB. Only field values are stored; captured
// images never reach it.
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB opens or creates the database at path
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// Submit stores an accepted submission. It satisfies session.Submitter.
func (b *BoltDB) Submit(ctx context.Context, sub document.Submission) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if sub.ID == "" {
		return fmt.Errorf("submission id is required")
	}
	return b.SaveSubmission(&sub)
}

// SaveSubmission stores a submission
func (b *BoltDB) SaveSubmission(sub *document.Submission) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		data, err := json.Marshal(sub)
		if err != nil {
			return fmt.Errorf("marshaling submission: %w", err)
		}
		return bucket.Put([]byte(sub.ID), data)
	})
}

// GetSubmission retrieves a submission by ID
func (b *BoltDB) GetSubmission(id string) (*document.Submission, error) {
	var sub *document.Submission
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucketName)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &sub)
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// ListSubmissions returns all submissions, newest first
func (b *BoltDB) ListSubmissions() ([]*document.Submission, error) {
	subs := make([]*document.Submission, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).ForEach(func(k, v []byte) error {
			var sub document.Submission
			if err := json.Unmarshal(v, &sub); err != nil {
				return fmt.Errorf("unmarshaling submission %s: %w", k, err)
			}
			subs = append(subs, &sub)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(subs, func(i, j int) bool {
		return subs[i].SubmittedAt.After(subs[j].SubmittedAt)
	})
	return subs, nil
}

// DeleteSubmission removes a submission
func (b *BoltDB) DeleteSubmission(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		if bucket.Get([]byte(id)) == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return bucket.Delete([]byte(id))
	})
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
