package offline

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

// ErrInsufficientStorage indicates the quota is exhausted and cleanup
// could not free enough space.
var ErrInsufficientStorage = errors.New("insufficient storage")

var (
	bucketRecords = []byte("records")
	bucketAudio   = []byte("audio")
)

// QuotaChangedFunc is notified after every mutation with the recomputed
// quota.
type QuotaChangedFunc func(StorageQuota)

// Store is a persistent track-id -> audio bytes store over BoltDB with a
// quota tracker. All mutations funnel through Put/Delete, which serialize
// quota recomputation internally; the download coordinator and the evictor
// both rely on that.
type Store struct {
	db     *bolt.DB
	source QuotaSource

	mu       sync.Mutex
	quota    StorageQuota
	onChange QuotaChangedFunc
}

// Open opens (creating if needed) the offline store at path.
func Open(path string, source QuotaSource) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open offline store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketRecords, bucketAudio} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	s := &Store{db: db, source: source}
	if _, err := s.RefreshQuota(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OnQuotaChanged registers the quota notification callback. One callback;
// the engine owns the fan-out.
func (s *Store) OnQuotaChanged(fn QuotaChangedFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// Put stores the audio bytes and their record in one transaction.
// SizeBytes is forced to the actual payload length.
func (s *Store) Put(rec Record, data []byte) error {
	rec.SizeBytes = int64(len(data))
	encoded, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketRecords).Put([]byte(rec.TrackID), encoded); err != nil {
			return err
		}
		return tx.Bucket(bucketAudio).Put([]byte(rec.TrackID), data)
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", rec.TrackID, err)
	}

	s.refreshAndNotify()
	return nil
}

// Get returns the audio bytes for a track, or nil when absent. Absence is
// not an error.
func (s *Store) Get(trackID string) ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketAudio).Get([]byte(trackID)); v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", trackID, err)
	}
	return data, nil
}

// GetRecord returns the record for a track, or nil when absent.
func (s *Store) GetRecord(trackID string) (*Record, error) {
	var rec *Record
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketRecords).Get([]byte(trackID))
		if v == nil {
			return nil
		}
		rec = &Record{}
		return json.Unmarshal(v, rec)
	})
	if err != nil {
		return nil, fmt.Errorf("get record %s: %w", trackID, err)
	}
	return rec, nil
}

// Delete removes a track's record and bytes. Deleting a missing id is a
// no-op, not an error.
func (s *Store) Delete(trackID string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketRecords).Delete([]byte(trackID)); err != nil {
			return err
		}
		return tx.Bucket(bucketAudio).Delete([]byte(trackID))
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", trackID, err)
	}

	s.refreshAndNotify()
	return nil
}

// ListAll returns every record in the store.
func (s *Store) ListAll() ([]Record, error) {
	var records []Record
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRecords).ForEach(func(_, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			records = append(records, rec)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return records, nil
}

// HasAudio reports whether the raw bytes for a track are present. A record
// without bytes is an orphan for eviction purposes.
func (s *Store) HasAudio(trackID string) (bool, error) {
	var present bool
	err := s.db.View(func(tx *bolt.Tx) error {
		present = tx.Bucket(bucketAudio).Get([]byte(trackID)) != nil
		return nil
	})
	return present, err
}

// Quota returns the last computed quota.
func (s *Store) Quota() StorageQuota {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quota
}

// RefreshQuota recomputes used bytes from the records and re-reads the
// total from the quota source.
func (s *Store) RefreshQuota() (StorageQuota, error) {
	var used int64
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRecords).ForEach(func(_, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			used += rec.SizeBytes
			return nil
		})
	})
	if err != nil {
		return StorageQuota{}, fmt.Errorf("refresh quota: %w", err)
	}

	total, err := s.source.TotalBytes()
	if err != nil {
		return StorageQuota{}, fmt.Errorf("quota source: %w", err)
	}

	s.mu.Lock()
	s.quota = StorageQuota{UsedBytes: used, TotalBytes: total}
	q := s.quota
	s.mu.Unlock()
	return q, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) refreshAndNotify() {
	q, err := s.RefreshQuota()
	if err != nil {
		return
	}
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn(q)
	}
}
