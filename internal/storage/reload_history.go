package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

// maxReloadHistory caps how many reload outcomes are retained.
const maxReloadHistory = 100

// ReloadEvent is one recorded reload outcome.
type ReloadEvent struct {
	At      time.Time `json:"at"`
	Status  string    `json:"status"`
	Error   string    `json:"error,omitempty"`
	Trigger string    `json:"trigger"`
}

// RecordReload appends a reload outcome, trimming history beyond the
// cap.
func (s *Store) RecordReload(event ReloadEvent) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(reloadsBucket))

		data, err := json.Marshal(event)
		if err != nil {
			return err
		}
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		if err := bucket.Put(key, data); err != nil {
			return err
		}

		// Trim oldest entries past the cap.
		var keys [][]byte
		cursor := bucket.Cursor()
		for k, _ := cursor.First(); k != nil; k, _ = cursor.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		for i := 0; i < len(keys)-maxReloadHistory; i++ {
			if err := bucket.Delete(keys[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReloadHistory returns the recorded outcomes, oldest first.
func (s *Store) ReloadHistory() ([]ReloadEvent, error) {
	var events []ReloadEvent
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(reloadsBucket))
		return bucket.ForEach(func(_, v []byte) error {
			var event ReloadEvent
			if err := json.Unmarshal(v, &event); err != nil {
				return fmt.Errorf("corrupt reload event: %w", err)
			}
			events = append(events, event)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}
