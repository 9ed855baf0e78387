package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"
)

const identityKey = "instance"

// Identity is the stable identity of one server installation,
// generated on first start and reused afterwards.
type Identity struct {
	InstanceID string    `json:"instance_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// ShortID returns the first eight characters for display.
func (i Identity) ShortID() string {
	if len(i.InstanceID) < 8 {
		return i.InstanceID
	}
	return i.InstanceID[:8]
}

// Identity loads the instance identity, creating it on first use.
func (s *Store) Identity() (Identity, error) {
	var identity Identity

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(identityBucket))
		if data := bucket.Get([]byte(identityKey)); data != nil {
			return json.Unmarshal(data, &identity)
		}

		identity = Identity{
			InstanceID: uuid.NewString(),
			CreatedAt:  time.Now().UTC(),
		}
		data, err := json.Marshal(identity)
		if err != nil {
			return err
		}
		s.logger.Info("generated new instance identity",
			zap.String("instance_id", identity.ShortID()))
		return bucket.Put([]byte(identityKey), data)
	})
	if err != nil {
		return Identity{}, fmt.Errorf("load instance identity: %w", err)
	}
	return identity, nil
}
