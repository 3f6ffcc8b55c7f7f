// Package bolt stores snapshots and transcripts in an embedded bbolt file.
package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aretw0/parley/pkg/domain"
	bolt "go.etcd.io/bbolt"
)

var (
	sessionsBucket    = []byte("sessions")
	transcriptsBucket = []byte("transcripts")
)

// DB wraps one bbolt file. It implements ports.SnapshotStore and, through
// Transcript, ports.TranscriptStore.
type DB struct {
	db *bolt.DB
}

// Open opens or creates the database file.
func Open(filename string) (*DB, error) {
	db, err := bolt.Open(filename, 0o644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{sessionsBucket, transcriptsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}
	return &DB{db: db}, nil
}

// Close closes the database file.
func (d *DB) Close() error {
	return d.db.Close()
}

// Save persists the snapshot.
func (d *DB) Save(ctx context.Context, sessionID string, snap *domain.Snapshot) error {
	js, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionsBucket).Put([]byte(sessionID), js)
	})
}

// Load retrieves the snapshot.
func (d *DB) Load(ctx context.Context, sessionID string) (*domain.Snapshot, error) {
	var snap *domain.Snapshot
	err := d.db.View(func(tx *bolt.Tx) error {
		bs := tx.Bucket(sessionsBucket).Get([]byte(sessionID))
		if bs == nil {
			return domain.ErrSessionNotFound
		}
		// bs is only valid inside the transaction; Unmarshal copies it.
		snap = &domain.Snapshot{}
		return json.Unmarshal(bs, snap)
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Delete removes the snapshot.
func (d *DB) Delete(ctx context.Context, sessionID string) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionsBucket).Delete([]byte(sessionID))
	})
}

// List returns the stored sessions in key order.
func (d *DB) List(ctx context.Context) ([]string, error) {
	ids := make([]string, 0, 32)
	err := d.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(sessionsBucket).Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			ids = append(ids, string(k))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Transcript returns a view of the database implementing ports.TranscriptStore.
func (d *DB) Transcript() *Transcript {
	return &Transcript{db: d.db}
}

// Transcript keeps one nested bucket per session keyed by big-endian sequence.
type Transcript struct {
	db *bolt.DB
}

func seqKey(n uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, n)
	return k
}

// Append records one exchange.
func (t *Transcript) Append(ctx context.Context, ex domain.Exchange) error {
	return t.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(transcriptsBucket).CreateBucketIfNotExists([]byte(ex.SessionID))
		if err != nil {
			return err
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		ex.Seq = int(seq)
		js, err := json.Marshal(ex)
		if err != nil {
			return err
		}
		return b.Put(seqKey(seq), js)
	})
}

// Transcript returns the exchanges of a session in order.
func (t *Transcript) Transcript(ctx context.Context, sessionID string) ([]domain.Exchange, error) {
	var out []domain.Exchange
	err := t.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(transcriptsBucket).Bucket([]byte(sessionID))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var ex domain.Exchange
			if err := json.Unmarshal(v, &ex); err != nil {
				return err
			}
			out = append(out, ex)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Forget deletes the transcript of a session.
func (t *Transcript) Forget(ctx context.Context, sessionID string) error {
	return t.db.Update(func(tx *bolt.Tx) error {
		err := tx.Bucket(transcriptsBucket).DeleteBucket([]byte(sessionID))
		if err == bolt.ErrBucketNotFound {
			return nil
		}
		return err
	})
}
