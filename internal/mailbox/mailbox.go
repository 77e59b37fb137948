// Package mailbox stores scheduler instructions for nodes on disk until a
// heartbeat acknowledgement carries them out.
package mailbox

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	bolt "go.etcd.io/bbolt"

	"nyxmeta/internal/meta"
)

const (
	fileName     = "mailbox.db"
	lockName     = "flock"
	rootBucket   = "mailbox"
	dirPerm      = 0o755
	databasePerm = 0o600
)

// ErrLocked indicates another process owns the mailbox directory.
var ErrLocked = errors.New("mailbox: directory is in use by another process")

// Mailbox is a durable meta.InstructionQueue backed by bbolt. Each peer owns
// a nested bucket keyed by a big-endian sequence so cursor order is enqueue order.
type Mailbox struct {
	dir  string
	db   *bolt.DB
	lock *flock.Flock
}

var _ meta.InstructionQueue = (*Mailbox)(nil)

// Open opens or creates the mailbox in dir.
func Open(dir string) (*Mailbox, error) {
	if dir == "" {
		return nil, fmt.Errorf("mailbox directory is empty")
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, err
	}
	lock := flock.New(filepath.Join(dir, lockName))
	held, err := lock.TryLock()
	if err != nil {
		return nil, err
	}
	if !held {
		return nil, ErrLocked
	}
	db, err := bolt.Open(filepath.Join(dir, fileName), databasePerm, &bolt.Options{Timeout: 0})
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(rootBucket))
		return err
	}); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, err
	}
	return &Mailbox{dir: dir, db: db, lock: lock}, nil
}

func (m *Mailbox) Dir() string {
	return m.dir
}

func peerKey(peerID uint64) []byte {
	var key [8]byte
	binary.BigEndian.PutUint64(key[:], peerID)
	return key[:]
}

func (m *Mailbox) Enqueue(peerID uint64, payloads ...meta.Instruction) error {
	if len(payloads) == 0 {
		return nil
	}
	return m.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket([]byte(rootBucket))
		if root == nil {
			return fmt.Errorf("bucket %s missing", rootBucket)
		}
		bucket, err := root.CreateBucketIfNotExists(peerKey(peerID))
		if err != nil {
			return err
		}
		for _, p := range payloads {
			seq, err := bucket.NextSequence()
			if err != nil {
				return err
			}
			if err := bucket.Put(peerKey(seq), p); err != nil {
				return err
			}
		}
		return nil
	})
}

func (m *Mailbox) Drain(peerID uint64, max int) ([]meta.Instruction, error) {
	var out []meta.Instruction
	err := m.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket([]byte(rootBucket))
		if root == nil {
			return fmt.Errorf("bucket %s missing", rootBucket)
		}
		bucket := root.Bucket(peerKey(peerID))
		if bucket == nil {
			return nil
		}
		var keys [][]byte
		c := bucket.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if max > 0 && len(out) == max {
				break
			}
			// Values are only valid for the life of the transaction.
			out = append(out, append(meta.Instruction(nil), v...))
			keys = append(keys, append([]byte(nil), k...))
		}
		for _, k := range keys {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (m *Mailbox) Pending(peerID uint64) (int, error) {
	n := 0
	err := m.db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket([]byte(rootBucket))
		if root == nil {
			return nil
		}
		bucket := root.Bucket(peerKey(peerID))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(_, _ []byte) error {
			n++
			return nil
		})
	})
	return n, err
}

// Close releases the database and the directory lock.
func (m *Mailbox) Close() error {
	err := m.db.Close()
	if uerr := m.lock.Unlock(); err == nil {
		err = uerr
	}
	return err
}
