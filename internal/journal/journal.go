// Package journal keeps a persistent record of the privileged operations the
// daemon has completed. Entries are CBOR-encoded and stored in a bbolt
// bucket under auto-incremented keys, so iteration order is append order.
package journal

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fxamacker/cbor/v2"
	bolt "go.etcd.io/bbolt"
)

const entriesBucket = "operations"

// Outcome values.
const (
	OutcomeSuccess     = "success"
	OutcomeFailure     = "failure"
	OutcomeInvalid     = "invalid"
	OutcomeUnsupported = "unsupported"
)

// Entry is one journaled operation.
type Entry struct {
	ID         uint64    `cbor:"id"`
	Time       time.Time `cbor:"time"`
	ConnID     string    `cbor:"conn_id"`
	PeerUID    uint32    `cbor:"peer_uid"`
	Request    string    `cbor:"request"`
	Paths      []string  `cbor:"paths,omitempty"`
	Mode       uint32    `cbor:"mode,omitempty"`
	Handle     *int32    `cbor:"handle,omitempty"`
	Outcome    string    `cbor:"outcome"`
	Error      string    `cbor:"error,omitempty"`
	DurationMs int64     `cbor:"duration_ms"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	encMode, err = opts.EncMode()
	if err != nil {
		panic("journal: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("journal: CBOR decoder initialization failed: " + err.Error())
	}
}

// Journal is the persistent operation log.
type Journal struct {
	db *bolt.DB
}

// Open opens or creates the journal database at path.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(entriesBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Journal{db: db}, nil
}

// Append stores e, assigning its ID (and Time, if unset).
func (j *Journal) Append(e *Entry) error {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	return j.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(entriesBucket))

		id, err := b.NextSequence()
		if err != nil {
			return err
		}
		e.ID = id

		data, err := encMode.Marshal(e)
		if err != nil {
			return err
		}
		return b.Put(itob(id), data)
	})
}

// Recent returns up to limit entries, newest first. Entries that fail to
// decode are skipped.
func (j *Journal) Recent(limit int) ([]*Entry, error) {
	var entries []*Entry

	err := j.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(entriesBucket)).Cursor()
		for k, v := c.Last(); k != nil && len(entries) < limit; k, v = c.Prev() {
			var e Entry
			if err := decMode.Unmarshal(v, &e); err != nil {
				continue
			}
			entries = append(entries, &e)
		}
		return nil
	})

	return entries, err
}

// Count returns the number of stored entries.
func (j *Journal) Count() (int, error) {
	var count int
	err := j.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket([]byte(entriesBucket)).Stats().KeyN
		return nil
	})
	return count, err
}

// PruneBefore deletes entries recorded before cutoff and returns how many
// were removed. Undecodable entries are removed as well.
func (j *Journal) PruneBefore(cutoff time.Time) (int, error) {
	var removed int
	err := j.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(entriesBucket))

		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var e Entry
			if err := decMode.Unmarshal(v, &e); err != nil || e.Time.Before(cutoff) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	return removed, err
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// itob converts uint64 to big-endian bytes for ordered keys
func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
