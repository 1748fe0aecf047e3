// Package checkpoint caches finished likelihood computations in a
// bolt database, keyed by a digest of the inputs.
package checkpoint

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/op/go-logging"

	bolt "go.etcd.io/bbolt"
)

// log is the global logging variable.
var log = logging.MustGetLogger("checkpoint")

// main is the key name for all results.
var main = []byte("main")

// Result stores a finished computation.
type Result struct {
	Model          string
	LogLikelihood  float64
	SiteLikelihood []float64
	Time           time.Time
}

// Store reads and writes cached results.
type Store struct {
	db *bolt.DB
}

// NewStore creates a Store on an open bolt database. A nil database
// disables the store; Save and Get become no-ops.
func NewStore(db *bolt.DB) *Store {
	return &Store{db: db}
}

// Key computes the digest identifying a computation: the tree, the
// alignment and the model description, in a canonical text form.
func Key(treeStr, aliStr, modelStr string) []byte {
	h := sha256.New()
	fmt.Fprintf(h, "tree=%s\nali=%s\nmodel=%s\n", treeStr, aliStr, modelStr)
	return h.Sum(nil)
}

// Save stores a result under a key.
func (s *Store) Save(key []byte, res *Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		log.Error("Error serializing result", err)
		return err
	}
	err = saveData(s.db, key, data)
	if err != nil {
		log.Error("Error saving result", err)
	}
	return err
}

// Get returns the cached result for a key, or nil if there is none.
func (s *Store) Get(key []byte) (*Result, error) {
	b, err := loadData(s.db, key)
	if err != nil || b == nil {
		return nil, err
	}

	var res *Result
	if err = json.Unmarshal(b, &res); err != nil {
		return nil, err
	}
	if res != nil {
		log.Noticef("Found cached result (lnL=%v, computed %v)",
			res.LogLikelihood, res.Time.Format(time.RFC3339))
	}
	return res, nil
}

// saveData saves values in the bolt database.
func saveData(db *bolt.DB, key []byte, data []byte) error {
	if db == nil {
		return nil
	}
	return db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(main)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
}

// loadData loads data from the bolt database.
func loadData(db *bolt.DB, key []byte) ([]byte, error) {
	var data []byte
	if db == nil {
		return nil, nil
	}
	err := db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(main)
		if b == nil {
			return nil
		}

		v := b.Get(key)
		if v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}
