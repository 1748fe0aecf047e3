package checkpoint

import (
	"bytes"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/op/go-logging"

	bolt "go.etcd.io/bbolt"
)

func init() {
	logging.SetLevel(logging.ERROR, "checkpoint")
}

func TestKey(tst *testing.T) {
	k1 := Key("((a,b),c);", "ACGT", "JC69")
	k2 := Key("((a,b),c);", "ACGT", "JC69")
	if !bytes.Equal(k1, k2) {
		tst.Error("Key is not deterministic")
	}

	if bytes.Equal(k1, Key("((a,c),b);", "ACGT", "JC69")) {
		tst.Error("Different trees share a key")
	}
	if bytes.Equal(k1, Key("((a,b),c);", "ACGA", "JC69")) {
		tst.Error("Different alignments share a key")
	}
	if bytes.Equal(k1, Key("((a,b),c);", "ACGT", "K80(kappa=4)")) {
		tst.Error("Different models share a key")
	}
}

func TestRoundtrip(tst *testing.T) {
	db, err := bolt.Open(filepath.Join(tst.TempDir(), "checkpoint.db"), 0644, nil)
	if err != nil {
		tst.Fatal("Error opening database:", err)
	}
	defer db.Close()

	s := NewStore(db)
	key := Key("((a,b),c);", "ACGT", "JC69")

	res, err := s.Get(key)
	if err != nil {
		tst.Fatal("Error reading empty store:", err)
	}
	if res != nil {
		tst.Fatal("Expected no result, got", res)
	}

	in := &Result{
		Model:          "JC69",
		LogLikelihood:  -1.775679,
		SiteLikelihood: []float64{-1.775679},
		Time:           time.Now(),
	}
	if err = s.Save(key, in); err != nil {
		tst.Fatal("Error saving result:", err)
	}

	res, err = s.Get(key)
	if err != nil {
		tst.Fatal("Error reading result:", err)
	}
	if res == nil {
		tst.Fatal("Expected a cached result")
	}
	if res.Model != in.Model ||
		math.Abs(res.LogLikelihood-in.LogLikelihood) > 1e-12 ||
		len(res.SiteLikelihood) != 1 {
		tst.Error("Cached result differs:", res)
	}

	if res, err = s.Get(Key("other", "ACGT", "JC69")); err != nil || res != nil {
		tst.Error("Expected no result for a different key, got", res, err)
	}
}

func TestNilStore(tst *testing.T) {
	s := NewStore(nil)
	key := Key("((a,b),c);", "ACGT", "JC69")

	if err := s.Save(key, &Result{Model: "JC69"}); err != nil {
		tst.Error("Error saving to a disabled store:", err)
	}
	res, err := s.Get(key)
	if err != nil || res != nil {
		tst.Error("Expected a disabled store to stay empty, got", res, err)
	}
}
