// Package cache provides the edit cache sitting between the pipeline and the
// aligner: a keyed store of aligned edit lists so that re-runs over the same
// inputs never invoke the aligner again.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/hyperjump/awase/internal/m2"
)

// Store persists aligned edit entries under a backend-specific key.
// Put must be write-then-publish: a concurrently reading Get never observes
// a partially written value. Writing the same key twice is allowed only with
// value-identical content, which holds when keys are content-derived.
type Store interface {
	// Key derives the cache key for a (system, source file, hypothesis file)
	// triple. Content-addressed backends hash the texts; the sidecar backend
	// keys by system name, in which case staleness after editing inputs is
	// the caller's responsibility.
	Key(system string, source, hypothesis []string) string
	Get(ctx context.Context, key string) ([]m2.Entry, bool, error)
	Put(ctx context.Context, key string, entries []m2.Entry) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// ContentKey returns a deterministic digest of the (source, hypothesis) text
// pair. Same texts always yield the same key regardless of file names.
func ContentKey(source, hypothesis []string) string {
	h := sha256.New()
	for _, line := range source {
		h.Write([]byte("s:" + line + "\n"))
	}
	for _, line := range hypothesis {
		h.Write([]byte("h:" + line + "\n"))
	}
	return hex.EncodeToString(h.Sum(nil))
}
