package ingest

import (
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"tshirt-designer/core"
)

type localBlob struct {
	data     []byte
	mimeType string
}

// LocalRefs holds the bytes behind transient local references so they can be
// displayed before they are uploaded. Every reference must be released once
// it is superseded; Len reports how many are still held.
type LocalRefs struct {
	mu    sync.RWMutex
	blobs map[string]localBlob
}

func NewLocalRefs() *LocalRefs {
	return &LocalRefs{blobs: make(map[string]localBlob)}
}

// Create registers data and returns a new local reference URL.
func (r *LocalRefs) Create(data []byte, mimeType string) string {
	ref := core.LocalRefScheme + ulid.Make().String()

	r.mu.Lock()
	r.blobs[ref] = localBlob{data: data, mimeType: mimeType}
	r.mu.Unlock()

	return ref
}

// Resolve returns the bytes behind a live local reference.
func (r *LocalRefs) Resolve(ref string) ([]byte, string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.blobs[ref]
	return b.data, b.mimeType, ok
}

// Release drops the bytes behind ref. Releasing a durable or unknown
// reference is a no-op.
func (r *LocalRefs) Release(ref string) {
	if !strings.HasPrefix(ref, core.LocalRefScheme) {
		return
	}

	r.mu.Lock()
	_, ok := r.blobs[ref]
	delete(r.blobs, ref)
	r.mu.Unlock()

	if ok {
		logrus.WithField("ref", ref).Debug("Released local image reference")
	}
}

// Len returns the number of live local references.
func (r *LocalRefs) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.blobs)
}
