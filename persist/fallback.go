package persist

import (
	"sync"

	"github.com/sirupsen/logrus"

	"tshirt-designer/core"
)

// Fallback wraps a LocalStore and degrades to memory-only operation the
// first time the underlying store fails. It never returns an error.
type Fallback struct {
	mu       sync.Mutex
	store    core.LocalStore
	degraded bool
	memory   map[string][]byte
}

// NewFallback wraps store. A nil store starts out degraded.
func NewFallback(store core.LocalStore) *Fallback {
	return &Fallback{
		store:    store,
		degraded: store == nil,
		memory:   make(map[string][]byte),
	}
}

// Put stores data under key.
func (f *Fallback) Put(key string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.memory[key] = data
	if f.degraded {
		return
	}
	if err := f.store.Put(key, data); err != nil {
		f.degrade("put", key, err)
	}
}

// Get returns the data stored under key.
func (f *Fallback) Get(key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.degraded {
		data, ok, err := f.store.Get(key)
		if err == nil {
			return data, ok
		}
		f.degrade("get", key, err)
	}
	data, ok := f.memory[key]
	return data, ok
}

// Degraded reports whether the underlying store has been given up on.
func (f *Fallback) Degraded() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.degraded
}

func (f *Fallback) degrade(op, key string, err error) {
	f.degraded = true
	logrus.WithFields(logrus.Fields{
		"op":    op,
		"key":   key,
		"error": core.E(core.StorageUnavailable, "local fallback", err),
	}).Warn("Local fallback store unavailable, continuing in memory only")
}
