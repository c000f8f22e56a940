package memory

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"tshirt-designer/core"
)

// memStore keeps design records in memory, keyed by owner and record id.
type memStore struct {
	mu      sync.RWMutex
	records map[string]map[string]*core.Record
}

// NewStore creates a new in-memory document store.
func NewStore() *memStore {
	return &memStore{records: make(map[string]map[string]*core.Record)}
}

func (s *memStore) QueryByHash(ctx context.Context, ownerID, hash string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for id, rec := range s.records[ownerID] {
		if rec.Hash == hash {
			return id, true, nil
		}
	}
	return "", false, nil
}

func (s *memStore) Write(ctx context.Context, ownerID string, design core.DesignSet, hash string) (string, error) {
	if ownerID == "" {
		return "", fmt.Errorf("owner id cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := ulid.Make().String()
	owned, ok := s.records[ownerID]
	if !ok {
		owned = make(map[string]*core.Record)
		s.records[ownerID] = owned
	}
	owned[id] = &core.Record{
		ID:        id,
		OwnerID:   ownerID,
		Hash:      hash,
		Design:    design.Clone(),
		CreatedAt: time.Now(),
	}

	logrus.WithFields(logrus.Fields{"owner_id": ownerID, "record_id": id}).Info("Design record created successfully")
	return id, nil
}

func (s *memStore) ListByOwner(ctx context.Context, ownerID string) ([]*core.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owned := s.records[ownerID]
	records := make([]*core.Record, 0, len(owned))
	for _, rec := range owned {
		cp := *rec
		cp.Design = rec.Design.Clone()
		records = append(records, &cp)
	}
	core.SortNewestFirst(records)

	logrus.WithField("owner_id", ownerID).Infof("Listed %d design records", len(records))
	return records, nil
}

func (s *memStore) Get(ctx context.Context, ownerID, id string) (*core.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := logrus.WithFields(logrus.Fields{"owner_id": ownerID, "record_id": id})
	rec, ok := s.records[ownerID][id]
	if !ok {
		log.Warn("Design record not found for owner")
		return nil, core.E(core.NotFound, "get record", fmt.Errorf("record %s not found for owner %s", id, ownerID))
	}
	cp := *rec
	cp.Design = rec.Design.Clone()
	return &cp, nil
}

func (s *memStore) Delete(ctx context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := logrus.WithFields(logrus.Fields{"owner_id": ownerID, "record_id": id})
	if _, ok := s.records[ownerID][id]; !ok {
		log.Warn("Design record not found for deletion")
		return core.E(core.NotFound, "delete record", fmt.Errorf("record %s not found for owner %s", id, ownerID))
	}
	delete(s.records[ownerID], id)
	log.Info("Design record deleted successfully")
	return nil
}

type blob struct {
	data     []byte
	mimeType string
}

// AssetStore is an in-memory AssetUploader. Uploaded assets are addressable
// as mem://assets/<ulid>.
type AssetStore struct {
	mu     sync.RWMutex
	assets map[string]blob
}

const AssetScheme = "mem://assets/"

func NewAssetStore() *AssetStore {
	return &AssetStore{assets: make(map[string]blob)}
}

func (s *AssetStore) Upload(ctx context.Context, data []byte, mimeType string) (string, error) {
	url := AssetScheme + ulid.Make().String()

	s.mu.Lock()
	s.assets[url] = blob{data: bytes.Clone(data), mimeType: mimeType}
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{"url": url, "data_length": len(data)}).Info("Asset uploaded successfully")
	return url, nil
}

// Open returns an uploaded asset.
func (s *AssetStore) Open(url string) ([]byte, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.assets[url]
	return b.data, b.mimeType, ok
}

// LocalStore is a process-local key/value LocalStore.
type LocalStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewLocalStore() *LocalStore {
	return &LocalStore{data: make(map[string][]byte)}
}

func (s *LocalStore) Put(key string, data []byte) error {
	s.mu.Lock()
	s.data[key] = bytes.Clone(data)
	s.mu.Unlock()
	return nil
}

func (s *LocalStore) Get(key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.data[key]
	return d, ok, nil
}
