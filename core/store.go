package core

import (
	"context"
	"sort"
)

type (
	// DocumentStore persists composite design records. All operations are
	// scoped to an owner.
	DocumentStore interface {
		// QueryByHash returns the id of an existing record with the same owner
		// and design hash. ok is false when there is none.
		QueryByHash(ctx context.Context, ownerID, hash string) (id string, ok bool, err error)

		// Write stores a new record and returns its id.
		Write(ctx context.Context, ownerID string, design DesignSet, hash string) (string, error)

		// ListByOwner returns the owner's records, newest first.
		ListByOwner(ctx context.Context, ownerID string) ([]*Record, error)

		// Get returns a single record, ensuring it belongs to the owner.
		Get(ctx context.Context, ownerID, id string) (*Record, error)

		// Delete removes a record, ensuring it belongs to the owner.
		Delete(ctx context.Context, ownerID, id string) error
	}

	// AssetUploader stores image bytes and returns a durable URL for them.
	AssetUploader interface {
		Upload(ctx context.Context, data []byte, mimeType string) (string, error)
	}

	// LocalStore is a small key/value surface used as a durable fallback
	// for the last saved design. ok is false when the key is absent.
	LocalStore interface {
		Put(key string, data []byte) error
		Get(key string) (data []byte, ok bool, err error)
	}
)

// SortNewestFirst orders records by creation time, newest first. Records
// created in the same instant fall back to their ULID, which is time ordered.
func SortNewestFirst(records []*Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.After(records[j].CreatedAt)
		}
		return records[i].ID > records[j].ID
	})
}
