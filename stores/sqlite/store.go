package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"tshirt-designer/core"
)

type sqliteStore struct {
	db *sql.DB
}

// NewStore creates a new SQLite-based document store.
func NewStore(dataSourceName string) *sqliteStore {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		logrus.Fatalf("failed to open sqlite database: %v", err)
	}

	designTableStmt := `
	CREATE TABLE IF NOT EXISTS designs (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		hash TEXT NOT NULL,
		data BLOB NOT NULL,
		created_at INTEGER NOT NULL
	);`
	if _, err = db.Exec(designTableStmt); err != nil {
		logrus.Fatalf("failed to create designs table: %v", err)
	}
	if _, err = db.Exec(`CREATE INDEX IF NOT EXISTS designs_owner_hash ON designs (owner_id, hash);`); err != nil {
		logrus.Fatalf("failed to create designs index: %v", err)
	}

	return &sqliteStore{db}
}

// Close releases the database handle.
func (s *sqliteStore) Close() error {
	return s.db.Close()
}

func (s *sqliteStore) QueryByHash(ctx context.Context, ownerID, hash string) (string, bool, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM designs WHERE owner_id = ? AND hash = ? ORDER BY created_at DESC LIMIT 1",
		ownerID, hash).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		logrus.WithError(err).WithField("owner_id", ownerID).Error("Failed to query designs by hash")
		return "", false, err
	}
	return id, true, nil
}

func (s *sqliteStore) Write(ctx context.Context, ownerID string, design core.DesignSet, hash string) (string, error) {
	id := ulid.Make().String()
	log := logrus.WithFields(logrus.Fields{"owner_id": ownerID, "record_id": id})

	data, err := json.Marshal(design)
	if err != nil {
		log.WithError(err).Error("Failed to marshal design")
		return "", err
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO designs (id, owner_id, hash, data, created_at) VALUES (?, ?, ?, ?, ?)",
		id, ownerID, hash, data, time.Now().UnixNano())
	if err != nil {
		log.WithError(err).Error("Failed to create design record")
		return "", err
	}
	log.WithField("data_length", len(data)).Info("Design record created successfully")
	return id, nil
}

func (s *sqliteStore) ListByOwner(ctx context.Context, ownerID string) ([]*core.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, hash, data, created_at FROM designs WHERE owner_id = ? ORDER BY created_at DESC, id DESC",
		ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []*core.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		rec.OwnerID = ownerID
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	logrus.WithField("owner_id", ownerID).Infof("Listed %d design records", len(records))
	return records, nil
}

func (s *sqliteStore) Get(ctx context.Context, ownerID, id string) (*core.Record, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, hash, data, created_at FROM designs WHERE owner_id = ? AND id = ?", ownerID, id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.E(core.NotFound, "get record", fmt.Errorf("record %s not found", id))
		}
		return nil, err
	}
	rec.OwnerID = ownerID
	return rec, nil
}

func (s *sqliteStore) Delete(ctx context.Context, ownerID, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM designs WHERE owner_id = ? AND id = ?", ownerID, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return core.E(core.NotFound, "delete record", fmt.Errorf("record %s not found", id))
	}
	logrus.WithFields(logrus.Fields{"owner_id": ownerID, "record_id": id}).Info("Design record deleted successfully")
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*core.Record, error) {
	var (
		rec     core.Record
		data    []byte
		created int64
	)
	if err := row.Scan(&rec.ID, &rec.Hash, &data, &created); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &rec.Design); err != nil {
		return nil, fmt.Errorf("record %s: %w", rec.ID, err)
	}
	rec.CreatedAt = time.Unix(0, created).UTC()
	return &rec, nil
}
