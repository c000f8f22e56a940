package filesystem

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/h2non/filetype"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"tshirt-designer/core"
)

const recordExt = ".json"

// fsStore keeps one JSON file per record under <basePath>/<ownerID>/.
type fsStore struct {
	basePath string
}

// NewStore creates a new filesystem-based document store.
func NewStore(basePath string) *fsStore {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		logrus.Fatalf("failed to create base directory: %v", err)
	}
	return &fsStore{basePath: basePath}
}

// checkName rejects ids that are not a single path element.
func checkName(kind, name string) error {
	if name == "" || name == "." || name == ".." || path.Base(name) != name || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid %s %q", kind, name)
	}
	return nil
}

func (s *fsStore) ownerPath(ownerID string) (string, error) {
	if err := checkName("owner id", ownerID); err != nil {
		return "", err
	}
	return filepath.Join(s.basePath, ownerID), nil
}

func (s *fsStore) recordPath(ownerID, id string) (string, error) {
	dir, err := s.ownerPath(ownerID)
	if err != nil {
		return "", err
	}
	if err := checkName("record id", id); err != nil {
		return "", err
	}
	return filepath.Join(dir, id+recordExt), nil
}

func (s *fsStore) QueryByHash(ctx context.Context, ownerID, hash string) (string, bool, error) {
	records, err := s.ListByOwner(ctx, ownerID)
	if err != nil {
		return "", false, err
	}
	for _, rec := range records {
		if rec.Hash == hash {
			return rec.ID, true, nil
		}
	}
	return "", false, nil
}

func (s *fsStore) Write(ctx context.Context, ownerID string, design core.DesignSet, hash string) (string, error) {
	id := ulid.Make().String()
	filePath, err := s.recordPath(ownerID, id)
	if err != nil {
		return "", err
	}
	log := logrus.WithFields(logrus.Fields{"owner_id": ownerID, "record_id": id, "path": filePath})

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		log.WithError(err).Error("Failed to create owner directory")
		return "", err
	}

	rec := core.Record{ID: id, Hash: hash, Design: design, CreatedAt: time.Now().UTC()}
	data, err := json.Marshal(rec)
	if err != nil {
		log.WithError(err).Error("Failed to marshal design record")
		return "", err
	}
	if err := writeFileAtomic(filePath, data); err != nil {
		log.WithError(err).Error("Failed to write design record")
		return "", err
	}

	log.Info("Design record created successfully")
	return id, nil
}

func (s *fsStore) ListByOwner(ctx context.Context, ownerID string) ([]*core.Record, error) {
	dir, err := s.ownerPath(ownerID)
	if err != nil {
		return nil, err
	}
	log := logrus.WithFields(logrus.Fields{"owner_id": ownerID, "path": dir})

	files, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			log.Debug("Owner directory does not exist, returning empty list")
			return []*core.Record{}, nil
		}
		log.WithError(err).Error("Failed to read owner directory")
		return nil, err
	}

	records := make([]*core.Record, 0, len(files))
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != recordExt {
			continue
		}
		rec, err := readRecord(filepath.Join(dir, file.Name()))
		if err != nil {
			log.WithError(err).Warnf("Failed to read design record %s, skipping", file.Name())
			continue
		}
		rec.OwnerID = ownerID
		records = append(records, rec)
	}
	core.SortNewestFirst(records)

	log.Infof("Listed %d design records", len(records))
	return records, nil
}

func (s *fsStore) Get(ctx context.Context, ownerID, id string) (*core.Record, error) {
	filePath, err := s.recordPath(ownerID, id)
	if err != nil {
		return nil, core.E(core.NotFound, "get record", err)
	}
	log := logrus.WithFields(logrus.Fields{"owner_id": ownerID, "record_id": id, "path": filePath})

	rec, err := readRecord(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn("Design record not found")
			return nil, core.E(core.NotFound, "get record", fmt.Errorf("record %s not found", id))
		}
		log.WithError(err).Error("Failed to read design record")
		return nil, err
	}
	rec.OwnerID = ownerID
	return rec, nil
}

func (s *fsStore) Delete(ctx context.Context, ownerID, id string) error {
	filePath, err := s.recordPath(ownerID, id)
	if err != nil {
		return core.E(core.NotFound, "delete record", err)
	}
	log := logrus.WithFields(logrus.Fields{"owner_id": ownerID, "record_id": id, "path": filePath})

	if err := os.Remove(filePath); err != nil {
		if os.IsNotExist(err) {
			log.Warn("Design record not found for deletion")
			return core.E(core.NotFound, "delete record", fmt.Errorf("record %s not found", id))
		}
		log.WithError(err).Error("Failed to delete design record")
		return err
	}

	log.Info("Design record deleted successfully")
	return nil
}

func readRecord(filePath string) (*core.Record, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	var rec core.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func writeFileAtomic(filePath string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(filePath), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filePath)
}

// AssetStore writes uploaded assets into a directory and addresses them
// under baseURL.
type AssetStore struct {
	dir     string
	baseURL string
}

func NewAssetStore(dir, baseURL string) *AssetStore {
	if err := os.MkdirAll(dir, 0755); err != nil {
		logrus.Fatalf("failed to create asset directory: %v", err)
	}
	return &AssetStore{dir: dir, baseURL: strings.TrimSuffix(baseURL, "/")}
}

// Dir returns the directory assets are written to.
func (s *AssetStore) Dir() string {
	return s.dir
}

func (s *AssetStore) Upload(ctx context.Context, data []byte, mimeType string) (string, error) {
	name := ulid.Make().String() + extension(data)
	filePath := filepath.Join(s.dir, name)
	log := logrus.WithFields(logrus.Fields{"path": filePath, "mime_type": mimeType, "data_length": len(data)})

	if err := writeFileAtomic(filePath, data); err != nil {
		log.WithError(err).Error("Failed to write asset")
		return "", core.E(core.UploadFailed, "upload asset", err)
	}

	url := s.baseURL + "/" + name
	log.WithField("url", url).Info("Asset uploaded successfully")
	return url, nil
}

func extension(data []byte) string {
	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown {
		return ".bin"
	}
	return "." + kind.Extension
}

// LocalStore is a LocalStore keeping one file per key.
type LocalStore struct {
	dir string
}

func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{dir: dir}
}

func (s *LocalStore) path(key string) (string, error) {
	if err := checkName("key", key); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, key+recordExt), nil
}

func (s *LocalStore) Put(key string, data []byte) error {
	filePath, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return err
	}
	return writeFileAtomic(filePath, data)
}

func (s *LocalStore) Get(key string) ([]byte, bool, error) {
	filePath, err := s.path(key)
	if err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}
