package aws

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"tshirt-designer/core"
)

// s3API is the subset of the S3 client used by the stores.
type s3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

const (
	recordPrefix = "designs"
	hashPrefix   = "hashes"
	assetPrefix  = "assets"
)

type s3Store struct {
	s3Client s3API
	bucket   string
}

// NewClient loads the default AWS configuration and builds an S3 client.
func NewClient(ctx context.Context) *s3.Client {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		logrus.Fatalf("unable to load SDK config, %v", err)
	}
	return s3.NewFromConfig(cfg)
}

// NewStore creates a new S3-based document store. Records live under
// designs/<owner>/<id>.json; hashes/<owner>/<hash> points at the newest
// record with that hash.
func NewStore(client s3API, bucketName string) *s3Store {
	return &s3Store{s3Client: client, bucket: bucketName}
}

func checkName(kind, name string) error {
	if name == "" || name == "." || name == ".." || path.Base(name) != name {
		return fmt.Errorf("invalid %s %q", kind, name)
	}
	return nil
}

func (s *s3Store) recordKey(ownerID, id string) (string, error) {
	if err := checkName("owner id", ownerID); err != nil {
		return "", err
	}
	if err := checkName("record id", id); err != nil {
		return "", err
	}
	return path.Join(recordPrefix, ownerID, id+".json"), nil
}

func (s *s3Store) hashKey(ownerID, hash string) (string, error) {
	if err := checkName("owner id", ownerID); err != nil {
		return "", err
	}
	if err := checkName("hash", hash); err != nil {
		return "", err
	}
	return path.Join(hashPrefix, ownerID, hash), nil
}

func isNotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	var nf *s3types.NotFound
	return errors.As(err, &nsk) || errors.As(err, &nf)
}

func (s *s3Store) getObject(ctx context.Context, key string) ([]byte, error) {
	resp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (s *s3Store) putObject(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	return err
}

func (s *s3Store) QueryByHash(ctx context.Context, ownerID, hash string) (string, bool, error) {
	key, err := s.hashKey(ownerID, hash)
	if err != nil {
		return "", false, err
	}
	data, err := s.getObject(ctx, key)
	if err != nil {
		if isNotFound(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read hash index %s: %w", key, err)
	}

	id := strings.TrimSpace(string(data))
	if _, err := s.Get(ctx, ownerID, id); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			// stale index entry left by a deleted record
			return "", false, nil
		}
		return "", false, err
	}
	return id, true, nil
}

func (s *s3Store) Write(ctx context.Context, ownerID string, design core.DesignSet, hash string) (string, error) {
	id := ulid.Make().String()
	key, err := s.recordKey(ownerID, id)
	if err != nil {
		return "", err
	}
	hkey, err := s.hashKey(ownerID, hash)
	if err != nil {
		return "", err
	}
	log := logrus.WithFields(logrus.Fields{"owner_id": ownerID, "record_id": id, "key": key})

	data, err := json.Marshal(core.Record{ID: id, Hash: hash, Design: design, CreatedAt: time.Now().UTC()})
	if err != nil {
		return "", fmt.Errorf("failed to marshal design record: %w", err)
	}
	if err := s.putObject(ctx, key, data, "application/json"); err != nil {
		log.WithError(err).Error("Failed to save design record")
		return "", fmt.Errorf("failed to save design record %s: %w", id, err)
	}
	if err := s.putObject(ctx, hkey, []byte(id), "text/plain"); err != nil {
		log.WithError(err).Warn("Failed to update hash index")
	}

	log.Info("Design record created successfully")
	return id, nil
}

func (s *s3Store) ListByOwner(ctx context.Context, ownerID string) ([]*core.Record, error) {
	if err := checkName("owner id", ownerID); err != nil {
		return nil, err
	}
	log := logrus.WithField("owner_id", ownerID)

	paginator := s3.NewListObjectsV2Paginator(s.s3Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(path.Join(recordPrefix, ownerID) + "/"),
	})

	records := []*core.Record{}
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list designs for owner %s: %w", ownerID, err)
		}
		for _, object := range page.Contents {
			data, err := s.getObject(ctx, aws.ToString(object.Key))
			if err != nil {
				log.WithError(err).Warnf("Failed to get object %s, skipping", aws.ToString(object.Key))
				continue
			}
			var rec core.Record
			if err := json.Unmarshal(data, &rec); err != nil {
				log.WithError(err).Warnf("Failed to unmarshal design record %s, skipping", aws.ToString(object.Key))
				continue
			}
			rec.OwnerID = ownerID
			records = append(records, &rec)
		}
	}
	core.SortNewestFirst(records)

	log.Infof("Listed %d design records", len(records))
	return records, nil
}

func (s *s3Store) Get(ctx context.Context, ownerID, id string) (*core.Record, error) {
	key, err := s.recordKey(ownerID, id)
	if err != nil {
		return nil, core.E(core.NotFound, "get record", err)
	}
	data, err := s.getObject(ctx, key)
	if err != nil {
		if isNotFound(err) {
			return nil, core.E(core.NotFound, "get record", fmt.Errorf("record %s not found", id))
		}
		return nil, fmt.Errorf("failed to get design record %s: %w", id, err)
	}

	var rec core.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal design record: %w", err)
	}
	rec.OwnerID = ownerID
	return &rec, nil
}

func (s *s3Store) Delete(ctx context.Context, ownerID, id string) error {
	if _, err := s.Get(ctx, ownerID, id); err != nil {
		return err
	}
	key, _ := s.recordKey(ownerID, id)
	_, err := s.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete design record %s: %w", id, err)
	}
	logrus.WithFields(logrus.Fields{"owner_id": ownerID, "record_id": id}).Info("Design record deleted successfully")
	return nil
}

// AssetStore uploads assets to assets/<ulid>.jpg in the bucket.
type AssetStore struct {
	s3Client s3API
	bucket   string
	baseURL  string
}

// NewAssetStore returns an uploader whose URLs are baseURL/<key>. An empty
// baseURL uses the bucket's virtual-hosted endpoint.
func NewAssetStore(client s3API, bucketName, baseURL string) *AssetStore {
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.s3.amazonaws.com", bucketName)
	}
	return &AssetStore{s3Client: client, bucket: bucketName, baseURL: strings.TrimSuffix(baseURL, "/")}
}

func (a *AssetStore) Upload(ctx context.Context, data []byte, mimeType string) (string, error) {
	key := path.Join(assetPrefix, ulid.Make().String()+extension(mimeType))
	_, err := a.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(mimeType),
	})
	if err != nil {
		return "", core.E(core.UploadFailed, "upload asset", err)
	}

	url := a.baseURL + "/" + key
	logrus.WithFields(logrus.Fields{"url": url, "data_length": len(data)}).Info("Asset uploaded successfully")
	return url, nil
}

func extension(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	}
	return ""
}
