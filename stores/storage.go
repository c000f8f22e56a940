package stores

import (
	"context"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"tshirt-designer/config"
	"tshirt-designer/core"
	"tshirt-designer/stores/aws"
	"tshirt-designer/stores/filesystem"
	"tshirt-designer/stores/memory"
	"tshirt-designer/stores/sqlite"
)

// Backend bundles the collaborators a persistence coordinator needs.
type Backend struct {
	Docs   core.DocumentStore
	Assets core.AssetUploader
	Local  core.LocalStore

	// AssetFiles serves uploaded assets when they are stored on local disk.
	// It is nil for backends whose URLs resolve elsewhere.
	AssetFiles http.Handler
}

// New builds the backend selected by cfg.Type.
func New(ctx context.Context, cfg config.Storage) Backend {
	var b Backend

	storageField := logrus.Fields{
		"storageType": cfg.Type,
	}

	switch cfg.Type {
	case "filesystem":
		storageField["basePath"] = cfg.LocalPath
		b.Docs = filesystem.NewStore(cfg.LocalPath)
		b.Assets, b.AssetFiles = diskAssets(cfg, storageField)
		b.Local = filesystem.NewLocalStore(cfg.FallbackPath)
	case "sqlite":
		storageField["dataSourceName"] = cfg.DataSourceName
		b.Docs = sqlite.NewStore(cfg.DataSourceName)
		b.Assets, b.AssetFiles = diskAssets(cfg, storageField)
		b.Local = filesystem.NewLocalStore(cfg.FallbackPath)
	case "s3":
		storageField["bucketName"] = cfg.S3Bucket
		client := aws.NewClient(ctx)
		b.Docs = aws.NewStore(client, cfg.S3Bucket)
		base := cfg.AssetBaseURL
		if !strings.HasPrefix(base, "http") {
			base = ""
		}
		b.Assets = aws.NewAssetStore(client, cfg.S3Bucket, base)
		b.Local = filesystem.NewLocalStore(cfg.FallbackPath)
	default:
		b.Docs = memory.NewStore()
		b.Assets = memory.NewAssetStore()
		b.Local = memory.NewLocalStore()
		storageField["storageType"] = "in-memory"
	}

	logrus.WithFields(storageField).Info("Use storage")
	return b
}

func diskAssets(cfg config.Storage, fields logrus.Fields) (core.AssetUploader, http.Handler) {
	fields["assetDir"] = cfg.AssetDir
	assets := filesystem.NewAssetStore(cfg.AssetDir, cfg.AssetBaseURL)
	return assets, http.FileServer(http.Dir(assets.Dir()))
}
