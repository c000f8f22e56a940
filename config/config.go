// Package config loads the service configuration: built-in defaults, then an
// optional TOML file, then environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"tshirt-designer/persist"
	"tshirt-designer/viewstate"
)

// Server contains the HTTP listener configuration.
type Server struct {
	Listen         string   `toml:"listen"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

// Storage selects and configures the document, asset and fallback backends.
type Storage struct {
	Type           string `toml:"type"` // memory, filesystem, sqlite or s3
	LocalPath      string `toml:"local_path"`
	DataSourceName string `toml:"data_source_name"`
	S3Bucket       string `toml:"s3_bucket"`
	AssetDir       string `toml:"asset_dir"`
	AssetBaseURL   string `toml:"asset_base_url"`
	FallbackPath   string `toml:"fallback_path"`
}

// Auth contains the JWT verification settings.
type Auth struct {
	JWTSecret string `toml:"jwt_secret"`
}

// Editor contains defaults for the editing sessions.
type Editor struct {
	RemovePolicy    string `toml:"remove_policy"`
	DuplicatePolicy string `toml:"duplicate_policy"`
	MaxDimension    int    `toml:"max_dimension"`
	JPEGQuality     int    `toml:"jpeg_quality"`
	NoticeSeconds   int    `toml:"notice_seconds"`

	// SessionIdleMinutes drops editing sessions unused for this long; 0
	// keeps them until shutdown.
	SessionIdleMinutes int `toml:"session_idle_minutes"`
}

type Config struct {
	Server  Server  `toml:"server"`
	Storage Storage `toml:"storage"`
	Auth    Auth    `toml:"auth"`
	Editor  Editor  `toml:"editor"`
}

var storageTypes = map[string]bool{"memory": true, "filesystem": true, "sqlite": true, "s3": true}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: Server{
			Listen:         ":3002",
			AllowedOrigins: []string{"https://*", "http://*"},
		},
		Storage: Storage{
			Type:           "memory",
			LocalPath:      "./data",
			DataSourceName: "designs.db",
			AssetDir:       "./data/assets",
			AssetBaseURL:   "/assets",
			FallbackPath:   "./data/fallback",
		},
		Editor: Editor{
			RemovePolicy:    "reset",
			DuplicatePolicy: "save",
			MaxDimension:    800,
			JPEGQuality:     80,
			NoticeSeconds:   5,

			SessionIdleMinutes: 60,
		},
	}
}

// Load returns the defaults overlaid with the TOML file at path, when it
// exists, and then with environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		file, err := os.Open(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("open config: %w", err)
		default:
			defer file.Close()
			if err := toml.NewDecoder(file).Decode(&cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"LISTEN_ADDRESS":     &c.Server.Listen,
		"STORAGE_TYPE":       &c.Storage.Type,
		"LOCAL_STORAGE_PATH": &c.Storage.LocalPath,
		"DATA_SOURCE_NAME":   &c.Storage.DataSourceName,
		"S3_BUCKET_NAME":     &c.Storage.S3Bucket,
		"ASSET_DIR":          &c.Storage.AssetDir,
		"ASSET_BASE_URL":     &c.Storage.AssetBaseURL,
		"FALLBACK_PATH":      &c.Storage.FallbackPath,
		"JWT_SECRET":         &c.Auth.JWTSecret,
		"REMOVE_POLICY":      &c.Editor.RemovePolicy,
		"DUPLICATE_POLICY":   &c.Editor.DuplicatePolicy,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	ints := map[string]*int{
		"MAX_DIMENSION":  &c.Editor.MaxDimension,
		"JPEG_QUALITY":   &c.Editor.JPEGQuality,
		"NOTICE_SECONDS": &c.Editor.NoticeSeconds,

		"SESSION_IDLE_MINUTES": &c.Editor.SessionIdleMinutes,
	}
	for key, dst := range ints {
		v, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
	}

	if v, ok := os.LookupEnv("ALLOWED_ORIGINS"); ok {
		c.Server.AllowedOrigins = strings.Split(v, ",")
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if !storageTypes[c.Storage.Type] {
		return fmt.Errorf("storage.type: unknown storage type %q", c.Storage.Type)
	}
	if c.Storage.Type == "s3" && c.Storage.S3Bucket == "" {
		return errors.New("storage.s3_bucket must be set for s3 storage")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret must be set")
	}
	if _, err := viewstate.ParseRemovePolicy(c.Editor.RemovePolicy); err != nil {
		return fmt.Errorf("editor.remove_policy: %w", err)
	}
	if _, err := persist.ParseDuplicatePolicy(c.Editor.DuplicatePolicy); err != nil {
		return fmt.Errorf("editor.duplicate_policy: %w", err)
	}
	if c.Editor.MaxDimension <= 0 {
		return fmt.Errorf("editor.max_dimension must be positive, got %d", c.Editor.MaxDimension)
	}
	if c.Editor.JPEGQuality < 1 || c.Editor.JPEGQuality > 100 {
		return fmt.Errorf("editor.jpeg_quality must be within 1..100, got %d", c.Editor.JPEGQuality)
	}
	if c.Editor.NoticeSeconds <= 0 {
		return fmt.Errorf("editor.notice_seconds must be positive, got %d", c.Editor.NoticeSeconds)
	}
	if c.Editor.SessionIdleMinutes < 0 {
		return fmt.Errorf("editor.session_idle_minutes must not be negative, got %d", c.Editor.SessionIdleMinutes)
	}
	return nil
}

// RemovePolicy returns the parsed editor remove policy.
func (c *Config) RemovePolicy() viewstate.RemovePolicy {
	p, _ := viewstate.ParseRemovePolicy(c.Editor.RemovePolicy)
	return p
}

// DuplicatePolicy returns the parsed editor duplicate policy.
func (c *Config) DuplicatePolicy() persist.DuplicatePolicy {
	p, _ := persist.ParseDuplicatePolicy(c.Editor.DuplicatePolicy)
	return p
}
