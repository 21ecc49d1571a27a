// Package blob reads uploaded source files by URI.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// DefaultMaxBytes caps a single read.
const DefaultMaxBytes = 50 << 20

var ErrTooLarge = errors.New("object exceeds size limit")

// Object is a fetched file.
type Object struct {
	Data        []byte
	ContentType string
	Name        string
}

// Store fetches objects by URI.
type Store interface {
	Get(ctx context.Context, uri string) (*Object, error)
}

// Config selects the backends.
type Config struct {
	LocalRoot       string `yaml:"local_root"`
	CredentialsFile string `yaml:"credentials_file"`
	MaxBytes        int64  `yaml:"max_bytes"`
	EnableGCS       bool   `yaml:"enable_gcs"`
}

// Mux routes gs:// URIs to Cloud Storage and everything else to the local filesystem.
type Mux struct {
	gcs   *GCS
	local *Local
}

// NewMux builds the configured backends. Cloud Storage is optional.
func NewMux(ctx context.Context, cfg Config, logger *zap.Logger) (*Mux, error) {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	m := &Mux{local: NewLocal(cfg.LocalRoot, cfg.MaxBytes)}
	if cfg.EnableGCS {
		g, err := NewGCS(ctx, cfg.CredentialsFile, cfg.MaxBytes, logger)
		if err != nil {
			return nil, err
		}
		m.gcs = g
	}
	return m, nil
}

func (m *Mux) Get(ctx context.Context, uri string) (*Object, error) {
	if strings.HasPrefix(uri, "gs://") {
		if m.gcs == nil {
			return nil, fmt.Errorf("cloud storage is not configured for %q", uri)
		}
		return m.gcs.Get(ctx, uri)
	}
	return m.local.Get(ctx, uri)
}

func (m *Mux) Close() error {
	if m.gcs != nil {
		return m.gcs.Close()
	}
	return nil
}

// GCS reads gs://bucket/key objects.
type GCS struct {
	client   *storage.Client
	maxBytes int64
	logger   *zap.Logger
}

func NewGCS(ctx context.Context, credentialsFile string, maxBytes int64, logger *zap.Logger) (*GCS, error) {
	opts := []option.ClientOption{option.WithScopes(storage.ScopeReadOnly)}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage client: %w", err)
	}
	return &GCS{client: client, maxBytes: maxBytes, logger: logger}, nil
}

func (g *GCS) Get(ctx context.Context, uri string) (*Object, error) {
	bucket, key, err := ParseGSURI(uri)
	if err != nil {
		return nil, err
	}

	r, err := g.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", uri, err)
	}
	defer r.Close()

	if r.Attrs.Size > g.maxBytes {
		return nil, fmt.Errorf("%s: %w", uri, ErrTooLarge)
	}
	data, err := readLimited(r, g.maxBytes)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", uri, err)
	}

	g.logger.Debug("Fetched object", zap.String("uri", uri), zap.Int("bytes", len(data)))
	return &Object{Data: data, ContentType: r.Attrs.ContentType, Name: key}, nil
}

func (g *GCS) Close() error {
	return g.client.Close()
}

// ParseGSURI splits gs://bucket/key.
func ParseGSURI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, "gs://")
	if !ok {
		return "", "", fmt.Errorf("not a gs:// uri: %q", uri)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid gs:// uri: %q", uri)
	}
	return bucket, key, nil
}

// Local reads files under a root directory. Paths may carry a file:// prefix.
type Local struct {
	root     string
	maxBytes int64
}

func NewLocal(root string, maxBytes int64) *Local {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Local{root: root, maxBytes: maxBytes}
}

func (l *Local) Get(ctx context.Context, uri string) (*Object, error) {
	path := strings.TrimPrefix(uri, "file://")
	if l.root != "" {
		clean := filepath.Clean("/" + path)
		path = filepath.Join(l.root, clean)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", uri, err)
	}
	defer f.Close()

	data, err := readLimited(f, l.maxBytes)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", uri, err)
	}
	return &Object{
		Data:        data,
		ContentType: mime.TypeByExtension(filepath.Ext(path)),
		Name:        filepath.Base(path),
	}, nil
}

func readLimited(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, ErrTooLarge
	}
	return data, nil
}
