// Package mirror copies completed artifacts to a gocloud bucket (file://,
// s3:// or gs://), keeping the root-relative layout as object keys.
package mirror

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // file:// driver
	_ "gocloud.dev/blob/gcsblob"  // GCS driver
	_ "gocloud.dev/blob/s3blob"   // S3 driver

	"heliodata/pkg/config"
	herrors "heliodata/pkg/errors"
	"heliodata/pkg/logger"
)

// Mirror uploads artifacts to a bucket
type Mirror struct {
	bucket *blob.Bucket
	url    string
	prefix string
	logger logger.Logger
}

// Open opens the bucket named by cfg.URL
func Open(ctx context.Context, cfg config.MirrorConfig, log logger.Logger) (*Mirror, error) {
	if cfg.URL == "" {
		return nil, herrors.New(herrors.ErrorTypeConfig, "mirror url is empty")
	}
	if log == nil {
		log = logger.Nop()
	}

	bucket, err := blob.OpenBucket(ctx, cfg.URL)
	if err != nil {
		return nil, herrors.Wrap(herrors.ErrorTypeConfig, err, "open mirror bucket %s", cfg.URL)
	}

	return &Mirror{
		bucket: bucket,
		url:    strings.TrimSuffix(cfg.URL, "/"),
		prefix: strings.Trim(cfg.Prefix, "/"),
		logger: log,
	}, nil
}

// Key maps an artifact path under root to its object key
func (m *Mirror) Key(root, artifactPath string) (string, error) {
	rel, err := filepath.Rel(root, artifactPath)
	if err != nil {
		return "", fmt.Errorf("artifact %s is not under %s: %w", artifactPath, root, err)
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("artifact %s is not under %s", artifactPath, root)
	}
	return path.Join(m.prefix, filepath.ToSlash(rel)), nil
}

// URI returns a display URI for key
func (m *Mirror) URI(key string) string {
	return m.url + "/" + key
}

// Exists reports whether key is already in the bucket
func (m *Mirror) Exists(ctx context.Context, key string) (bool, error) {
	return m.bucket.Exists(ctx, key)
}

// Upload copies the artifact to the bucket and returns its URI. The object
// is written under a temporary key and copied into place, so readers never
// see a partial upload.
func (m *Mirror) Upload(ctx context.Context, root, artifactPath string) (string, error) {
	key, err := m.Key(root, artifactPath)
	if err != nil {
		return "", err
	}

	f, err := os.Open(artifactPath)
	if err != nil {
		return "", herrors.Wrap(herrors.ErrorTypeIO, err, "open artifact for mirroring")
	}
	defer f.Close()

	tempKey := key + ".tmp." + uuid.New().String()
	if err := m.write(ctx, tempKey, f); err != nil {
		return "", err
	}

	if err := m.bucket.Copy(ctx, key, tempKey, nil); err != nil {
		m.bucket.Delete(ctx, tempKey)
		return "", herrors.Wrap(herrors.ErrorTypeNetwork, err, "finalize %s", key)
	}
	if err := m.bucket.Delete(ctx, tempKey); err != nil {
		m.logger.WarnWithFields("Failed to delete temporary mirror object", map[string]interface{}{
			"key":   tempKey,
			"error": err.Error(),
		})
	}

	uri := m.URI(key)
	m.logger.DebugWithFields("Artifact mirrored", map[string]interface{}{
		"uri": uri,
	})
	return uri, nil
}

func (m *Mirror) write(ctx context.Context, key string, r io.Reader) error {
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w, err := m.bucket.NewWriter(wctx, key, &blob.WriterOptions{ContentType: "application/fits"})
	if err != nil {
		return herrors.Wrap(herrors.ErrorTypeNetwork, err, "create writer for %s", key)
	}

	if _, err := io.Copy(w, r); err != nil {
		cancel() // abandons the write
		w.Close()
		return herrors.Wrap(herrors.ErrorTypeNetwork, err, "write %s", key)
	}

	if err := w.Close(); err != nil {
		return herrors.Wrap(herrors.ErrorTypeNetwork, err, "close writer for %s", key)
	}
	return nil
}

// Close releases the bucket connection
func (m *Mirror) Close() error {
	if m.bucket != nil {
		return m.bucket.Close()
	}
	return nil
}
