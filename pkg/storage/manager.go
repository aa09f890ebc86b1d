package storage

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"heliodata/pkg/config"
	herrors "heliodata/pkg/errors"
	"heliodata/pkg/logger"
	"heliodata/pkg/timerange"
)

const defaultExt = ".fits"

// Artifact is a file placed under the destination root
type Artifact struct {
	Path         string
	Size         int64
	SHA256       string
	Decompressed bool
	Source       string
}

// Manager places fetched files at root/product/label/name
type Manager struct {
	root   string
	cfg    config.StorageConfig
	logger logger.Logger
}

// NewManager creates a new storage manager
func NewManager(root string, cfg config.StorageConfig, log logger.Logger) (*Manager, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, herrors.Wrap(herrors.ErrorTypeIO, err, "create output directory %s", root)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Manager{root: root, cfg: cfg, logger: log}, nil
}

// Root returns the destination root
func (m *Manager) Root() string {
	return m.root
}

// Dir returns the directory for a product and range
func (m *Manager) Dir(product string, tr timerange.TimeRange) string {
	return timerange.ResultPath(m.root, product, tr)
}

// FileName returns the final name for a sample fetched as sourceName.
// Names are derived from the sample time unless KeepSourceName is set.
func (m *Manager) FileName(sample time.Time, sourceName string, decompressed bool) string {
	base := filepath.Base(sourceName)
	if decompressed {
		base = strings.TrimSuffix(base, ".gz")
	}
	if m.cfg.KeepSourceName {
		return base
	}

	ext := filepath.Ext(base)
	switch {
	case strings.HasSuffix(base, defaultExt+".gz"):
		ext = defaultExt + ".gz"
	case ext == "" || ext == ".tmp":
		ext = defaultExt
	}
	return timerange.FileStem(sample) + ext
}

// Store moves the file at srcPath into place for product and sample and
// removes srcPath. Gzip payloads are inflated when decompression is on.
// The artifact only appears at its final path once fully written.
func (m *Manager) Store(srcPath, product string, tr timerange.TimeRange, sample time.Time) (*Artifact, error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return nil, herrors.Wrap(herrors.ErrorTypeIO, err, "open fetched file")
	}
	defer src.Close()

	br := bufio.NewReader(src)
	var reader io.Reader = br

	decompress := false
	if m.cfg.Decompress {
		if decompress, err = isGzip(br); err != nil {
			return nil, herrors.Wrap(herrors.ErrorTypeIO, err, "inspect fetched file")
		}
	}
	if decompress {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, herrors.Wrap(herrors.ErrorTypeIO, err, "open gzip stream")
		}
		defer zr.Close()
		reader = zr
	}

	dir := m.Dir(product, tr)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, herrors.Wrap(herrors.ErrorTypeIO, err, "create directory %s", dir)
	}
	finalPath := filepath.Join(dir, m.FileName(sample, srcPath, decompress))

	size, sum, err := m.writeFile(finalPath, reader)
	if err != nil {
		return nil, err
	}

	src.Close()
	if err := os.Remove(srcPath); err != nil && !os.IsNotExist(err) {
		m.logger.WarnWithFields("Failed to remove fetched temp file", map[string]interface{}{
			"path":  srcPath,
			"error": err.Error(),
		})
	}

	m.logger.DebugWithFields("Artifact stored", map[string]interface{}{
		"path":         finalPath,
		"size":         size,
		"decompressed": decompress,
	})

	return &Artifact{
		Path:         finalPath,
		Size:         size,
		SHA256:       sum,
		Decompressed: decompress,
		Source:       filepath.Base(srcPath),
	}, nil
}

// writeFile copies r to a temp file next to path, validates it and renames
// it into place.
func (m *Manager) writeFile(path string, r io.Reader) (int64, string, error) {
	tempFile := path + ".tmp"
	out, err := os.Create(tempFile)
	if err != nil {
		return 0, "", herrors.Wrap(herrors.ErrorTypeIO, err, "create temporary file")
	}

	var h hash.Hash
	var w io.Writer = out
	if m.cfg.Checksums {
		h = sha256.New()
		w = io.MultiWriter(out, h)
	}

	size, err := io.Copy(w, r)
	if err == nil {
		err = out.Sync()
	}
	closeErr := out.Close()

	if err != nil {
		os.Remove(tempFile)
		return 0, "", herrors.Wrap(herrors.ErrorTypeIO, err, "write artifact data")
	}
	if closeErr != nil {
		os.Remove(tempFile)
		return 0, "", herrors.Wrap(herrors.ErrorTypeIO, closeErr, "close artifact file")
	}

	if size < m.cfg.MinFileSize {
		os.Remove(tempFile)
		return 0, "", herrors.New(herrors.ErrorTypeIO, "artifact is %d bytes, below minimum %d", size, m.cfg.MinFileSize)
	}

	if err := os.Rename(tempFile, path); err != nil {
		os.Remove(tempFile)
		return 0, "", herrors.Wrap(herrors.ErrorTypeIO, err, "rename temporary file")
	}

	sum := ""
	if h != nil {
		sum = hex.EncodeToString(h.Sum(nil))
	}
	return size, sum, nil
}

// Verify checks that a stored artifact still exists and meets the
// minimum size.
func (m *Manager) Verify(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return herrors.Wrap(herrors.ErrorTypeIO, err, "stat artifact")
	}
	if info.IsDir() {
		return herrors.New(herrors.ErrorTypeIO, "%s is a directory", path)
	}
	if info.Size() < m.cfg.MinFileSize {
		return herrors.New(herrors.ErrorTypeIO, "artifact %s is %d bytes, below minimum %d", path, info.Size(), m.cfg.MinFileSize)
	}
	return nil
}

// isGzip peeks at the gzip magic number without consuming input
func isGzip(br *bufio.Reader) (bool, error) {
	magic, err := br.Peek(2)
	if err == io.EOF {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("peek: %w", err)
	}
	return magic[0] == 0x1f && magic[1] == 0x8b, nil
}
