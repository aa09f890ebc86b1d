package storage

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heliodata/pkg/config"
	herrors "heliodata/pkg/errors"
	"heliodata/pkg/timerange"
)

var (
	march  = timerange.TimeRange{Start: time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2020, 4, 1, 0, 0, 0, 0, time.UTC), Granularity: timerange.Month}
	sample = time.Date(2020, 3, 2, 12, 0, 0, 0, time.UTC)
)

func writeSource(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestStorePlainFile(t *testing.T) {
	root := t.TempDir()
	mgr, err := NewManager(root, config.StorageConfig{MinFileSize: 1}, nil)
	require.NoError(t, err)

	data := []byte("SIMPLE  =                    T")
	src := writeSource(t, "AIA20200302_1200_0171.fits", data)

	art, err := mgr.Store(src, "0171", march, sample)
	require.NoError(t, err)

	want := filepath.Join(root, "0171", "2020", "03", "2020-03-02T120000.fits")
	assert.Equal(t, want, art.Path)
	assert.Equal(t, int64(len(data)), art.Size)
	assert.Empty(t, art.SHA256)
	assert.False(t, art.Decompressed)

	content, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Equal(t, data, content)

	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err), "source should be removed")
	_, err = os.Stat(want + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestStoreDecompressesGzip(t *testing.T) {
	root := t.TempDir()
	mgr, err := NewManager(root, config.StorageConfig{Decompress: true, Checksums: true, MinFileSize: 1}, nil)
	require.NoError(t, err)

	data := bytes.Repeat([]byte("FITS"), 256)
	src := writeSource(t, "eit_171.fits.gz", gzipBytes(t, data))

	art, err := mgr.Store(src, "171", march, sample)
	require.NoError(t, err)

	assert.True(t, art.Decompressed)
	assert.Equal(t, filepath.Join(root, "171", "2020", "03", "2020-03-02T120000.fits"), art.Path)

	content, err := os.ReadFile(art.Path)
	require.NoError(t, err)
	assert.Equal(t, data, content)

	sum := sha256.Sum256(data)
	assert.Equal(t, hex.EncodeToString(sum[:]), art.SHA256)
}

func TestStoreKeepsGzipWhenDecompressionOff(t *testing.T) {
	root := t.TempDir()
	mgr, err := NewManager(root, config.StorageConfig{MinFileSize: 1}, nil)
	require.NoError(t, err)

	src := writeSource(t, "eit_171.fits.gz", gzipBytes(t, []byte("payload")))
	art, err := mgr.Store(src, "171", march, sample)
	require.NoError(t, err)
	assert.Equal(t, "2020-03-02T120000.fits.gz", filepath.Base(art.Path))
}

func TestStoreRejectsShortFiles(t *testing.T) {
	root := t.TempDir()
	mgr, err := NewManager(root, config.StorageConfig{MinFileSize: 10}, nil)
	require.NoError(t, err)

	src := writeSource(t, "x.fits", []byte("tiny"))
	_, err = mgr.Store(src, "0171", march, sample)
	require.Error(t, err)
	assert.Equal(t, herrors.ErrorTypeIO, herrors.TypeOf(err))

	final := filepath.Join(root, "0171", "2020", "03", "2020-03-02T120000.fits")
	_, statErr := os.Stat(final)
	assert.True(t, os.IsNotExist(statErr), "no artifact may appear on failure")
}

func TestFileName(t *testing.T) {
	mgr := &Manager{cfg: config.StorageConfig{}}
	assert.Equal(t, "2020-03-02T120000.fits", mgr.FileName(sample, "/tmp/download.tmp", false))
	assert.Equal(t, "2020-03-02T120000.fts", mgr.FileName(sample, "/tmp/a.fts", false))
	assert.Equal(t, "2020-03-02T120000.fits", mgr.FileName(sample, "/tmp/a.fits.gz", true))

	keep := &Manager{cfg: config.StorageConfig{KeepSourceName: true}}
	assert.Equal(t, "AIA_0171.fits", keep.FileName(sample, "/tmp/AIA_0171.fits.gz", true))
}

func TestVerify(t *testing.T) {
	root := t.TempDir()
	mgr, err := NewManager(root, config.StorageConfig{MinFileSize: 2}, nil)
	require.NoError(t, err)

	good := filepath.Join(root, "good.fits")
	require.NoError(t, os.WriteFile(good, []byte("ok!"), 0644))
	assert.NoError(t, mgr.Verify(good))

	small := filepath.Join(root, "small.fits")
	require.NoError(t, os.WriteFile(small, []byte("x"), 0644))
	assert.Error(t, mgr.Verify(small))

	assert.Error(t, mgr.Verify(filepath.Join(root, "missing.fits")))
	assert.Error(t, mgr.Verify(root))
}
