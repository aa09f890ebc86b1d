package mirror

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heliodata/pkg/config"
)

func openFileMirror(t *testing.T, prefix string) (*Mirror, string) {
	t.Helper()
	bucketDir := t.TempDir()
	m, err := Open(context.Background(), config.MirrorConfig{
		URL:    "file://" + filepath.ToSlash(bucketDir),
		Prefix: prefix,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m, bucketDir
}

func TestUpload(t *testing.T) {
	ctx := context.Background()
	m, bucketDir := openFileMirror(t, "/solar/")

	root := t.TempDir()
	artifact := filepath.Join(root, "0171", "2020", "03", "2020-03-02T120000.fits")
	require.NoError(t, os.MkdirAll(filepath.Dir(artifact), 0755))
	require.NoError(t, os.WriteFile(artifact, []byte("SIMPLE"), 0644))

	uri, err := m.Upload(ctx, root, artifact)
	require.NoError(t, err)
	assert.Contains(t, uri, "solar/0171/2020/03/2020-03-02T120000.fits")

	ok, err := m.Exists(ctx, "solar/0171/2020/03/2020-03-02T120000.fits")
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := os.ReadFile(filepath.Join(bucketDir, "solar", "0171", "2020", "03", "2020-03-02T120000.fits"))
	require.NoError(t, err)
	assert.Equal(t, "SIMPLE", string(data))

	matches, err := filepath.Glob(filepath.Join(bucketDir, "solar", "0171", "2020", "03", "*.tmp.*"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestKey(t *testing.T) {
	m, _ := openFileMirror(t, "")

	key, err := m.Key("/data", filepath.Join("/data", "hmi", "2021", "a.fits"))
	require.NoError(t, err)
	assert.Equal(t, "hmi/2021/a.fits", key)

	key, err = m.Key("/data", filepath.Join("/data", "..a.fits"))
	require.NoError(t, err)
	assert.Equal(t, "..a.fits", key)

	_, err = m.Key("/data", "/elsewhere/a.fits")
	assert.Error(t, err)
	_, err = m.Key("/data/hmi", "/data")
	assert.Error(t, err)
	_, err = m.Key("/data", "/data")
	assert.Error(t, err)
}

func TestOpenErrors(t *testing.T) {
	_, err := Open(context.Background(), config.MirrorConfig{}, nil)
	assert.Error(t, err)

	_, err = Open(context.Background(), config.MirrorConfig{URL: "nosuchscheme://bucket"}, nil)
	assert.Error(t, err)
}
