package archive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heliodata/pkg/config"
	herrors "heliodata/pkg/errors"
)

func TestNamesSorted(t *testing.T) {
	assert.Equal(t, []string{"sdo-aia", "sdo-hmi", "soho-eit", "solo", "stereo-euvi"}, Names())
	assert.Len(t, All(nil), 5)
}

func TestLookupOverrides(t *testing.T) {
	m, err := Lookup("SDO-AIA", nil)
	require.NoError(t, err)
	assert.Equal(t, "jsoc", m.Archive)
	assert.Len(t, m.Products, 7)
	assert.NotEmpty(t, m.URLTemplate)

	overrides := map[string]config.MissionConfig{
		"solo": {Products: []string{"eui-fsi174-image"}, URLTemplate: "https://mirror.example/{product}/{time:20060102}.fits"},
	}
	m, err = Lookup("solo", overrides)
	require.NoError(t, err)
	assert.Equal(t, []string{"eui-fsi174-image"}, m.Products)
	assert.Equal(t, "https://mirror.example/{product}/{time:20060102}.fits", m.URLTemplate)

	m.Products[0] = "changed"
	again, _ := Lookup("solo", nil)
	assert.Equal(t, "eui-fsi174-image", again.Products[0])

	_, err = Lookup("parker", nil)
	assert.Equal(t, herrors.ErrorTypeConfig, herrors.TypeOf(err))
}

func TestMissionValidate(t *testing.T) {
	aia, err := Lookup("sdo-aia", nil)
	require.NoError(t, err)
	assert.NoError(t, aia.Validate())

	for _, name := range []string{"sdo-hmi", "soho-eit", "solo", "stereo-euvi"} {
		m, err := Lookup(name, nil)
		require.NoError(t, err)
		err = m.Validate()
		require.Error(t, err, name)
		assert.Equal(t, herrors.ErrorTypeConfig, herrors.TypeOf(err))
	}

	solo, err := Lookup("solo", map[string]config.MissionConfig{
		"solo": {URLTemplate: "https://mirror.example/{product}/{time:20060102}.fits"},
	})
	require.NoError(t, err)
	assert.NoError(t, solo.Validate())
}

func TestSelectProducts(t *testing.T) {
	m, err := Lookup("sdo-aia", nil)
	require.NoError(t, err)

	all, err := m.SelectProducts(nil)
	require.NoError(t, err)
	assert.Equal(t, m.Products, all)

	sel, err := m.SelectProducts([]string{"94", "0171", " 171 ", "304"})
	require.NoError(t, err)
	assert.Equal(t, []string{"0094", "0171", "0304"}, sel)

	_, err = m.SelectProducts([]string{"1600"})
	assert.Error(t, err)

	_, err = m.SelectProducts([]string{" "})
	assert.Error(t, err)
}

func TestStereoBAvailability(t *testing.T) {
	m, err := Lookup("stereo-euvi", nil)
	require.NoError(t, err)

	before := time.Date(2014, 9, 30, 0, 0, 0, 0, time.UTC)
	after := time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.True(t, m.IsAvailable("b/171", before))
	assert.False(t, m.IsAvailable("b/171", after))
	assert.True(t, m.IsAvailable("a/171", after))
}

func TestRenderURL(t *testing.T) {
	ts := time.Date(2016, 1, 1, 13, 24, 0, 0, time.UTC)

	got, err := RenderURL("https://jsoc1.stanford.edu/data/aia/synoptic/{time:2006/01/02}/H{time:1500}/AIA{time:20060102_1504}_{product}.fits", "0171", "", ts)
	require.NoError(t, err)
	assert.Equal(t, "https://jsoc1.stanford.edu/data/aia/synoptic/2016/01/01/H1300/AIA20160101_1324_0171.fits", got)

	got, err = RenderURL("https://a.example/q?who={identity}&p={product}", "x", "me+sun@example.org", ts)
	require.NoError(t, err)
	assert.Equal(t, "https://a.example/q?who=me%2Bsun%40example.org&p=x", got)

	_, err = RenderURL("https://a.example/{time}", "x", "", ts)
	assert.Error(t, err)
	_, err = RenderURL("https://a.example/{wavelength}", "x", "", ts)
	assert.Error(t, err)
	_, err = RenderURL("", "x", "", ts)
	assert.Error(t, err)
}

func TestCandidates(t *testing.T) {
	t0 := time.Date(2020, 1, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, []time.Time{t0}, candidates(t0, 0, time.Hour))
	assert.Equal(t, []time.Time{t0}, candidates(t0, time.Minute, 0))

	got := candidates(t0, time.Minute, 2*time.Minute)
	require.Len(t, got, 5)
	assert.Equal(t, t0.Add(-time.Minute), got[1])
	assert.Equal(t, t0.Add(2*time.Minute), got[4])
}
