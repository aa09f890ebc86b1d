package ledger

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	herrors "heliodata/pkg/errors"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestIsDoneBeforeAndAfterMarkDone(t *testing.T) {
	l, err := Open(t.TempDir())
	require.NoError(t, err)
	defer l.Close()

	assert.False(t, l.IsDone("2020-01"))
	require.NoError(t, l.MarkDone("2020-01", "/data/171/2020/01/a.fits"))
	assert.True(t, l.IsDone("2020-01"))

	rec, ok := l.Status("2020-01")
	require.True(t, ok)
	assert.Equal(t, StatusDone, rec.Status)
	assert.Equal(t, 1, rec.Attempts)
}

func TestMarkDoneIdempotent(t *testing.T) {
	root := t.TempDir()
	first := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	now := first
	l, err := Open(root, WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	require.NoError(t, l.MarkDone("k", "/a"))
	before, err := os.ReadFile(l.Path())
	require.NoError(t, err)

	now = first.Add(time.Hour)
	require.NoError(t, l.MarkDone("k", "/b"))
	after, err := os.ReadFile(l.Path())
	require.NoError(t, err)

	assert.Equal(t, string(before), string(after))
	rec, _ := l.Status("k")
	assert.Equal(t, "/a", rec.Path)
	assert.True(t, rec.UpdatedAt.Equal(first))
	require.NoError(t, l.Close())
}

func TestMarkFailedThenRetry(t *testing.T) {
	root := t.TempDir()

	l, err := Open(root)
	require.NoError(t, err)
	require.NoError(t, l.MarkPending("2021-06"))
	require.NoError(t, l.MarkFailed("2021-06", "no data", herrors.KindPermanent))
	assert.False(t, l.IsDone("2021-06"))
	require.NoError(t, l.Close())

	l, err = Open(root)
	require.NoError(t, err)
	defer l.Close()

	rec, ok := l.Status("2021-06")
	require.True(t, ok)
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Equal(t, "no data", rec.Reason)
	assert.Equal(t, herrors.KindPermanent, rec.Kind)
	assert.Equal(t, []string{"2021-06"}, l.Keys(StatusFailed))

	require.NoError(t, l.MarkPending("2021-06"))
	require.NoError(t, l.MarkDone("2021-06", "/x"))

	rec, _ = l.Status("2021-06")
	assert.Equal(t, StatusDone, rec.Status)
	assert.Empty(t, rec.Reason)
	assert.Empty(t, rec.Kind)
	assert.Equal(t, 2, rec.Attempts)
}

func TestDoneKeysAreNotDowngraded(t *testing.T) {
	l, err := Open(t.TempDir())
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.MarkDone("k", "/a"))
	require.NoError(t, l.MarkFailed("k", "late failure", herrors.KindRetriable))
	require.NoError(t, l.MarkPending("k"))
	assert.True(t, l.IsDone("k"))
}

func TestRoundTrip(t *testing.T) {
	root := t.TempDir()
	clock := fixedClock(time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC))

	l, err := Open(root, WithClock(clock))
	require.NoError(t, err)
	require.NoError(t, l.MarkDone("0171@2020-01-01T00:00:00", "/data/0171/2020/01/a.fits"))
	require.NoError(t, l.MarkFailed("0193@2020-01-01T00:00:00", "server error", herrors.KindRetriable))
	require.NoError(t, l.MarkPending("0211@2020-01-01T00:00:00"))
	want := l.Entries()
	require.NoError(t, l.Close())

	reopened, err := Open(root, WithClock(clock))
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, want, reopened.Entries())
	assert.Equal(t, Summary{Pending: 1, Done: 1, Failed: 1}, reopened.Summary())
	assert.Equal(t, 3, reopened.Summary().Total())
}

func TestFileIsHumanReadableJSON(t *testing.T) {
	root := t.TempDir()
	l, err := Open(root)
	require.NoError(t, err)
	require.NoError(t, l.MarkFailed("2021-06", "no data", herrors.KindPermanent))
	require.NoError(t, l.Close())

	data, err := os.ReadFile(filepath.Join(root, FileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  ")

	var doc struct {
		Version int                    `json:"version"`
		Entries map[string]interface{} `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, 1, doc.Version)
	assert.Contains(t, doc.Entries, "2021-06")

	_, err = os.Stat(filepath.Join(root, FileName+".tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestOpenErrors(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, FileName), []byte("{not json"), 0644))
	_, err = Open(root)
	require.Error(t, err)
	assert.Equal(t, herrors.ErrorTypeIO, herrors.TypeOf(err))
}

func TestFreshIgnoresExistingState(t *testing.T) {
	root := t.TempDir()
	l, err := Open(root)
	require.NoError(t, err)
	require.NoError(t, l.MarkDone("k", "/a"))
	require.NoError(t, l.Close())

	l, err = Open(root, Fresh())
	require.NoError(t, err)
	assert.False(t, l.IsDone("k"))
	require.NoError(t, l.Close())

	l, err = Open(root)
	require.NoError(t, err)
	defer l.Close()
	assert.Empty(t, l.Entries())
}

func TestWithFlushesOnError(t *testing.T) {
	root := t.TempDir()
	boom := errors.New("boom")

	err := With(root, func(l *Ledger) error {
		require.NoError(t, l.MarkDone("a", "/a"))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	err = With(root, func(l *Ledger) error {
		assert.True(t, l.IsDone("a"))
		return nil
	})
	assert.NoError(t, err)
}

func TestWithClosesOnPanic(t *testing.T) {
	root := t.TempDir()
	var captured *Ledger

	assert.Panics(t, func() {
		_ = With(root, func(l *Ledger) error {
			captured = l
			require.NoError(t, l.MarkFailed("a", "reset", herrors.KindRetriable))
			panic("interrupted")
		})
	})

	require.NotNil(t, captured)
	assert.Error(t, captured.MarkDone("b", "/b"))

	l, err := Open(root)
	require.NoError(t, err)
	defer l.Close()
	rec, ok := l.Status("a")
	require.True(t, ok)
	assert.Equal(t, StatusFailed, rec.Status)
}

func TestEnsureDir(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "root")
	l, err := Open(root)
	require.NoError(t, err)
	defer l.Close()

	dir, err := l.EnsureDir("0171", "2020", "03")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "0171", "2020", "03"), dir)

	_, err = l.EnsureDir("0171", "2020", "03")
	assert.NoError(t, err)
	assert.DirExists(t, dir)
}

func TestBackup(t *testing.T) {
	root := t.TempDir()
	clock := fixedClock(time.Date(2024, 2, 3, 4, 5, 6, 0, time.Local))

	l, err := Open(root, WithClock(clock))
	require.NoError(t, err)
	defer l.Close()

	path, err := l.Backup()
	require.NoError(t, err)
	assert.Empty(t, path)

	require.NoError(t, l.MarkDone("k", "/a"))
	path, err = l.Backup()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "ledger_20240203_040506.json"), path)

	orig, err := os.ReadFile(l.Path())
	require.NoError(t, err)
	backup, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, orig, backup)
}

func TestBackupSameSecondKeepsBoth(t *testing.T) {
	root := t.TempDir()
	clock := fixedClock(time.Date(2024, 2, 3, 4, 5, 6, 0, time.Local))

	l, err := Open(root, WithClock(clock))
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.MarkDone("a", "/a"))
	first, err := l.Backup()
	require.NoError(t, err)
	firstData, err := os.ReadFile(first)
	require.NoError(t, err)

	require.NoError(t, l.MarkDone("b", "/b"))
	second, err := l.Backup()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "ledger_20240203_040506_1.json"), second)
	kept, err := os.ReadFile(first)
	require.NoError(t, err)
	assert.Equal(t, firstData, kept, "earlier backup must not be overwritten")

	orig, err := os.ReadFile(l.Path())
	require.NoError(t, err)
	secondData, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, orig, secondData)
}

func TestMarkPendingWaitsForNextWrite(t *testing.T) {
	root := t.TempDir()
	l, err := Open(root)
	require.NoError(t, err)

	require.NoError(t, l.MarkPending("p"))
	assert.NoFileExists(t, l.Path())
	rec, ok := l.Status("p")
	require.True(t, ok)
	assert.Equal(t, StatusPending, rec.Status)

	require.NoError(t, l.MarkDone("d", "/d"))
	onDisk, err := Open(root)
	require.NoError(t, err)
	rec, ok = onDisk.Status("p")
	require.True(t, ok, "pending record is written with the next change")
	assert.Equal(t, StatusPending, rec.Status)
	require.NoError(t, onDisk.Close())

	require.NoError(t, l.MarkPending("q"))
	require.NoError(t, l.Close())

	reopened, err := Open(root)
	require.NoError(t, err)
	defer reopened.Close()
	_, ok = reopened.Status("q")
	assert.True(t, ok, "close flushes pending records")
}

func TestEmptyKeyRejected(t *testing.T) {
	l, err := Open(t.TempDir())
	require.NoError(t, err)
	defer l.Close()

	assert.Error(t, l.MarkDone("", "/a"))
	assert.False(t, l.IsDone(""))
}
