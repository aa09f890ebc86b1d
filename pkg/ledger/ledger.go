package ledger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	herrors "heliodata/pkg/errors"
	"heliodata/pkg/logger"
)

// FileName is the ledger file created under the destination root
const FileName = "ledger.json"

const formatVersion = 1

// Status is the completion state of one key
type Status string

const (
	StatusPending Status = "pending"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Record is the persisted state of one key
type Record struct {
	Status    Status       `json:"status"`
	Reason    string       `json:"reason,omitempty"`
	Kind      herrors.Kind `json:"kind,omitempty"`
	Path      string       `json:"path,omitempty"`
	Attempts  int          `json:"attempts"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Summary counts keys per status
type Summary struct {
	Pending int `json:"pending"`
	Done    int `json:"done"`
	Failed  int `json:"failed"`
}

// Total returns the number of tracked keys
func (s Summary) Total() int {
	return s.Pending + s.Done + s.Failed
}

// state is the on-disk document
type state struct {
	Version   int               `json:"version"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	Entries   map[string]Record `json:"entries"`
}

// Ledger tracks progress for a single destination root
type Ledger struct {
	mu     sync.Mutex
	root   string
	path   string
	state  state
	dirty  bool
	closed bool
	fresh  bool

	logger logger.Logger
	now    func() time.Time
}

// Option configures a Ledger
type Option func(*Ledger)

// WithLogger sets the logger used for ledger events
func WithLogger(l logger.Logger) Option {
	return func(lg *Ledger) {
		if l != nil {
			lg.logger = l
		}
	}
}

// WithClock overrides time.Now, mostly for tests
func WithClock(now func() time.Time) Option {
	return func(lg *Ledger) {
		if now != nil {
			lg.now = now
		}
	}
}

// Fresh ignores any existing ledger contents. The file on disk is replaced
// on the next flush, so call Backup first to keep it.
func Fresh() Option {
	return func(lg *Ledger) {
		lg.fresh = true
	}
}

// Open acquires the ledger under root, creating root if needed. An existing
// ledger file is loaded; a missing one starts empty.
func Open(root string, opts ...Option) (*Ledger, error) {
	if root == "" {
		return nil, herrors.New(herrors.ErrorTypeConfig, "ledger root must not be empty")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, herrors.Wrap(herrors.ErrorTypeIO, err, "create destination root %s", root)
	}

	l := &Ledger{
		root:   root,
		path:   filepath.Join(root, FileName),
		logger: logger.Nop(),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(l)
	}

	if l.fresh {
		l.state = l.emptyState()
		l.dirty = true
		l.logger.InfoWithFields("Starting with an empty ledger", map[string]interface{}{
			"path": l.path,
		})
		return l, nil
	}

	if err := l.load(); err != nil {
		return nil, err
	}
	return l, nil
}

// With opens the ledger under root, runs fn and closes the ledger on every
// exit path, including a panic in fn. The close error is joined with the
// error returned by fn, which stays the one errors.Is matches.
func With(root string, fn func(*Ledger) error, opts ...Option) (err error) {
	l, err := Open(root, opts...)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			_ = l.Close()
			panic(r)
		}
		if cerr := l.Close(); cerr != nil {
			if err == nil {
				err = cerr
			} else {
				err = fmt.Errorf("%w; %v", err, cerr)
			}
		}
	}()

	return fn(l)
}

func (l *Ledger) emptyState() state {
	now := l.now().UTC()
	return state{
		Version:   formatVersion,
		CreatedAt: now,
		UpdatedAt: now,
		Entries:   make(map[string]Record),
	}
}

func (l *Ledger) load() error {
	file, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			l.state = l.emptyState()
			return nil
		}
		return herrors.Wrap(herrors.ErrorTypeIO, err, "open ledger %s", l.path)
	}
	defer file.Close()

	var st state
	if err := json.NewDecoder(file).Decode(&st); err != nil {
		return herrors.Wrap(herrors.ErrorTypeIO, err, "decode ledger %s", l.path)
	}
	if st.Version > formatVersion {
		return herrors.New(herrors.ErrorTypeIO, "ledger %s has unsupported version %d", l.path, st.Version)
	}
	if st.Entries == nil {
		st.Entries = make(map[string]Record)
	}
	l.state = st

	l.logger.DebugWithFields("Ledger loaded", map[string]interface{}{
		"path":    l.path,
		"entries": len(st.Entries),
	})
	return nil
}

// Root returns the destination root
func (l *Ledger) Root() string { return l.root }

// Path returns the ledger file path
func (l *Ledger) Path() string { return l.path }

// IsDone reports whether key was marked done. Unknown keys are not done.
func (l *Ledger) IsDone(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.state.Entries[key]
	return ok && rec.Status == StatusDone
}

// Status returns the record for key, if any
func (l *Ledger) Status(key string) (Record, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.state.Entries[key]
	return rec, ok
}

// MarkPending records an attempt on key. Done keys are left untouched.
// The record is held in memory until the next write, since a key missing
// from the file is already not done.
func (l *Ledger) MarkPending(key string) error {
	return l.update(key, false, func(rec *Record) bool {
		if rec.Status == StatusDone {
			return false
		}
		rec.Status = StatusPending
		rec.Attempts++
		return true
	})
}

// MarkDone records that key's artifact is in place at path. Marking a key
// that is already done changes nothing and writes nothing.
func (l *Ledger) MarkDone(key, path string) error {
	return l.update(key, true, func(rec *Record) bool {
		if rec.Status == StatusDone {
			return false
		}
		rec.Status = StatusDone
		rec.Path = path
		rec.Reason = ""
		rec.Kind = ""
		if rec.Attempts == 0 {
			rec.Attempts = 1
		}
		return true
	})
}

// MarkFailed records a failure for key with a human readable reason. The
// key stays not-done so the next run retries it.
func (l *Ledger) MarkFailed(key, reason string, kind herrors.Kind) error {
	return l.update(key, true, func(rec *Record) bool {
		if rec.Status == StatusDone {
			return false
		}
		rec.Status = StatusFailed
		rec.Reason = reason
		rec.Kind = kind
		if rec.Attempts == 0 {
			rec.Attempts = 1
		}
		return true
	})
}

// update applies fn to the record for key. When fn reports a change and
// flush is set the ledger is written; on a failed write the in-memory
// record is rolled back.
func (l *Ledger) update(key string, flush bool, fn func(*Record) bool) error {
	if key == "" {
		return herrors.New(herrors.ErrorTypeConfig, "ledger key must not be empty")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return herrors.New(herrors.ErrorTypeIO, "ledger %s is closed", l.path)
	}

	prev, existed := l.state.Entries[key]
	rec := prev
	if !fn(&rec) {
		return nil
	}
	rec.UpdatedAt = l.now().UTC()
	l.state.Entries[key] = rec
	l.dirty = true
	if !flush {
		return nil
	}

	if err := l.flushLocked(); err != nil {
		if existed {
			l.state.Entries[key] = prev
		} else {
			delete(l.state.Entries, key)
		}
		return err
	}
	return nil
}

// Entries returns a copy of all records
func (l *Ledger) Entries() map[string]Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]Record, len(l.state.Entries))
	for k, v := range l.state.Entries {
		out[k] = v
	}
	return out
}

// Keys returns the keys with the given status in ascending order
func (l *Ledger) Keys(status Status) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	var keys []string
	for k, rec := range l.state.Entries {
		if rec.Status == status {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Summary counts records per status
func (l *Ledger) Summary() Summary {
	l.mu.Lock()
	defer l.mu.Unlock()

	var s Summary
	for _, rec := range l.state.Entries {
		switch rec.Status {
		case StatusDone:
			s.Done++
		case StatusFailed:
			s.Failed++
		default:
			s.Pending++
		}
	}
	return s
}

// EnsureDir creates root/elem... if missing and returns the path
func (l *Ledger) EnsureDir(elem ...string) (string, error) {
	dir := filepath.Join(append([]string{l.root}, elem...)...)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", herrors.Wrap(herrors.ErrorTypeIO, err, "create directory %s", dir)
	}
	return dir, nil
}

// Flush writes pending changes to disk
func (l *Ledger) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flushLocked()
}

// Close flushes and releases the ledger. Further updates fail.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	err := l.flushLocked()
	l.closed = true
	return err
}

func (l *Ledger) flushLocked() error {
	if !l.dirty {
		return nil
	}
	l.state.UpdatedAt = l.now().UTC()
	if err := writeAtomic(l.path, &l.state); err != nil {
		return err
	}
	l.dirty = false
	return nil
}

// writeAtomic encodes v to a temp file next to path, syncs it and renames
// it over path.
func writeAtomic(path string, v interface{}) error {
	tempPath := path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return herrors.Wrap(herrors.ErrorTypeIO, err, "create temporary ledger file")
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		file.Close()
		os.Remove(tempPath)
		return herrors.Wrap(herrors.ErrorTypeIO, err, "encode ledger")
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return herrors.Wrap(herrors.ErrorTypeIO, err, "sync ledger file")
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return herrors.Wrap(herrors.ErrorTypeIO, err, "close ledger file")
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return herrors.Wrap(herrors.ErrorTypeIO, err, "replace ledger file")
	}
	return nil
}

// Backup copies the ledger file to root/ledger_YYYYMMDD_HHMMSS.json and
// returns the backup path. A second backup within the same second gets a
// numeric suffix instead of replacing the first. Without a ledger file on
// disk it does nothing.
func (l *Ledger) Backup() (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	src, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", herrors.Wrap(herrors.ErrorTypeIO, err, "open ledger for backup")
	}
	defer src.Close()

	stamp := l.now().Format("20060102_150405")
	backupPath, dst, err := createBackup(l.root, stamp)
	if err != nil {
		return "", err
	}

	_, err = io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(backupPath)
		return "", herrors.Wrap(herrors.ErrorTypeIO, err, "copy ledger to backup")
	}

	l.logger.DebugWithFields("Ledger backed up", map[string]interface{}{
		"backup": backupPath,
	})
	return backupPath, nil
}

// createBackup creates root/ledger_<stamp>[_N].json, never reusing a name
func createBackup(root, stamp string) (string, *os.File, error) {
	for i := 0; ; i++ {
		name := fmt.Sprintf("ledger_%s.json", stamp)
		if i > 0 {
			name = fmt.Sprintf("ledger_%s_%d.json", stamp, i)
		}
		path := filepath.Join(root, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			return path, f, nil
		}
		if !os.IsExist(err) {
			return "", nil, herrors.Wrap(herrors.ErrorTypeIO, err, "create backup file")
		}
	}
}
