// Package session owns the recording-session lifecycle: the per-session
// output directory, one StreamLog per declared stream, and the write lock
// that decides whether incoming samples are persisted.
package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/sencol/hub/internal/clock"
	"github.com/sencol/hub/internal/stream"
)

const timestampLayout = "20060102_150405"

// Options configures a Manager.
type Options struct {
	DataDir string
	Streams []stream.Key // declared streams; one log each per session
	// AutoUnlock leaves the session unlocked after Begin. When false a new
	// session starts locked and waits for an explicit Unlock.
	AutoUnlock bool
	// Locked is the initial lock state before any session exists.
	Locked bool
	// FlushInterval pushes buffered rows to disk periodically so a crash
	// while unlocked loses at most one interval of data. Zero disables it.
	FlushInterval time.Duration
	Clock         clock.Clock
	Logger        zerolog.Logger
}

// Info describes a session for diagnostics.
type Info struct {
	ID        string    `json:"id"`
	Dir       string    `json:"dir"`
	CreatedAt time.Time `json:"createdAt"`
	Streams   []string  `json:"streams"`
	Locked    bool      `json:"locked"`
}

// StreamFailure is one stream whose log could not be created.
type StreamFailure struct {
	Stream stream.Key
	Err    error
}

// BeginResult reports the outcome of Begin. A session is always created;
// Failed lists the streams that will not be recorded in it and CloseErr
// carries errors from closing the previous session.
type BeginResult struct {
	Info     Info
	Failed   []StreamFailure
	CloseErr error
}

// OK reports whether every stream log was created.
func (r BeginResult) OK() bool { return len(r.Failed) == 0 }

type activeSession struct {
	id      string
	dir     string
	created time.Time
	logs    map[stream.Key]*StreamLog
}

// Manager is the sole writer of the lock flag. StreamLogs read the flag
// through a shared pointer at write time.
type Manager struct {
	mu       sync.RWMutex // guards current; held for reading during writes
	lockMu   sync.Mutex   // serializes lock transitions and hook calls
	dataDir  string
	streams  []stream.Key
	declared map[stream.Key]bool
	auto     bool
	clock    clock.Clock
	log      zerolog.Logger
	locked   *atomic.Bool
	current  *activeSession
	hooks    hookRegistry

	flushMu    sync.Mutex
	flushEvery time.Duration
	flushTimer clock.Timer
	closed     bool
}

// NewManager creates a manager with no open session.
func NewManager(opts Options) *Manager {
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}
	m := &Manager{
		dataDir:  opts.DataDir,
		streams:  append([]stream.Key(nil), opts.Streams...),
		declared: make(map[stream.Key]bool, len(opts.Streams)),
		auto:     opts.AutoUnlock,
		clock:    clk,
		log:      opts.Logger,
		locked:   new(atomic.Bool),

		flushEvery: opts.FlushInterval,
	}
	for _, k := range opts.Streams {
		m.declared[k] = true
	}
	m.locked.Store(opts.Locked)
	if m.flushEvery > 0 {
		m.scheduleFlush()
	}
	return m
}

func (m *Manager) scheduleFlush() {
	m.flushMu.Lock()
	defer m.flushMu.Unlock()
	if m.closed {
		return
	}
	m.flushTimer = m.clock.AfterFunc(m.flushEvery, func() {
		if err := m.Flush(); err != nil {
			m.log.Error().Err(err).Msg("periodic flush")
		}
		m.scheduleFlush()
	})
}

// Flush pushes buffered rows of every open log to disk.
func (m *Manager) Flush() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return nil
	}
	var errs []error
	for _, l := range m.current.logs {
		if err := l.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close stops periodic flushing and ends the current session.
func (m *Manager) Close() error {
	m.flushMu.Lock()
	m.closed = true
	if m.flushTimer != nil {
		m.flushTimer.Stop()
		m.flushTimer = nil
	}
	m.flushMu.Unlock()
	return m.End()
}

// Register adds a hook. Hooks run in registration order.
func (m *Manager) Register(h Hook) {
	m.hooks.add(h)
}

// Locked reports the current lock flag.
func (m *Manager) Locked() bool { return m.locked.Load() }

// Begin closes any open session and starts a new one in
// <data_dir>/<prefix>_<timestamp>. It never fails as a whole: streams whose
// logs could not be created are listed in the result.
func (m *Manager) Begin(prefix string) BeginResult {
	if !m.locked.Load() {
		m.Lock()
	}

	m.mu.Lock()
	var res BeginResult
	if m.current != nil {
		res.CloseErr = m.closeLocked()
	}

	now := m.clock.Now()
	id, dir, err := m.makeDir(prefix + "_" + now.Format(timestampLayout))
	s := &activeSession{
		id:      id,
		dir:     dir,
		created: now,
		logs:    make(map[stream.Key]*StreamLog, len(m.streams)),
	}
	for _, key := range m.streams {
		if err != nil {
			res.Failed = append(res.Failed, StreamFailure{
				Stream: key,
				Err:    &LogIOError{Stream: key.String(), Op: "create directory", Err: err},
			})
			continue
		}
		l, lerr := openStreamLog(dir, id, key, m.locked)
		if lerr != nil {
			res.Failed = append(res.Failed, StreamFailure{Stream: key, Err: lerr})
			continue
		}
		s.logs[key] = l
	}
	m.current = s
	res.Info = m.infoLocked()
	m.mu.Unlock()

	for _, f := range res.Failed {
		m.log.Error().Err(f.Err).Str("stream", f.Stream.String()).Str("session", id).Msg("stream log unavailable for session")
	}
	if res.CloseErr != nil {
		m.log.Error().Err(res.CloseErr).Msg("closing previous session")
	}
	m.log.Info().Str("session", id).Str("dir", dir).Int("streams", len(s.logs)).Msg("session started")

	if m.auto {
		m.Unlock()
	}
	res.Info.Locked = m.locked.Load()
	return res
}

// makeDir creates a fresh directory for name, appending a numeric suffix
// when a directory of that name already exists.
func (m *Manager) makeDir(name string) (string, string, error) {
	if err := os.MkdirAll(m.dataDir, 0o755); err != nil {
		return name, filepath.Join(m.dataDir, name), err
	}
	id := name
	for n := 2; ; n++ {
		dir := filepath.Join(m.dataDir, id)
		err := os.Mkdir(dir, 0o755)
		if err == nil {
			return id, dir, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return id, dir, err
		}
		id = fmt.Sprintf("%s_%d", name, n)
	}
}

// Lock stops persistence, flushes open logs, and notifies hooks.
func (m *Manager) Lock() {
	m.lockMu.Lock()
	defer m.lockMu.Unlock()

	m.locked.Store(true)

	if err := m.Flush(); err != nil {
		m.log.Error().Err(err).Msg("flushing stream logs on lock")
	}

	m.log.Info().Msg("recording locked")
	m.hooks.fire(m.log, "lock", Hook.OnLock)
}

// Unlock resumes persistence and notifies hooks.
func (m *Manager) Unlock() {
	m.lockMu.Lock()
	defer m.lockMu.Unlock()

	m.locked.Store(false)
	m.log.Info().Msg("recording unlocked")
	m.hooks.fire(m.log, "unlock", Hook.OnUnlock)
}

// End flushes and closes every log of the current session and clears it.
func (m *Manager) End() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	id := m.current.id
	err := m.closeLocked()
	m.log.Info().Str("session", id).Msg("session ended")
	return err
}

// closeLocked closes every log, collecting errors. Caller holds m.mu.
func (m *Manager) closeLocked() error {
	var errs []error
	for _, l := range m.current.logs {
		if err := l.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	m.current = nil
	return errors.Join(errs...)
}

// Record writes rec to its stream's log. It is a no-op when no session is
// open, when the session is locked, or when the stream's log failed to
// open in this session.
func (m *Manager) Record(rec stream.Record) error {
	if !m.declared[rec.Key] {
		return fmt.Errorf("stream %s is not declared", rec.Key)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return nil
	}
	l, ok := m.current.logs[rec.Key]
	if !ok {
		return nil
	}
	return l.Write(rec)
}

// Current returns the open session, if any.
func (m *Manager) Current() (Info, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return Info{}, false
	}
	return m.infoLocked(), true
}

// Log returns the current session's log for key.
func (m *Manager) Log(key stream.Key) (*StreamLog, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return nil, false
	}
	l, ok := m.current.logs[key]
	return l, ok
}

func (m *Manager) infoLocked() Info {
	info := Info{
		ID:        m.current.id,
		Dir:       m.current.dir,
		CreatedAt: m.current.created,
		Locked:    m.locked.Load(),
	}
	for _, k := range m.streams {
		if _, ok := m.current.logs[k]; ok {
			info.Streams = append(info.Streams, k.String())
		}
	}
	return info
}
