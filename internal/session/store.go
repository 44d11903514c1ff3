package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/sjoeboo/hangar-bridge/internal/logging"
)

// EventStop is the lifecycle event Claude emits when a turn finished and the session is idle.
const EventStop = "Stop"

// maxBindings caps the number of message bindings kept on disk. Oldest message ids go first.
const maxBindings = 1000

// Mapping is the JSON structure of the session state file.
//
//	{"by_msg": {"<message id>": "<session id>"},
//	 "sessions": {"<session id>": {"cwd": "...", "event": "Stop"}}}
type Mapping struct {
	ByMsg    map[string]string         `json:"by_msg"`
	Sessions map[string]*SessionRecord `json:"sessions"`
}

// SessionRecord is the persisted metadata for one session
type SessionRecord struct {
	Cwd       string `json:"cwd"`
	Event     string `json:"event"`
	UpdatedAt int64  `json:"ts,omitempty"`
}

// Session is a resolved assistant session
type Session struct {
	ID        string
	Cwd       string
	LastEvent string
	UpdatedAt time.Time
}

// Stopped reports whether the last lifecycle event says the assistant finished its turn.
// The event can be stale; callers must re-check liveness.
func (s *Session) Stopped() bool {
	return s.LastEvent == EventStop
}

// ShortID returns the first 8 characters of the session id for display
func (s *Session) ShortID() string {
	return ShortID(s.ID)
}

// ShortID truncates a session id for display
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func emptyMapping() *Mapping {
	return &Mapping{
		ByMsg:    make(map[string]string),
		Sessions: make(map[string]*SessionRecord),
	}
}

// Store reads (and, for the hook side, writes) the session state file.
// Reads are advisory: any failure yields an empty mapping.
type Store struct {
	path string
	log  *slog.Logger

	// writeMu serialises read-modify-write cycles
	writeMu sync.Mutex

	cacheMu  sync.RWMutex
	cache    *Mapping
	cacheGen uint64 // bumped on every invalidation
	watching bool
}

// NewStore creates a store for the mapping file at path
func NewStore(path string, log *slog.Logger) *Store {
	if log == nil {
		log = logging.Discard()
	}
	return &Store{path: path, log: log}
}

// Path returns the mapping file path
func (s *Store) Path() string {
	return s.path
}

// Load returns the persisted mapping. On any read or parse failure it returns an
// empty mapping. While a watcher is running the last good read is cached.
func (s *Store) Load() *Mapping {
	s.cacheMu.RLock()
	if s.watching && s.cache != nil {
		m := s.cache
		s.cacheMu.RUnlock()
		return m
	}
	gen := s.cacheGen
	s.cacheMu.RUnlock()

	m, err := s.read()
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("store_load_failed", slog.String("path", s.path), slog.String("error", err.Error()))
		}
		return emptyMapping()
	}

	s.cacheMu.Lock()
	if s.watching && s.cacheGen == gen {
		s.cache = m
	}
	s.cacheMu.Unlock()
	return m
}

func (s *Store) read() (*Mapping, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	m := emptyMapping()
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	if m.ByMsg == nil {
		m.ByMsg = make(map[string]string)
	}
	if m.Sessions == nil {
		m.Sessions = make(map[string]*SessionRecord)
	}
	return m, nil
}

// Resolve looks up the session bound to a chat message id.
// Returns ("", nil) when no binding exists and (id, nil) when the binding
// points at a session that has no record.
func (s *Store) Resolve(messageID int) (string, *Session) {
	m := s.Load()
	sessionID := m.ByMsg[strconv.Itoa(messageID)]
	if sessionID == "" {
		return "", nil
	}
	return sessionID, m.session(sessionID)
}

// Session returns the session record for id, or nil
func (s *Store) Session(id string) *Session {
	return s.Load().session(id)
}

// Sessions returns all known sessions, most recently updated first
func (s *Store) Sessions() []*Session {
	m := s.Load()
	out := make([]*Session, 0, len(m.Sessions))
	for id := range m.Sessions {
		if sess := m.session(id); sess != nil {
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

func (m *Mapping) session(id string) *Session {
	rec, ok := m.Sessions[id]
	if !ok || rec == nil {
		return nil
	}
	sess := &Session{
		ID:        id,
		Cwd:       rec.Cwd,
		LastEvent: rec.Event,
	}
	// Records written without these fields behave like an idle session in the home dir
	if sess.Cwd == "" {
		sess.Cwd, _ = os.UserHomeDir()
	}
	if sess.LastEvent == "" {
		sess.LastEvent = EventStop
	}
	if rec.UpdatedAt > 0 {
		sess.UpdatedAt = time.Unix(rec.UpdatedAt, 0)
	}
	return sess
}

// RecordEvent stores the latest lifecycle event for a session
func (s *Store) RecordEvent(sessionID, cwd, event string) error {
	if sessionID == "" {
		return fmt.Errorf("record event: empty session id")
	}
	return s.update(func(m *Mapping) {
		rec := m.Sessions[sessionID]
		if rec == nil {
			rec = &SessionRecord{}
			m.Sessions[sessionID] = rec
		}
		if cwd != "" {
			rec.Cwd = cwd
		}
		rec.Event = event
		rec.UpdatedAt = time.Now().Unix()
	})
}

// Bind associates a sent chat message with a session so replies can be routed back
func (s *Store) Bind(messageID int, sessionID string) error {
	if messageID == 0 || sessionID == "" {
		return fmt.Errorf("bind: invalid message id %d or session id %q", messageID, sessionID)
	}
	return s.update(func(m *Mapping) {
		m.ByMsg[strconv.Itoa(messageID)] = sessionID
		pruneBindings(m, maxBindings)
	})
}

func pruneBindings(m *Mapping, max int) {
	if len(m.ByMsg) <= max {
		return
	}
	ids := make([]int, 0, len(m.ByMsg))
	for k := range m.ByMsg {
		id, err := strconv.Atoi(k)
		if err != nil {
			delete(m.ByMsg, k)
			continue
		}
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for i := 0; i < len(ids)-max; i++ {
		delete(m.ByMsg, strconv.Itoa(ids[i]))
	}
}

// update runs a read-modify-write cycle with an atomic rename.
// A corrupt file is replaced rather than blocking hook writes forever.
func (s *Store) update(fn func(m *Mapping)) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	m, err := s.read()
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("store_replacing_unreadable_file", slog.String("path", s.path), slog.String("error", err.Error()))
		}
		m = emptyMapping()
	}
	fn(m)

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename %s: %w", s.path, err)
	}

	s.cacheMu.Lock()
	if s.watching {
		s.cache = m
	}
	s.cacheMu.Unlock()
	return nil
}

func (s *Store) invalidate() {
	s.cacheMu.Lock()
	s.cache = nil
	s.cacheGen++
	s.cacheMu.Unlock()
}

func (s *Store) setWatching(on bool) {
	s.cacheMu.Lock()
	s.watching = on
	s.cache = nil
	s.cacheGen++
	s.cacheMu.Unlock()
}
