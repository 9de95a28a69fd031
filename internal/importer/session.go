package importer

// session.go tracks the state of running and recently finished imports.
// Sessions live in an injected SessionStore so single-instance deployments
// can use the in-memory store while multi-instance ones plug in Redis; the
// pipeline never touches a package-level map.

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// Session store errors.
var (
	ErrSessionNotFound = errors.New("import session not found")
	ErrAlreadyTerminal = errors.New("import session already finished")
)

// Status is the lifecycle state of an import session.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether the status is final. Terminal sessions never
// change state again; cancelling one is an error, not a transition.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Session is the polled state of one bulk import.
type Session struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Owner    string `json:"owner"`
	Mode     Mode   `json:"mode"`

	Status   Status `json:"status"`
	Progress int    `json:"progress"` // 0-100, monotonic

	// TotalRows may be a size-based estimate on large files; it is corrected
	// upward at end of stream but never decreased.
	TotalRows      int  `json:"totalRows"`
	EstimatedTotal bool `json:"estimatedTotal"`

	Imported   int `json:"imported"`
	Updated    int `json:"updated"`
	Duplicates int `json:"duplicates"`
	Skipped    int `json:"skipped"`
	Errors     int `json:"errors"`

	// ErrorSamples is a bounded sample of row errors, not the full list.
	ErrorSamples []RowError `json:"errorSamples,omitempty"`

	// Error holds the failure message for failed sessions.
	Error string `json:"error,omitempty"`

	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime,omitzero"`
}

// Duration returns how long the import has been running, or ran.
func (s *Session) Duration() time.Duration {
	if s.StartTime.IsZero() {
		return 0
	}
	end := s.EndTime
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(s.StartTime)
}

// setProgress recomputes the percentage from rows consumed. Progress only
// ever increases, even when the total was an under-estimate.
func (s *Session) setProgress(done int) {
	if s.TotalRows <= 0 {
		return
	}
	pct := done * 100 / s.TotalRows
	if pct > 100 {
		pct = 100
	}
	if pct > s.Progress {
		s.Progress = pct
	}
}

// applyResult folds cumulative batch counters into the session.
func (s *Session) applyResult(total BatchResult) {
	s.Imported = total.Imported
	s.Updated = total.Updated
	s.Duplicates = total.Duplicates
	s.Skipped = total.Skipped
	s.Errors = total.Errors
	s.ErrorSamples = total.RowErrors
	s.setProgress(total.Rows())
}

// SessionStore persists import sessions. Implementations must tolerate
// concurrent reads under single-writer mutation per session.
type SessionStore interface {
	// Put stores or replaces a session snapshot.
	Put(ctx context.Context, s *Session) error

	// Get returns a session snapshot or ErrSessionNotFound.
	Get(ctx context.Context, id string) (*Session, error)

	// Cancel transitions a non-terminal session to cancelled and returns the
	// updated snapshot. Terminal sessions yield ErrAlreadyTerminal.
	Cancel(ctx context.Context, id string) (*Session, error)

	// List returns up to limit sessions, most recently started first.
	List(ctx context.Context, limit int) ([]*Session, error)
}

// MemoryStore is the in-process SessionStore for single-instance
// deployments. Terminal sessions beyond the retention limit are pruned,
// oldest first.
type MemoryStore struct {
	mu        sync.RWMutex
	sessions  map[string]*Session
	retention int
}

// NewMemoryStore creates a store retaining at most retention terminal
// sessions.
func NewMemoryStore(retention int) *MemoryStore {
	if retention <= 0 {
		retention = 50
	}
	return &MemoryStore{
		sessions:  make(map[string]*Session),
		retention: retention,
	}
}

// Put implements SessionStore.
func (m *MemoryStore) Put(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *s
	m.sessions[s.ID] = &cp
	m.prune()
	return nil
}

// Get implements SessionStore.
func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

// Cancel implements SessionStore.
func (m *MemoryStore) Cancel(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if s.Status.Terminal() {
		return nil, ErrAlreadyTerminal
	}

	s.Status = StatusCancelled
	s.EndTime = time.Now()
	cp := *s
	return &cp, nil
}

// List implements SessionStore.
func (m *MemoryStore) List(_ context.Context, limit int) ([]*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		cp := *s
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StartTime.After(result[j].StartTime)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// prune drops the oldest terminal sessions beyond the retention limit.
// Caller holds the write lock.
func (m *MemoryStore) prune() {
	var terminal []*Session
	for _, s := range m.sessions {
		if s.Status.Terminal() {
			terminal = append(terminal, s)
		}
	}
	if len(terminal) <= m.retention {
		return
	}

	sort.Slice(terminal, func(i, j int) bool {
		return terminal[i].StartTime.Before(terminal[j].StartTime)
	})
	for _, s := range terminal[:len(terminal)-m.retention] {
		delete(m.sessions, s.ID)
	}
}
