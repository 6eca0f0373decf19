package core

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrSessionNotFound is returned by SessionStore.Get when no session
	// exists for the given identifier.
	ErrSessionNotFound = errors.New("session not found")

	// ErrStoreUnavailable is returned when the backing store cannot be
	// reached. Callers degrade the workflow to inactive instead of failing
	// the turn.
	ErrStoreUnavailable = errors.New("session store unavailable")
)

// Session is the per-user conversational container: durable workflow state
// plus an ordered conversation history. It is safe for concurrent access,
// though a session's requests are effectively sequential from the user's
// perspective.
//
// Contract:
//   - Mutations update the Updated timestamp
//   - History returns a defensive copy to avoid external mutation
//   - Clone performs deep copies of maps/slices for safe divergence.
type Session struct {
	ID       string            `json:"id"`
	Workflow *WorkflowState    `json:"workflow,omitempty"`
	History  []Turn            `json:"history"`
	Created  time.Time         `json:"created"`
	Updated  time.Time         `json:"updated"`
	Metadata map[string]string `json:"metadata"`
	mu       sync.RWMutex
}

// NewSession creates a new session with the given ID and inactive workflow.
func NewSession(id string) *Session {
	now := time.Now()
	return &Session{ID: id, Workflow: NewWorkflowState(), History: []Turn{}, Created: now, Updated: now, Metadata: map[string]string{}}
}

// WorkflowState returns the session's workflow state, initializing an
// inactive one if the session was decoded without it.
func (s *Session) WorkflowState() *WorkflowState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Workflow == nil {
		s.Workflow = NewWorkflowState()
	}
	return s.Workflow
}

// SetWorkflowState replaces the session's workflow state wholesale. Used on
// workflow restart and completion.
func (s *Session) SetWorkflowState(ws *WorkflowState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Workflow = ws
	s.Updated = time.Now()
}

// AppendTurn appends a turn to the conversation history.
func (s *Session) AppendTurn(t Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.History = append(s.History, t)
	s.Updated = time.Now()
}

// Turns returns a defensive copy of the full conversation history.
func (s *Session) Turns() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	turns := make([]Turn, len(s.History))
	copy(turns, s.History)
	return turns
}

// RecentTurns returns the most recent window of turns. Pinned turns inside
// the retained window are always kept; pinned turns that would fall off with
// the window are retained preferentially over older unpinned content so that
// injected workflow-state blocks survive truncation.
func (s *Session) RecentTurns(window int) []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if window <= 0 || len(s.History) <= window {
		turns := make([]Turn, len(s.History))
		copy(turns, s.History)
		return turns
	}
	cut := len(s.History) - window
	var pinned []Turn
	for _, t := range s.History[:cut] {
		if t.Pinned {
			pinned = append(pinned, t)
		}
	}
	res := make([]Turn, 0, len(pinned)+window)
	res = append(res, pinned...)
	res = append(res, s.History[cut:]...)
	return res
}

// ClearHistory drops the conversation history while keeping the session alive.
func (s *Session) ClearHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.History = nil
	s.Updated = time.Now()
}

// Clone returns a deep copy of the session safe for independent mutation.
func (s *Session) Clone() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clone := &Session{ID: s.ID, History: make([]Turn, len(s.History)), Created: s.Created, Updated: s.Updated, Metadata: make(map[string]string, len(s.Metadata))}
	copy(clone.History, s.History)
	if s.Workflow != nil {
		clone.Workflow = s.Workflow.Clone()
	}
	for k, v := range s.Metadata {
		clone.Metadata[k] = v
	}
	return clone
}

// SessionStore persists sessions across stateless request handlers. No
// process may trust a local cache as source of truth; writes are
// last-writer-wins.
type SessionStore interface {
	// Get returns the session for id or ErrSessionNotFound. Implementations
	// return ErrStoreUnavailable (possibly wrapped) when the backend is
	// unreachable.
	Get(ctx context.Context, id string) (*Session, error)

	// Put stores the session snapshot, replacing any previous version.
	Put(ctx context.Context, sess *Session) error

	// Clear removes the session entirely.
	Clear(ctx context.Context, id string) error
}
