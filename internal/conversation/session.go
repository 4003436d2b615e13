// Package conversation holds the in-memory state of the conversation open
// in the client: its ordered turns and what is known about its server record.
package conversation

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	// RoleNotice marks client-generated messages (e.g. the apology shown
	// after a failed send). Notices are displayed but never persisted.
	RoleNotice Role = "notice"
)

// Turn is one immutable message in a conversation.
type Turn struct {
	ID        string
	Role      Role
	Text      string
	CreatedAt time.Time
}

// NewTurn creates a turn with a fresh time-ordered id.
func NewTurn(role Role, text string) Turn {
	return Turn{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Role:      role,
		Text:      text,
		CreatedAt: time.Now(),
	}
}

// Persistable reports whether the turn belongs in the server transcript.
func (t Turn) Persistable() bool {
	return t.Role == RoleUser || t.Role == RoleAssistant
}

// Phase is the lifecycle position of a session.
type Phase int

const (
	// PhaseEmpty: no turns and no server record.
	PhaseEmpty Phase = iota
	// PhaseLocalOnly: turns exist but the server id is not known yet.
	PhaseLocalOnly
	// PhasePersisted: the server id is known.
	PhasePersisted
)

func (p Phase) String() string {
	switch p {
	case PhaseEmpty:
		return "empty"
	case PhaseLocalOnly:
		return "local-only"
	case PhasePersisted:
		return "persisted"
	default:
		return "unknown"
	}
}

// Epoch identifies one incarnation of the session. Every Reset and Load
// starts a new epoch; writes tagged with an older epoch are dropped.
type Epoch uint64

// Snapshot is a consistent copy of the session state.
type Snapshot struct {
	Epoch    Epoch
	LocalID  string
	ServerID string
	Title    string
	Turns    []Turn
}

// Phase derives the lifecycle phase of the snapshot.
func (s Snapshot) Phase() Phase {
	switch {
	case s.ServerID != "":
		return PhasePersisted
	case len(s.Turns) > 0:
		return PhaseLocalOnly
	default:
		return PhaseEmpty
	}
}

// Session is the conversation currently open in the client.
// All methods are safe for concurrent use.
type Session struct {
	mu       sync.RWMutex
	epoch    Epoch
	localID  string
	serverID string
	title    string
	turns    []Turn
}

// NewSession returns an empty session.
func NewSession() *Session {
	return &Session{localID: newLocalID()}
}

func newLocalID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Append adds a turn and returns the epoch it was appended under.
func (s *Session) Append(t Turn) Epoch {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, t)
	return s.epoch
}

// AppendIn adds a turn only if the session is still in epoch e.
func (s *Session) AppendIn(e Epoch, t Turn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != e {
		return false
	}
	s.turns = append(s.turns, t)
	return true
}

// Reconcile records server-side identity learned in epoch e. The server id
// is only taken if none is known yet; once set it never changes. An empty
// title leaves the current title untouched. Reports whether the session
// was still in epoch e.
func (s *Session) Reconcile(e Epoch, serverID, title string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != e {
		return false
	}
	if s.serverID == "" && serverID != "" {
		s.serverID = serverID
	}
	if title != "" {
		s.title = title
	}
	return true
}

// Reset discards everything and starts a new epoch.
func (s *Session) Reset() Epoch {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	s.localID = newLocalID()
	s.serverID = ""
	s.title = ""
	s.turns = nil
	return s.epoch
}

// Load replaces the session with an existing server record.
func (s *Session) Load(serverID, title string, turns []Turn) Epoch {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	s.localID = newLocalID()
	s.serverID = serverID
	s.title = title
	s.turns = slices.Clone(turns)
	return s.epoch
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Epoch:    s.epoch,
		LocalID:  s.localID,
		ServerID: s.serverID,
		Title:    s.title,
		Turns:    slices.Clone(s.turns),
	}
}

// Turns returns a copy of the turn sequence.
func (s *Session) Turns() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.turns)
}

// ServerID returns the server id, or "" if not yet known.
func (s *Session) ServerID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.serverID
}

// Title returns the known title.
func (s *Session) Title() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.title
}

// Epoch returns the current epoch.
func (s *Session) Epoch() Epoch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}

// Phase returns the current lifecycle phase.
func (s *Session) Phase() Phase {
	return s.Snapshot().Phase()
}
