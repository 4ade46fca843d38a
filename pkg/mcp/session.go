package mcp

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// maxMCPSessions bounds the number of concurrent transport sessions before
// the oldest (by last-seen) is evicted.
const maxMCPSessions = 1000

// MCPSession is the transport-side record of one external MCP client's
// logical connection, identified by an opaque Mcp-Session-Id.
type MCPSession struct {
	ID                    string
	NegotiatedProtocolVer string
	ClientInfo            ClientInfo
	Initialized           bool
	CreatedAt             time.Time
	LastSeen              time.Time
}

// SessionManager owns every MCPSession for a running gateway.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*MCPSession
}

// NewSessionManager creates an empty session manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{sessions: make(map[string]*MCPSession)}
}

// Create mints a new session for a successful initialize call. If the
// session count is at capacity, the oldest session is evicted first.
func (m *SessionManager) Create(clientInfo ClientInfo, negotiatedVersion string) *MCPSession {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sessions) >= maxMCPSessions {
		m.evictOldestLocked()
	}

	now := time.Now()
	s := &MCPSession{
		ID:                    generateSessionID(),
		NegotiatedProtocolVer: negotiatedVersion,
		ClientInfo:            clientInfo,
		CreatedAt:             now,
		LastSeen:              now,
	}
	m.sessions[s.ID] = s
	return s
}

func (m *SessionManager) evictOldestLocked() {
	var oldestID string
	var oldestTime time.Time
	for id, s := range m.sessions {
		if oldestID == "" || s.LastSeen.Before(oldestTime) {
			oldestID = id
			oldestTime = s.LastSeen
		}
	}
	if oldestID != "" {
		delete(m.sessions, oldestID)
	}
}

// Get retrieves a session by id, or nil if unknown.
func (m *SessionManager) Get(id string) *MCPSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[id]
}

// MarkInitialized flips the initialized flag, called on
// notifications/initialized.
func (m *SessionManager) MarkInitialized(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.Initialized = true
		s.LastSeen = time.Now()
	}
}

// Touch updates a session's last-seen time.
func (m *SessionManager) Touch(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.LastSeen = time.Now()
	}
}

// Delete destroys a session. Returns true if it existed.
func (m *SessionManager) Delete(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return false
	}
	delete(m.sessions, id)
	return true
}

// Count returns the number of live sessions.
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Cleanup removes sessions whose last-seen time is older than maxAge, for
// periodic background hygiene. Returns the number removed.
func (m *SessionManager) Cleanup(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for id, s := range m.sessions {
		if s.LastSeen.Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

func generateSessionID() string {
	return uuid.New().String()
}
