package mcp

import (
	"testing"
	"time"
)

func TestSessionManager_CreateGetDelete(t *testing.T) {
	m := NewSessionManager()
	s := m.Create(ClientInfo{Name: "t"}, "2025-06-18")
	if s.ID == "" {
		t.Fatal("Create returned empty session id")
	}
	if got := m.Get(s.ID); got == nil || got.ID != s.ID {
		t.Fatalf("Get(%q) = %+v, want session", s.ID, got)
	}

	m.MarkInitialized(s.ID)
	if got := m.Get(s.ID); !got.Initialized {
		t.Fatal("MarkInitialized did not flip Initialized")
	}

	if !m.Delete(s.ID) {
		t.Fatal("Delete should report true for an existing session")
	}
	if m.Get(s.ID) != nil {
		t.Fatal("session should be gone after Delete")
	}
	if m.Delete(s.ID) {
		t.Fatal("Delete should report false for an already-deleted session")
	}
}

func TestSessionManager_CleanupRemovesOnlyStale(t *testing.T) {
	m := NewSessionManager()
	stale := m.Create(ClientInfo{Name: "stale"}, "2025-06-18")
	fresh := m.Create(ClientInfo{Name: "fresh"}, "2025-06-18")
	stale.LastSeen = time.Now().Add(-time.Hour)

	if removed := m.Cleanup(30 * time.Minute); removed != 1 {
		t.Fatalf("Cleanup removed %d sessions, want 1", removed)
	}
	if m.Get(stale.ID) != nil {
		t.Error("stale session survived Cleanup")
	}
	if m.Get(fresh.ID) == nil {
		t.Error("fresh session was removed by Cleanup")
	}
	if m.Count() != 1 {
		t.Errorf("Count() = %d, want 1", m.Count())
	}
}

func TestSessionManager_DistinctIDsPerInitialize(t *testing.T) {
	m := NewSessionManager()
	a := m.Create(ClientInfo{}, "2025-06-18")
	b := m.Create(ClientInfo{}, "2025-06-18")
	if a.ID == b.ID {
		t.Fatal("two Create calls returned the same session id")
	}
}
