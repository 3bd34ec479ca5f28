package memory

import (
	"testing"

	"proctored-quiz-engine/internal/app"
)

func TestSessionStoreLifecycle(t *testing.T) {
	store := NewSessionStore()

	store.Put(&app.Session{ID: "sess-1", StudentID: "stu-1"})
	session, ok := store.Get("sess-1")
	if !ok || session.StudentID != "stu-1" {
		t.Fatalf("expected session present, got %+v", session)
	}

	store.Delete("sess-1")
	if _, ok := store.Get("sess-1"); ok {
		t.Fatalf("expected session removed")
	}
	if store.Len() != 0 {
		t.Fatalf("expected empty store")
	}
}
