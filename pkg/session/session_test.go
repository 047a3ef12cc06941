package session

import (
	"testing"
	"time"
)

func TestCreateGetClear(t *testing.T) {
	r := NewRegistry()

	s := r.Create("joao", 42, "123456SP")
	if s.OAB != "123456SP" {
		t.Fatalf("unexpected session: %+v", s)
	}

	if got := r.Get("joao", 42); got != s {
		t.Fatalf("expected same session back")
	}
	if got := r.Get("joao", 99); got != nil {
		t.Fatalf("expected no session for other chat, got %+v", got)
	}

	r.Clear("joao", 42)
	if got := r.Get("joao", 42); got != nil {
		t.Fatalf("expected cleared session, got %+v", got)
	}
}

func TestCreateReplaces(t *testing.T) {
	r := NewRegistry()

	first := r.Create("joao", 42, "123456SP")
	second := r.Create("joao", 42, "654321SP")

	got := r.Get("joao", 42)
	if got == first || got != second {
		t.Fatalf("expected replacement session, got %+v", got)
	}
}

func TestTimeoutBoundary(t *testing.T) {
	r := NewRegistry()
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return t0 }

	r.Create("joao", 42, "123456SP")

	r.now = func() time.Time { return t0.Add(3599 * time.Second) }
	if r.Get("joao", 42) == nil {
		t.Fatalf("expected session alive at 3599s")
	}

	r.now = func() time.Time { return t0.Add(3601 * time.Second) }
	if r.Get("joao", 42) != nil {
		t.Fatalf("expected session expired at 3601s")
	}

	// Expiry is discovered on read, so the entry is gone now.
	r.now = func() time.Time { return t0 }
	if r.Get("joao", 42) != nil {
		t.Fatalf("expected purged session to stay gone")
	}
}

func TestSessionsFor(t *testing.T) {
	r := NewRegistry()
	r.Create("joao", 1, "123456SP")
	r.Create("joao", 2, "123456SP")
	r.Create("maria", 3, "654321SP")

	if got := r.SessionsFor("joao"); len(got) != 2 {
		t.Fatalf("expected 2 sessions for joao, got %d", len(got))
	}
}
