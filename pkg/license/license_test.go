package license

import (
	"encoding/json"
	"io"
	stdlog "log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// memStore builds an unconfigured (memory-only) store with a fixed clock.
func memStore(t *testing.T, now time.Time) *Store {
	t.Helper()
	s := New("", "", nil)
	s.now = func() time.Time { return now }
	return s
}

func TestAdminBypassCaseInsensitive(t *testing.T) {
	s := memStore(t, time.Now())

	for _, name := range []string{"admin", "Admin", "ADMIN"} {
		ok, _ := s.Check(name)
		if !ok {
			t.Fatalf("expected admin %q to pass check", name)
		}
	}
}

func TestCheckUnknownUser(t *testing.T) {
	s := memStore(t, time.Now())

	ok, msg := s.Check("joaosilva")
	if ok {
		t.Fatalf("expected unknown user to fail, got %q", msg)
	}
}

func TestAddThenCheck(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := memStore(t, now)

	expiry := s.Add("JoaoSilva", 7)
	if want := now.Add(7 * 24 * time.Hour); !expiry.Equal(want) {
		t.Fatalf("expected expiry %v, got %v", want, expiry)
	}

	// Lookup is case-insensitive on the stored key.
	ok, msg := s.Check("joaosilva")
	if !ok {
		t.Fatalf("expected valid license, got %q", msg)
	}
}

func TestExpiryBoundary(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := memStore(t, now)
	s.Add("alice", 7)

	// One second before expiry: valid with 0 whole days left.
	s.now = func() time.Time { return now.Add(7*24*time.Hour - time.Second) }
	ok, msg := s.Check("alice")
	if !ok {
		t.Fatalf("expected license still valid, got %q", msg)
	}
	if msg != "✅ Licença válida - 0 dias restantes" {
		t.Fatalf("expected 0 days left, got %q", msg)
	}

	// One second past expiry: invalid, and the entry is revoked.
	s.now = func() time.Time { return now.Add(7*24*time.Hour + time.Second) }
	ok, _ = s.Check("alice")
	if ok {
		t.Fatalf("expected expired license to fail")
	}
	if _, exists := s.licenses["alice"]; exists {
		t.Fatalf("expected expired license to be removed")
	}
}

func TestRevoke(t *testing.T) {
	s := memStore(t, time.Now())
	s.Add("bob", 7)

	if !s.Revoke("Bob") {
		t.Fatalf("expected revoke to find the license")
	}
	if s.Revoke("bob") {
		t.Fatalf("expected second revoke to report absence")
	}
}

func TestListActiveFiltersExpired(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := memStore(t, now)
	s.Add("fresh", 7)
	s.licenses["stale"] = License{
		ExpiryDate:   now.Add(-time.Hour),
		CreatedAt:    now.Add(-8 * 24 * time.Hour),
		DurationDays: 7,
	}

	active := s.ListActive()
	if len(active) != 1 {
		t.Fatalf("expected 1 active license, got %d", len(active))
	}
	if _, ok := active["fresh"]; !ok {
		t.Fatalf("expected fresh license listed, got %v", active)
	}
}

func TestStats(t *testing.T) {
	now := time.Now()
	s := memStore(t, now)
	s.Add("carol", 7)

	stats := s.GetStats()
	if stats.Total != 1 || stats.Active != 1 {
		t.Fatalf("unexpected counts: %+v", stats)
	}
	if stats.Expired != 0 {
		t.Fatalf("expired count is always zero, got %d", stats.Expired)
	}
	if stats.GistConfigured {
		t.Fatalf("expected unconfigured store")
	}
	if stats.Admins == 0 {
		t.Fatalf("expected default admin list")
	}
}

func TestInfo(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := memStore(t, now)
	s.Add("dave", 30)

	info := s.Info("dave")
	if info == nil {
		t.Fatalf("expected info for licensed user")
	}
	if info.Admin || info.DurationDays != 30 || info.DaysLeft != 30 {
		t.Fatalf("unexpected info: %+v", info)
	}

	admin := s.Info("admin")
	if admin == nil || !admin.Admin {
		t.Fatalf("expected synthetic admin info, got %+v", admin)
	}

	if s.Info("nobody") != nil {
		t.Fatalf("expected nil info for unknown user")
	}
}

// gistStore builds a configured store pointed at a stub gist API, with fast
// retries so failure paths don't slow the suite down.
func gistStore(t *testing.T, now time.Time, srv *httptest.Server) *Store {
	t.Helper()

	client := retryablehttp.NewClient()
	client.Logger = stdlog.New(io.Discard, "", 0)
	client.RetryMax = 1
	client.RetryWaitMin = time.Millisecond
	client.RetryWaitMax = 2 * time.Millisecond
	client.HTTPClient.Timeout = 2 * time.Second

	return &Store{
		gistID:   "gist-id",
		token:    "secret",
		admins:   defaultAdmins,
		licenses: make(map[string]License),
		client:   client,
		apiBase:  srv.URL,
		now:      func() time.Time { return now },
	}
}

func serveGistDocument(w http.ResponseWriter, licenses string) {
	json.NewEncoder(w).Encode(map[string]interface{}{
		"files": map[string]interface{}{
			"licenses.json": map[string]string{"content": licenses},
		},
	})
}

const joaoDocument = `{"joao":{"expiry_date":"2025-03-08T12:00:00","created_at":"2025-03-01T12:00:00","duration_days":7}}`

func TestLoadFromGist(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		serveGistDocument(w, joaoDocument)
	}))
	defer srv.Close()

	now := time.Date(2025, 3, 2, 12, 0, 0, 0, time.UTC)
	s := gistStore(t, now, srv)

	ok, msg := s.Check("joao")
	if !ok {
		t.Fatalf("expected license loaded from gist, got %q", msg)
	}
	if gotAuth != "token secret" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
}

func TestGistFailureKeepsMirror(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		serveGistDocument(w, joaoDocument)
	}))
	defer srv.Close()

	now := time.Date(2025, 3, 2, 12, 0, 0, 0, time.UTC)
	s := gistStore(t, now, srv)

	if ok, msg := s.Check("joao"); !ok {
		t.Fatalf("expected initial load to succeed, got %q", msg)
	}

	// A failing remote must not wipe the last-known mirror.
	fail.Store(true)
	if ok, msg := s.Check("joao"); !ok {
		t.Fatalf("expected mirror to survive remote failure, got %q", msg)
	}
}

func TestGrantSurvivesFailedGistWrite(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := gistStore(t, now, srv)

	expiry := s.Add("maria", 7)
	if want := now.Add(7 * 24 * time.Hour); !expiry.Equal(want) {
		t.Fatalf("expected expiry %v, got %v", want, expiry)
	}
	if ok, msg := s.Check("maria"); !ok {
		t.Fatalf("expected in-memory grant to stand, got %q", msg)
	}
}

func TestSaveToGistPatchesDocument(t *testing.T) {
	var method, body atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPatch {
			method.Store(r.Method)
			raw, _ := io.ReadAll(r.Body)
			body.Store(string(raw))
		}
		serveGistDocument(w, "{}")
	}))
	defer srv.Close()

	s := gistStore(t, time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC), srv)
	s.Add("maria", 7)

	if method.Load() != http.MethodPatch {
		t.Fatalf("expected a PATCH to the gist, got %v", method.Load())
	}
	got, _ := body.Load().(string)
	if !strings.Contains(got, "licenses.json") || !strings.Contains(got, "maria") {
		t.Fatalf("unexpected patch payload: %s", got)
	}
}

func TestParseISO(t *testing.T) {
	cases := []string{
		"2025-03-01T12:00:00",
		"2025-03-01T12:00:00.123456",
		"2025-03-01T12:00:00Z",
	}
	for _, c := range cases {
		if _, err := parseISO(c); err != nil {
			t.Fatalf("expected %q to parse: %v", c, err)
		}
	}
	if _, err := parseISO("01/03/2025"); err == nil {
		t.Fatalf("expected non-ISO date to fail")
	}
}
