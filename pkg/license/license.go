// Package license gates bot access. Licenses are keyed by lowercase telegram
// username and mirrored in memory from a GitHub Gist document; the gist is the
// source of truth but every operation keeps working on the last-known mirror
// when the remote is unreachable.
package license

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	stdlog "log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder7br/tjscope/internal/utils"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"
)

const (
	gistAPIBase  = "https://api.github.com"
	gistFileName = "licenses.json"
	DefaultDays  = 7
)

var defaultAdmins = []string{"coder7br", "admin", "teste"}

// License is one user's grant.
type License struct {
	ExpiryDate   time.Time
	CreatedAt    time.Time
	DurationDays int
}

// Active summarizes a still-valid license for listings.
type Active struct {
	ExpiryDate string
	DaysLeft   int
}

// Info is the per-user view returned for /licenca.
type Info struct {
	Username     string
	ExpiryDate   string
	CreatedAt    string
	DaysLeft     int
	DurationDays int
	Admin        bool
}

// Stats reports license system counters.
type Stats struct {
	Total          int
	Active         int
	Expired        int
	GistConfigured bool
	Admins         int
}

type Store struct {
	mu       sync.Mutex
	gistID   string
	token    string
	admins   []string
	licenses map[string]License
	client   *retryablehttp.Client
	apiBase  string
	now      func() time.Time
}

// New builds a store. Empty gistID or token degrades the store to memory-only
// mode: grants work for the process lifetime but are never persisted.
func New(gistID, token string, admins []string) *Store {
	if len(admins) == 0 {
		admins = defaultAdmins
	}
	client := retryablehttp.NewClient()
	client.Logger = stdlog.New(io.Discard, "", 0)
	client.RetryMax = 2
	client.HTTPClient.Timeout = 10 * time.Second

	s := &Store{
		gistID:   gistID,
		token:    token,
		admins:   admins,
		licenses: make(map[string]License),
		client:   client,
		apiBase:  gistAPIBase,
		now:      time.Now,
	}
	if !s.configured() {
		utils.Log.Warn("gist id/token not configured, licenses are memory-only")
		return s
	}
	s.licenses = s.loadFromGist()
	utils.Log.Infof("loaded %d licenses from gist", len(s.licenses))
	return s
}

func (s *Store) configured() bool {
	return s.gistID != "" && s.token != ""
}

// IsAdmin checks the fixed allow-list, case-insensitively. Admins never go
// through license lookup.
func (s *Store) IsAdmin(username string) bool {
	if username == "" {
		return false
	}
	for _, a := range s.admins {
		if strings.EqualFold(a, username) {
			return true
		}
	}
	return false
}

// Check reports whether a username may use the bot, with a user-facing
// explanation. Expired licenses are revoked as a side effect of discovery.
func (s *Store) Check(username string) (bool, string) {
	if username == "" {
		return false, "❌ Username não identificado"
	}
	if s.IsAdmin(username) {
		return true, "✅ Acesso Admin - Ilimitado"
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.reloadLocked()

	key := strings.ToLower(username)
	lic, ok := s.licenses[key]
	if !ok {
		return false, fmt.Sprintf("❌ Licença não encontrada para @%s", username)
	}

	now := s.now()
	if now.After(lic.ExpiryDate) {
		s.revokeLocked(key)
		return false, fmt.Sprintf("❌ Licença expirada para @%s", username)
	}

	daysLeft := int(lic.ExpiryDate.Sub(now).Hours() / 24)
	return true, fmt.Sprintf("✅ Licença válida - %d dias restantes", daysLeft)
}

// Add grants (or overwrites) a license lasting days from now. A failed gist
// write is logged but the in-memory grant stands.
func (s *Store) Add(username string, days int) time.Time {
	if days <= 0 {
		days = DefaultDays
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	expiry := now.Add(time.Duration(days) * 24 * time.Hour)
	s.licenses[strings.ToLower(username)] = License{
		ExpiryDate:   expiry,
		CreatedAt:    now,
		DurationDays: days,
	}

	if s.configured() {
		if !s.saveToGist() {
			utils.Log.Warn("license added locally but not saved to gist")
		}
	} else {
		utils.Log.Warn("license added locally only (gist not configured)")
	}
	return expiry
}

// Revoke removes a license and reports whether one existed.
func (s *Store) Revoke(username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revokeLocked(strings.ToLower(username))
}

func (s *Store) revokeLocked(key string) bool {
	if _, ok := s.licenses[key]; !ok {
		return false
	}
	delete(s.licenses, key)
	if s.configured() && !s.saveToGist() {
		utils.Log.Warn("license revoked locally but not saved to gist")
	}
	return true
}

// Info returns the license view for a user, or nil when none exists. Admins
// get a synthetic unlimited entry.
func (s *Store) Info(username string) *Info {
	if s.IsAdmin(username) {
		return &Info{Username: username, Admin: true}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.reloadLocked()

	lic, ok := s.licenses[strings.ToLower(username)]
	if !ok {
		return nil
	}
	now := s.now()
	return &Info{
		Username:     username,
		ExpiryDate:   lic.ExpiryDate.Format("02/01/2006 15:04"),
		CreatedAt:    lic.CreatedAt.Format("02/01/2006 15:04"),
		DaysLeft:     int(lic.ExpiryDate.Sub(now).Hours() / 24),
		DurationDays: lic.DurationDays,
	}
}

// ListActive reloads the mirror and returns only unexpired licenses.
func (s *Store) ListActive() map[string]Active {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reloadLocked()

	now := s.now()
	out := make(map[string]Active)
	for username, lic := range s.licenses {
		if !now.After(lic.ExpiryDate) {
			out[username] = Active{
				ExpiryDate: lic.ExpiryDate.Format("02/01/2006"),
				DaysLeft:   int(lic.ExpiryDate.Sub(now).Hours() / 24),
			}
		}
	}
	return out
}

// ForceSync reloads the mirror unconditionally. Returns false when the gist
// is not configured.
func (s *Store) ForceSync() bool {
	if !s.configured() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.licenses = s.loadFromGist()
	return true
}

func (s *Store) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	active := 0
	for _, lic := range s.licenses {
		if !now.After(lic.ExpiryDate) {
			active++
		}
	}
	// Expired entries are revoked the moment a check discovers them, so the
	// mirror never accumulates any; the counter is kept for the status view.
	return Stats{
		Total:          len(s.licenses),
		Active:         active,
		Expired:        0,
		GistConfigured: s.configured(),
		Admins:         len(s.admins),
	}
}

func (s *Store) reloadLocked() {
	if s.configured() {
		s.licenses = s.loadFromGist()
	}
}

type gistLicense struct {
	ExpiryDate   string `json:"expiry_date"`
	CreatedAt    string `json:"created_at"`
	DurationDays int    `json:"duration_days"`
}

// loadFromGist fetches the whole license document. Any failure returns the
// last-known mirror so a flaky network never locks users out.
func (s *Store) loadFromGist() map[string]License {
	req, err := retryablehttp.NewRequest(http.MethodGet, s.apiBase+"/gists/"+s.gistID, nil)
	if err != nil {
		return s.licenses
	}
	req.Header.Set("Authorization", "token "+s.token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	res, err := s.client.Do(req)
	if err != nil {
		utils.Log.Warn("gist load failed: ", err)
		return s.licenses
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil || res.StatusCode != http.StatusOK {
		utils.Log.Warnf("gist load failed: status %d", res.StatusCode)
		return s.licenses
	}

	content := gjson.GetBytes(body, `files.licenses\.json.content`)
	if !content.Exists() {
		utils.Log.Warn("licenses.json not found in gist")
		return s.licenses
	}

	var raw map[string]gistLicense
	if err := json.Unmarshal([]byte(content.Str), &raw); err != nil {
		utils.Log.Warn("bad license document: ", err)
		return s.licenses
	}

	out := make(map[string]License, len(raw))
	for username, g := range raw {
		expiry, err1 := parseISO(g.ExpiryDate)
		created, err2 := parseISO(g.CreatedAt)
		if err1 != nil || err2 != nil {
			utils.Log.Warnf("skipping license with bad dates: @%s", username)
			continue
		}
		out[strings.ToLower(username)] = License{
			ExpiryDate:   expiry,
			CreatedAt:    created,
			DurationDays: g.DurationDays,
		}
	}
	return out
}

// saveToGist patches the whole document back. Partial updates are not
// supported by the storage format.
func (s *Store) saveToGist() bool {
	raw := make(map[string]gistLicense, len(s.licenses))
	for username, lic := range s.licenses {
		raw[username] = gistLicense{
			ExpiryDate:   lic.ExpiryDate.Format(isoFormat),
			CreatedAt:    lic.CreatedAt.Format(isoFormat),
			DurationDays: lic.DurationDays,
		}
	}

	content, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return false
	}
	payload, err := json.Marshal(map[string]interface{}{
		"description": "Licenças Bot TJSP - Atualizado em " + s.now().Format("02/01/2006 15:04"),
		"files": map[string]interface{}{
			gistFileName: map[string]string{"content": string(content)},
		},
	})
	if err != nil {
		return false
	}

	req, err := retryablehttp.NewRequest(http.MethodPatch, s.apiBase+"/gists/"+s.gistID, bytes.NewReader(payload))
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "token "+s.token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("Content-Type", "application/json")

	res, err := s.client.Do(req)
	if err != nil {
		utils.Log.Warn("gist save failed: ", err)
		return false
	}
	defer res.Body.Close()
	io.Copy(io.Discard, res.Body)

	if res.StatusCode != http.StatusOK {
		utils.Log.Warnf("gist save failed: status %d", res.StatusCode)
		return false
	}
	return true
}

const isoFormat = "2006-01-02T15:04:05"

// parseISO accepts the zone-less ISO form the document historically used,
// plus RFC3339 for hand-edited entries.
func parseISO(v string) (time.Time, error) {
	if t, err := time.Parse(isoFormat, v); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02T15:04:05.999999", v); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, v)
}
