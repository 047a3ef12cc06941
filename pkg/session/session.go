// Package session scopes one OAB query's results to a (username, chat) pair.
// Sessions live only in memory and expire lazily: nothing sweeps them, the
// next read after the timeout purges them.
package session

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coder7br/tjscope/pkg/processo"
)

const Timeout = time.Hour

// Session holds the active query and its collected records.
type Session struct {
	OAB       string
	Processos []processo.Processo
	Username  string
	ChatID    int64
	CreatedAt time.Time
}

type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	now      func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

func key(username string, chatID int64) string {
	return fmt.Sprintf("%s_%d", username, chatID)
}

// Create replaces any prior session under the same key.
func (r *Registry) Create(username string, chatID int64, oab string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := &Session{
		OAB:       oab,
		Username:  username,
		ChatID:    chatID,
		CreatedAt: r.now(),
	}
	r.sessions[key(username, chatID)] = s
	return s
}

// Get returns the live session for the key, purging it when older than the
// timeout.
func (r *Registry) Get(username string, chatID int64) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key(username, chatID)
	s, ok := r.sessions[k]
	if !ok {
		return nil
	}
	if r.now().Sub(s.CreatedAt) > Timeout {
		delete(r.sessions, k)
		return nil
	}
	return s
}

// Clear removes the session unconditionally.
func (r *Registry) Clear(username string, chatID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, key(username, chatID))
}

// SessionsFor lists every live session belonging to a username, across chats.
func (r *Registry) SessionsFor(username string) []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Session
	prefix := username + "_"
	for k, s := range r.sessions {
		if strings.HasPrefix(k, prefix) {
			out = append(out, s)
		}
	}
	return out
}
