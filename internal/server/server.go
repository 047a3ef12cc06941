// Package server exposes a small HTTP surface next to the bot: liveness
// endpoints for process supervisors and a webhook stub kept for hosting
// platforms that probe one.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/coder7br/tjscope/internal/utils"
	"github.com/coder7br/tjscope/pkg/license"
)

type Server struct {
	Licenses *license.Store
	started  time.Time
}

func New(licenses *license.Store) *Server {
	return &Server{
		Licenses: licenses,
		started:  time.Now(),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /webhook", s.handleWebhook)
	return mux
}

func (s *Server) Start(addr string) error {
	utils.Log.Info("health server listening on ", addr)
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	fmt.Fprintln(w, "Bot Consultor TJSP está rodando! 🤖")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.Licenses.GetStats()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":          "ok",
		"uptime":          time.Since(s.started).Round(time.Second).String(),
		"licenses_active": stats.Active,
		"gist_configured": stats.GistConfigured,
	})
}

// handleWebhook acknowledges and discards. Updates arrive over long polling;
// the endpoint exists so platform health probes that POST here get a 200.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
