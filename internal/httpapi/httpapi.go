// Package httpapi exposes the cache snapshot and the bulk refresh
// operations to display and automation collaborators.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"pricewatch/internal/item"
	"pricewatch/internal/lookup"
)

// Server wires the orchestrator behind an HTTP router. Background bulk
// refreshes run under the daemon's base context, not the request's, so
// they survive the response.
type Server struct {
	svc  *lookup.Service
	log  *slog.Logger
	base context.Context
	now  func() time.Time
}

// New creates a server. base bounds background refresh work; a nil logger
// discards.
func New(base context.Context, svc *lookup.Service, log *slog.Logger) *Server {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Server{svc: svc, log: log, base: base, now: time.Now}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
	)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Get("/prices", s.getPrices)
	r.Get("/price", s.getPrice)
	r.Post("/items", s.postItem)
	r.Post("/refresh/soft", s.postSoftRefresh)
	r.Post("/refresh/hard", s.postHardRefresh)
	r.Post("/cache/prune", s.postPrune)
	r.Delete("/cache", s.deleteCache)

	return r
}

// entryView is the display form of a cache entry.
type entryView struct {
	Key       string    `json:"key"`
	Name      string    `json:"name"`
	AppID     string    `json:"appid,omitempty"`
	Price     string    `json:"price"`
	WrittenAt time.Time `json:"written_at"`
	Age       string    `json:"age"`
}

func (s *Server) view(e item.Entry) entryView {
	v := entryView{
		Key:       e.Key.Key(),
		Name:      e.Name,
		Price:     e.Price.Encode(),
		WrittenAt: e.WrittenAt,
		Age:       formatAge(e.Age(s.now())),
	}
	if !e.CanonicalID.IsZero() {
		v.AppID = e.CanonicalID.Key()
	}
	return v
}

func (s *Server) getPrices(w http.ResponseWriter, _ *http.Request) {
	entries := s.svc.Snapshot()
	views := make([]entryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, s.view(e))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) getPrice(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(r.URL.Query().Get("key"))
	if key == "" {
		http.Error(w, "key query parameter required", http.StatusBadRequest)
		return
	}
	d := item.Descriptor{ID: item.ParseKey(key), NameHint: r.URL.Query().Get("hint")}

	entry, err := s.svc.Resolve(r.Context(), d)
	if err != nil {
		s.log.Error("resolve failed", "key", key, "error", err)
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, s.view(entry))
}

func (s *Server) postItem(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Key      string `json:"key"`
		NameHint string `json:"name_hint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	key := strings.TrimSpace(body.Key)
	if key == "" {
		http.Error(w, "key is required", http.StatusBadRequest)
		return
	}

	s.svc.Track(item.Descriptor{ID: item.ParseKey(key), NameHint: body.NameHint})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) postSoftRefresh(w http.ResponseWriter, _ *http.Request) {
	n := s.svc.SoftRefresh(s.base, s.svc.Tracked())
	writeJSON(w, http.StatusAccepted, map[string]int{"triggered": n})
}

func (s *Server) postHardRefresh(w http.ResponseWriter, _ *http.Request) {
	n := s.svc.HardRefresh(s.base, s.svc.Tracked())
	writeJSON(w, http.StatusAccepted, map[string]int{"triggered": n})
}

func (s *Server) postPrune(w http.ResponseWriter, r *http.Request) {
	removed, err := s.svc.Prune(r.Context())
	if err != nil {
		s.log.Error("prune failed", "error", err)
		http.Error(w, "prune failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (s *Server) deleteCache(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.ClearCache(r.Context()); err != nil {
		s.log.Error("clear cache failed", "error", err)
		http.Error(w, "clear failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// formatAge renders an entry age the way the cache viewer expects it:
// minutes under an hour, hours under a day, days beyond.
func formatAge(age time.Duration) string {
	hours := age.Hours()
	switch {
	case hours < 1:
		return fmt.Sprintf("%.2f minutes", age.Minutes())
	case hours < 24:
		return fmt.Sprintf("%.2f hours", hours)
	default:
		return fmt.Sprintf("%.2f days", hours/24)
	}
}
