package roulette

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Handler returns the HTTP surface consumed by the route layer. Documents
// are always returned with a 200 — even the error variant — so the
// presentation layer can render a friendly fallback without transport-level
// error handling.
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/api/next", s.handleNext)
	r.Post("/api/generate", s.handleGenerate)
	r.Get("/api/stream", s.handleStream)
	r.Get("/api/status", s.handleStatus)
	r.Post("/api/topup", s.handleTopUp)
	return r
}

// handleNext serves the fast path: dequeue if possible, fall through to
// the slow path on an empty queue. Either way a top-up is nudged so the
// queue refills behind the caller.
func (s *Service) handleNext(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	doc, err := s.TryDequeue(ctx)
	if err != nil {
		s.config.Logger.Error("api: dequeue failed", "error", err)
	}
	if doc == nil {
		doc = s.GenerateOne(ctx, 0, "")
	}
	s.TriggerTopUp()

	writeJSON(w, doc)
}

type generateRequest struct {
	Seed  int64  `json:"seed,omitempty"`
	Brief string `json:"brief,omitempty"`
}

func (s *Service) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if r.Body != nil {
		_ = json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req)
	}
	writeJSON(w, s.GenerateOne(r.Context(), req.Seed, req.Brief))
}

// handleStream writes the burst as NDJSON, flushing after each document so
// the first one reaches the client before the burst completes.
func (s *Service) handleStream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	flusher, _ := w.(http.Flusher)

	enc := json.NewEncoder(w)
	for doc := range s.GenerateStream(r.Context(), 0, r.URL.Query().Get("brief")) {
		if err := enc.Encode(doc); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Status(r.Context()))
}

func (s *Service) handleTopUp(w http.ResponseWriter, _ *http.Request) {
	s.TriggerTopUp()
	w.WriteHeader(http.StatusAccepted)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
