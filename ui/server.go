// Package ui serves a small JSON review API over a loaded curation layer.
// The decision-mutation endpoints mirror the library operations; every
// mutation persists the layer (when the server has a layer path) and returns the post-state decision plus the
// updated summary.
package ui

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/shandley/crucible/curation"
	"github.com/shandley/crucible/internal"
	apperrors "github.com/shandley/crucible/internal/errors"
)

// Server hosts the review API for one curation layer.
type Server struct {
	layer     *curation.Layer
	layerPath string
	// defaultActor identifies this review session on decisions whose
	// request did not name an actor.
	defaultActor string
	log          *internal.Logger
}

// NewServer creates a review server over a loaded layer. layerPath is where
// mutations are persisted.
func NewServer(layer *curation.Layer, layerPath string) *Server {
	return &Server{
		layer:        layer,
		layerPath:    layerPath,
		defaultActor: "reviewer:" + uuid.NewString(),
		log:          internal.DefaultLogger,
	}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/summary", s.handleSummary)
		r.Get("/schema", s.handleSchema)
		r.Get("/observations", s.handleObservations)
		r.Get("/suggestions", s.handleSuggestions)
		r.Get("/decisions", s.handleDecisions)

		r.Post("/suggestions/{id}/accept", s.handleDecide(decideAccept))
		r.Post("/suggestions/{id}/reject", s.handleDecide(decideReject))
		r.Post("/suggestions/{id}/modify", s.handleDecide(decideModify))
		r.Post("/suggestions/{id}/reset", s.handleDecide(decideReset))
	})

	return r
}

// ListenAndServe runs the server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	s.log.Info("review server listening on %s", addr)
	return http.ListenAndServe(addr, s.Router())
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.layer.Summary)
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.layer.Schema)
}

func (s *Server) handleObservations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.layer.Observations)
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.layer.Suggestions)
}

func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.layer.Decisions)
}

type decideKind int

const (
	decideAccept decideKind = iota
	decideReject
	decideModify
	decideReset
)

type decideRequest struct {
	Actor  string                 `json:"actor"`
	Notes  string                 `json:"notes"`
	Params map[string]interface{} `json:"params"`
}

type decideResponse struct {
	Decision *curation.Decision `json:"decision"`
	Summary  *curation.Summary  `json:"summary"`
}

func (s *Server) handleDecide(kind decideKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var req decideRequest
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req) // empty body is fine
		}
		if req.Actor == "" {
			req.Actor = s.defaultActor
		}

		var (
			decision *curation.Decision
			summary  *curation.Summary
			err      error
		)
		switch kind {
		case decideAccept:
			decision, summary, err = s.layer.Accept(id, req.Actor, req.Notes)
		case decideReject:
			decision, summary, err = s.layer.Reject(id, req.Actor, req.Notes)
		case decideModify:
			decision, summary, err = s.layer.Modify(id, req.Actor, req.Params, req.Notes)
		case decideReset:
			decision, summary, err = s.layer.Reset(id, req.Actor)
		}
		if err != nil {
			status := http.StatusInternalServerError
			if apperrors.HasCode(err, apperrors.CodeNotFound) {
				status = http.StatusNotFound
			}
			writeJSON(w, status, map[string]string{"error": err.Error()})
			return
		}

		if s.layerPath != "" {
			if err := s.layer.Save(s.layerPath); err != nil {
				s.log.Error("persist layer after decision: %v", err)
			}
		}

		writeJSON(w, http.StatusOK, decideResponse{Decision: decision, Summary: summary})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
