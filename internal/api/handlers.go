package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStreams(w http.ResponseWriter, r *http.Request) {
	desc, err := s.resolver.ResolveVideo(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeResolveError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, desc)
}

// handleVideo serves full metadata, or the cheap lookup when quick=1.
func (s *Server) handleVideo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	resolve := s.resolver.ResolveMetadata
	if q := r.URL.Query().Get("quick"); q == "1" || q == "true" {
		resolve = s.resolver.QuickMetadata
	}
	meta, err := resolve(r.Context(), id)
	if err != nil {
		s.writeResolveError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (s *Server) handleComments(w http.ResponseWriter, r *http.Request) {
	page, err := s.resolver.Comments(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeResolveError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "missing query")
		return
	}
	items, err := s.resolver.Search(r.Context(), q)
	if err != nil {
		s.writeResolveError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleTrending(w http.ResponseWriter, r *http.Request) {
	items, err := s.resolver.Trending(r.Context(), r.URL.Query().Get("region"))
	if err != nil {
		s.writeResolveError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.resolver.Stats())
}

func (s *Server) handleResetStats(w http.ResponseWriter, _ *http.Request) {
	s.resolver.ResetStats()
	w.WriteHeader(http.StatusNoContent)
}

type priorityBody struct {
	Order []string `json:"order"`
}

func (s *Server) handleGetPriority(w http.ResponseWriter, _ *http.Request) {
	if s.priority == nil {
		writeError(w, http.StatusNotFound, "priority list not configured")
		return
	}
	writeJSON(w, http.StatusOK, priorityBody{Order: s.priority.Order()})
}

func (s *Server) handlePutPriority(w http.ResponseWriter, r *http.Request) {
	if s.priority == nil {
		writeError(w, http.StatusNotFound, "priority list not configured")
		return
	}
	var body priorityBody
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	order, err := s.priority.Set(r.Context(), body.Order)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, priorityBody{Order: order})
}

func (s *Server) handleResetPriority(w http.ResponseWriter, r *http.Request) {
	if s.priority == nil {
		writeError(w, http.StatusNotFound, "priority list not configured")
		return
	}
	order, err := s.priority.Reset(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, priorityBody{Order: order})
}

func (s *Server) handleRefreshProxies(w http.ResponseWriter, r *http.Request) {
	if s.proxies == nil {
		writeError(w, http.StatusNotFound, "proxy directory not configured")
		return
	}
	list := s.proxies.Refresh(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"count": len(list), "proxies": list})
}
