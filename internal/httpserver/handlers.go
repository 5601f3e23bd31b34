package httpserver

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"grantify-client/internal/interaction"
	"grantify-client/internal/models"
	"grantify-client/internal/search"
	"grantify-client/internal/transport"
)

func (s *Server) handleSearchState(w http.ResponseWriter, r *http.Request) {
	s.writeResponse(w, newSearchStateResponse(s.orchestrator.State()))
}

func (s *Server) handleSearchSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := s.parseRequest(r, &req); err != nil {
		s.writeErrorResponse(w, "Invalid request", http.StatusBadRequest)
		return
	}

	s.orchestrator.SubmitSearch(req.Query)
	s.writeStatusResponse(w, http.StatusAccepted, newSearchStateResponse(s.orchestrator.State()))
}

func (s *Server) handleSearchPage(w http.ResponseWriter, r *http.Request) {
	var req PageRequest
	if err := s.parseRequest(r, &req); err != nil {
		s.writeErrorResponse(w, "Invalid request", http.StatusBadRequest)
		return
	}

	s.orchestrator.SetPage(req.Page)
	s.writeStatusResponse(w, http.StatusAccepted, newSearchStateResponse(s.orchestrator.State()))
}

func (s *Server) handleSearchSort(w http.ResponseWriter, r *http.Request) {
	var req SortRequest
	if err := s.parseRequest(r, &req); err != nil {
		s.writeErrorResponse(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if !req.Sort.Valid() {
		s.writeErrorResponse(w, "Unknown sort key", http.StatusBadRequest)
		return
	}

	s.orchestrator.SetSort(req.Sort)
	s.writeStatusResponse(w, http.StatusAccepted, newSearchStateResponse(s.orchestrator.State()))
}

func (s *Server) handleSearchFilters(w http.ResponseWriter, r *http.Request) {
	var patch FiltersPatch
	if err := s.parseRequest(r, &patch); err != nil {
		s.writeErrorResponse(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if patch.empty() {
		s.writeErrorResponse(w, "No filter changes", http.StatusBadRequest)
		return
	}

	// Validate before touching the orchestrator
	if _, err := patch.apply(s.orchestrator.Filters()); err != nil {
		s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.orchestrator.EditFilters(func(f search.FilterState) search.FilterState {
		patched, _ := patch.apply(f)
		return patched
	})
	s.writeStatusResponse(w, http.StatusAccepted, newSearchStateResponse(s.orchestrator.State()))
}

func (s *Server) handleSearchRefresh(w http.ResponseWriter, r *http.Request) {
	s.orchestrator.Refresh()
	s.writeStatusResponse(w, http.StatusAccepted, newSearchStateResponse(s.orchestrator.State()))
}

func (s *Server) handlePerformAction(w http.ResponseWriter, r *http.Request) {
	var req ActionRequest
	if err := s.parseRequest(r, &req); err != nil {
		s.writeErrorResponse(w, "Invalid request", http.StatusBadRequest)
		return
	}

	grantID := mux.Vars(r)["id"]
	outcome, err := s.coordinator.Perform(r.Context(), grantID, req.Action)
	if err != nil {
		s.writeActionError(w, err)
		return
	}
	s.writeActionOutcome(w, grantID, outcome)
}

func (s *Server) handleUndoAction(w http.ResponseWriter, r *http.Request) {
	grantID := mux.Vars(r)["id"]
	action := models.Action(r.URL.Query().Get("action"))

	outcome, err := s.coordinator.Undo(r.Context(), grantID, action)
	if err != nil {
		s.writeActionError(w, err)
		return
	}
	s.writeActionOutcome(w, grantID, outcome)
}

// writeActionOutcome answers 200 for an applied action and 202 when no write
// took effect, either because one was already pending or it was cancelled
func (s *Server) writeActionOutcome(w http.ResponseWriter, grantID string, outcome interaction.Outcome) {
	current, _ := s.coordinator.Interaction(grantID)
	resp := &ActionResponse{
		Success:  outcome == interaction.OutcomeApplied,
		Outcome:  outcome.String(),
		GrantID:  grantID,
		Action:   current,
		Counters: s.coordinator.Counters(),
	}
	if !resp.Success {
		s.writeStatusResponse(w, http.StatusAccepted, resp)
		return
	}
	s.writeResponse(w, resp)
}

func (s *Server) writeActionError(w http.ResponseWriter, err error) {
	var actionErr *interaction.ActionError
	switch {
	case errors.Is(err, interaction.ErrUnauthenticated):
		s.writeErrorResponse(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, interaction.ErrInvalidAction):
		s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &actionErr):
		s.writeErrorResponse(w, err.Error(), http.StatusBadGateway)
	default:
		s.writeErrorResponse(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleListInteractions(w http.ResponseWriter, r *http.Request) {
	interactions, err := s.reader.Interactions(r.Context())
	if err != nil {
		s.writeReadError(w, err)
		return
	}
	if interactions == nil {
		interactions = []models.Interaction{}
	}

	s.coordinator.Seed(interactions)
	s.writeResponse(w, &InteractionsResponse{
		Interactions: interactions,
		Counters:     s.coordinator.Counters(),
	})
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	recommendations, err := s.reader.Recommendations(r.Context())
	if err != nil {
		s.writeReadError(w, err)
		return
	}
	if recommendations == nil {
		recommendations = []models.Recommendation{}
	}
	s.writeResponse(w, recommendations)
}

func (s *Server) writeReadError(w http.ResponseWriter, err error) {
	var statusErr *transport.StatusError
	switch {
	case transport.IsCancelled(err):
		// The caller went away; nothing to report
		w.WriteHeader(499)
	case errors.As(err, &statusErr):
		s.writeErrorResponse(w, statusErr.Message(), http.StatusBadGateway)
	default:
		s.writeErrorResponse(w, err.Error(), http.StatusBadGateway)
	}
}

func (s *Server) handleCacheInfo(w http.ResponseWriter, r *http.Request) {
	endpoint := r.URL.Query().Get("endpoint")
	if endpoint == "" {
		s.writeErrorResponse(w, "Missing required parameter: endpoint", http.StatusBadRequest)
		return
	}

	info := s.cacheService.GetCacheInfo(endpoint)
	s.writeResponse(w, map[string]interface{}{
		"success":     true,
		"endpoint":    endpoint,
		"cache_type":  info.CacheType,
		"ttl_seconds": int(info.TTL.Seconds()),
	})
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	s.cacheService.Clear()
	s.logger.Info("Response cache cleared")
	s.writeResponse(w, map[string]interface{}{"success": true})
}
