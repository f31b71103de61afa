// Package api provides HTTP handlers for Shepherd endpoints.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/haventree/shepherd/internal/models"
	"github.com/haventree/shepherd/internal/stats"
	"github.com/haventree/shepherd/internal/util"
)

// createRequestRequest is the intake payload for POST /requests.
type createRequestRequest struct {
	Category          models.HelpCategory `json:"category"`
	Description       string              `json:"description,omitempty"`
	IsAnonymous       bool                `json:"is_anonymous,omitempty"`
	PreferredLeaderID string              `json:"preferred_leader_id,omitempty"`
}

// createRequestResult bundles the intake outcome: the stored request, the
// assignment decision, and the conversation opened for the member.
type createRequestResult struct {
	Request      *models.HelpRequest          `json:"request"`
	Assignment   models.AssignmentResult      `json:"assignment"`
	Conversation *models.PastoralConversation `json:"conversation"`
}

// createRequestHandler handles help-request intake (POST /requests). It saves
// the request, runs the assignment engine, and opens the conversation in a
// single call so the member always gets an immediate channel.
func (s *Server) createRequestHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.createRequestHandler: processing intake", "path", r.URL.Path)

	var req createRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.createRequestHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	now := time.Now()
	hr := models.HelpRequest{
		ID:          util.NewID("req"),
		Category:    req.Category,
		Description: req.Description,
		IsAnonymous: req.IsAnonymous,
		Priority:    s.pol.PriorityFor(req.Category),
		Status:      models.RequestStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := hr.Validate(); err != nil {
		slog.Warn("Server.createRequestHandler: validation failed", "error", err, "category", req.Category)
		writeDomainError(w, err)
		return
	}
	if err := s.st.SaveRequest(hr); err != nil {
		slog.Error("Server.createRequestHandler: failed to save request", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save request"))
		return
	}

	result, err := s.engine.Assign(r.Context(), hr.ID, req.PreferredLeaderID)
	if err != nil {
		slog.Error("Server.createRequestHandler: assignment failed", "error", err, "requestID", hr.ID)
		writeDomainError(w, err)
		return
	}

	conv, err := s.convs.Open(r.Context(), hr.ID)
	if err != nil {
		slog.Error("Server.createRequestHandler: failed to open conversation", "error", err, "requestID", hr.ID)
		writeDomainError(w, err)
		return
	}

	saved, err := s.st.GetRequest(hr.ID)
	if err != nil || saved == nil {
		slog.Error("Server.createRequestHandler: failed to reload request", "error", err, "requestID", hr.ID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load request"))
		return
	}

	slog.Info("Server.createRequestHandler: intake complete",
		"requestID", hr.ID, "category", hr.Category, "priority", hr.Priority,
		"assigned", result.Assigned, "leaderID", result.LeaderID)
	writeJSONResponse(w, http.StatusCreated, models.Success(createRequestResult{
		Request:      saved,
		Assignment:   result,
		Conversation: conv,
	}))
}

// getRequestHandler handles GET /requests/{id}.
func (s *Server) getRequestHandler(w http.ResponseWriter, r *http.Request) {
	requestID := r.PathValue("id")

	hr, err := s.st.GetRequest(requestID)
	if err != nil {
		slog.Error("Server.getRequestHandler: failed to get request", "error", err, "requestID", requestID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to get request"))
		return
	}
	if hr == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Request not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(hr))
}

// listLeadersHandler handles GET /leaders, returning active leaders only.
func (s *Server) listLeadersHandler(w http.ResponseWriter, r *http.Request) {
	leaders, err := s.reg.ListActive(r.Context())
	if err != nil {
		slog.Error("Server.listLeadersHandler: failed to list leaders", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list leaders"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(leaders))
}

// setAvailabilityRequest is the payload for POST /leaders/{id}/availability.
type setAvailabilityRequest struct {
	Available bool `json:"available"`
}

// setAvailabilityHandler toggles a leader's live availability. Flipping a
// leader available nudges the assignment engine to retry pending requests.
func (s *Server) setAvailabilityHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	leaderID := r.PathValue("id")

	var req setAvailabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.setAvailabilityHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	if err := s.reg.SetAvailability(r.Context(), leaderID, req.Available); err != nil {
		slog.Warn("Server.setAvailabilityHandler: failed to set availability", "error", err, "leaderID", leaderID)
		writeDomainError(w, err)
		return
	}

	slog.Info("Server.setAvailabilityHandler: availability updated", "leaderID", leaderID, "available", req.Available)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Availability updated", nil))
}

// leaderStatsHandler handles GET /leaders/{id}/stats. Optional "from" and "to"
// query parameters (RFC 3339) bound the window; either side may be omitted.
func (s *Server) leaderStatsHandler(w http.ResponseWriter, r *http.Request) {
	leaderID := r.PathValue("id")

	if _, err := s.reg.Get(r.Context(), leaderID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Leader not found"))
			return
		}
		slog.Error("Server.leaderStatsHandler: failed to get leader", "error", err, "leaderID", leaderID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to get leader"))
		return
	}

	window, err := parseWindow(r)
	if err != nil {
		slog.Warn("Server.leaderStatsHandler: invalid window", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	sessions, err := s.st.GetSessionRecords(leaderID)
	if err != nil {
		slog.Error("Server.leaderStatsHandler: failed to load sessions", "error", err, "leaderID", leaderID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load session records"))
		return
	}

	writeJSONResponse(w, http.StatusOK, models.Success(stats.ComputeStats(leaderID, sessions, window)))
}

func parseWindow(r *http.Request) (stats.Window, error) {
	var window stats.Window
	if from := r.URL.Query().Get("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return window, errors.New("invalid 'from' timestamp, expected RFC 3339")
		}
		window.Start = t
	}
	if to := r.URL.Query().Get("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return window, errors.New("invalid 'to' timestamp, expected RFC 3339")
		}
		window.End = t
	}
	return window, nil
}
