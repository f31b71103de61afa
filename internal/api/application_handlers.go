package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/haventree/shepherd/internal/models"
)

// submitApplicationRequest is the payload for POST /applications.
type submitApplicationRequest struct {
	Name              string                `json:"name"`
	Phone             string                `json:"phone,omitempty"`
	ExpertiseAreas    []models.HelpCategory `json:"expertise_areas"`
	Credentials       string                `json:"credentials,omitempty"`
	PersonalityTraits []string              `json:"personality_traits,omitempty"`
}

// submitApplicationHandler handles new leader applications (POST /applications).
func (s *Server) submitApplicationHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.submitApplicationHandler: processing submission", "path", r.URL.Path)

	var req submitApplicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.submitApplicationHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	app, err := s.pipe.Submit(r.Context(), models.LeaderApplication{
		Name:              req.Name,
		Phone:             req.Phone,
		ExpertiseAreas:    req.ExpertiseAreas,
		Credentials:       req.Credentials,
		PersonalityTraits: req.PersonalityTraits,
	})
	if err != nil {
		slog.Warn("Server.submitApplicationHandler: submission rejected", "error", err, "name", req.Name)
		writeDomainError(w, err)
		return
	}

	slog.Info("Server.submitApplicationHandler: application submitted", "applicationID", app.ID)
	writeJSONResponse(w, http.StatusCreated, models.Success(app))
}

// getApplicationHandler handles GET /applications/{id}.
func (s *Server) getApplicationHandler(w http.ResponseWriter, r *http.Request) {
	applicationID := r.PathValue("id")

	app, err := s.pipe.Get(r.Context(), applicationID)
	if err != nil {
		slog.Warn("Server.getApplicationHandler: failed to get application", "error", err, "applicationID", applicationID)
		writeDomainError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(app))
}

// advanceApplicationRequest is the payload for POST /applications/{id}/advance.
type advanceApplicationRequest struct {
	Target models.ApplicationStatus `json:"target"`
}

// advanceApplicationHandler moves an application along the pipeline. Reaching
// active is what makes the candidate visible to assignment, so gate failures
// (training, background check) surface as conflicts.
func (s *Server) advanceApplicationHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	applicationID := r.PathValue("id")

	var req advanceApplicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.advanceApplicationHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if !models.IsValidApplicationStatus(req.Target) {
		slog.Warn("Server.advanceApplicationHandler: unknown target status", "target", req.Target)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Unknown target status"))
		return
	}

	app, err := s.pipe.Advance(r.Context(), applicationID, req.Target)
	if err != nil {
		slog.Warn("Server.advanceApplicationHandler: advance rejected", "error", err, "applicationID", applicationID, "target", req.Target)
		writeDomainError(w, err)
		return
	}

	slog.Info("Server.advanceApplicationHandler: application advanced", "applicationID", applicationID, "status", app.Status)
	writeJSONResponse(w, http.StatusOK, models.Success(app))
}

// backgroundCheckRequest is the payload for POST /applications/{id}/background-check.
type backgroundCheckRequest struct {
	Status models.BackgroundCheckStatus `json:"status"`
}

// backgroundCheckHandler records a background check result without moving the
// application status.
func (s *Server) backgroundCheckHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	applicationID := r.PathValue("id")

	var req backgroundCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.backgroundCheckHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if !models.IsValidBackgroundCheckStatus(req.Status) {
		slog.Warn("Server.backgroundCheckHandler: unknown status", "status", req.Status)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Unknown background check status"))
		return
	}

	app, err := s.pipe.RecordBackgroundCheck(r.Context(), applicationID, req.Status)
	if err != nil {
		slog.Warn("Server.backgroundCheckHandler: update rejected", "error", err, "applicationID", applicationID)
		writeDomainError(w, err)
		return
	}

	slog.Info("Server.backgroundCheckHandler: background check recorded", "applicationID", applicationID, "status", req.Status)
	writeJSONResponse(w, http.StatusOK, models.Success(app))
}

// trainingModuleRequest is the payload for POST /applications/{id}/training.
type trainingModuleRequest struct {
	Module string `json:"module"`
	Done   bool   `json:"done"`
}

// trainingModuleHandler marks a required training module done or not done.
func (s *Server) trainingModuleHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	applicationID := r.PathValue("id")

	var req trainingModuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.trainingModuleHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	app, err := s.pipe.MarkTrainingModule(r.Context(), applicationID, req.Module, req.Done)
	if err != nil {
		slog.Warn("Server.trainingModuleHandler: update rejected", "error", err, "applicationID", applicationID, "module", req.Module)
		writeDomainError(w, err)
		return
	}

	slog.Info("Server.trainingModuleHandler: training module updated",
		"applicationID", applicationID, "module", req.Module, "done", req.Done, "trainingCompleted", app.TrainingCompleted)
	writeJSONResponse(w, http.StatusOK, models.Success(app))
}
