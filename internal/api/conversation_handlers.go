package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/haventree/shepherd/internal/models"
)

// getConversationHandler handles GET /conversations/{id}.
func (s *Server) getConversationHandler(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")

	conv, err := s.convs.Get(r.Context(), conversationID)
	if err != nil {
		slog.Warn("Server.getConversationHandler: failed to get conversation", "error", err, "conversationID", conversationID)
		writeDomainError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(conv))
}

// postMessageRequest is the payload for POST /conversations/{id}/messages.
type postMessageRequest struct {
	Sender     models.Sender `json:"sender"`
	SenderName string        `json:"sender_name,omitempty"`
	Content    string        `json:"content"`
}

// postMessageHandler appends a message to a conversation. User messages in
// the waiting or active stage draw an automatic assistant reply.
func (s *Server) postMessageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	conversationID := r.PathValue("id")

	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.postMessageHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	conv, err := s.convs.ReceiveMessage(r.Context(), conversationID, req.Sender, req.SenderName, req.Content)
	if err != nil {
		slog.Warn("Server.postMessageHandler: message rejected", "error", err, "conversationID", conversationID, "sender", req.Sender)
		writeDomainError(w, err)
		return
	}

	slog.Debug("Server.postMessageHandler: message accepted", "conversationID", conversationID, "sender", req.Sender)
	writeJSONResponse(w, http.StatusOK, models.Success(conv))
}

// escalateHandler handles POST /conversations/{id}/escalate.
func (s *Server) escalateHandler(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")

	conv, err := s.convs.Escalate(r.Context(), conversationID)
	if err != nil {
		slog.Warn("Server.escalateHandler: escalation rejected", "error", err, "conversationID", conversationID)
		writeDomainError(w, err)
		return
	}

	slog.Info("Server.escalateHandler: conversation escalated", "conversationID", conversationID, "leaderID", conv.LeaderID)
	writeJSONResponse(w, http.StatusOK, models.Success(conv))
}

// resolveHandler handles POST /conversations/{id}/resolve.
func (s *Server) resolveHandler(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")

	conv, err := s.convs.Resolve(r.Context(), conversationID)
	if err != nil {
		slog.Warn("Server.resolveHandler: resolve rejected", "error", err, "conversationID", conversationID)
		writeDomainError(w, err)
		return
	}

	slog.Info("Server.resolveHandler: conversation resolved", "conversationID", conversationID)
	writeJSONResponse(w, http.StatusOK, models.Success(conv))
}

// withdrawHandler handles POST /conversations/{id}/withdraw.
func (s *Server) withdrawHandler(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")

	conv, err := s.convs.Withdraw(r.Context(), conversationID)
	if err != nil {
		slog.Warn("Server.withdrawHandler: withdraw rejected", "error", err, "conversationID", conversationID)
		writeDomainError(w, err)
		return
	}

	slog.Info("Server.withdrawHandler: conversation withdrawn", "conversationID", conversationID)
	writeJSONResponse(w, http.StatusOK, models.Success(conv))
}

// archiveHandler handles POST /conversations/{id}/archive.
func (s *Server) archiveHandler(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")

	conv, err := s.convs.Archive(r.Context(), conversationID)
	if err != nil {
		slog.Warn("Server.archiveHandler: archive rejected", "error", err, "conversationID", conversationID)
		writeDomainError(w, err)
		return
	}

	slog.Info("Server.archiveHandler: conversation archived", "conversationID", conversationID)
	writeJSONResponse(w, http.StatusOK, models.Success(conv))
}
