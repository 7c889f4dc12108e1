package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/taskpilot/taskpilot/internal/agent"
)

type chatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
}

type chatResponse struct {
	Response       string           `json:"response"`
	ConversationID string           `json:"conversation_id"`
	ToolCalls      []agent.ToolCall `json:"tool_calls"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.callerForPath(w, r)
	if !ok {
		return
	}
	if !s.limiter.allow(caller.UserID.String()) {
		writeError(w, http.StatusTooManyRequests, "rate_limited", "too many chat requests; slow down")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_arguments", "malformed request body")
		return
	}

	var convID *uuid.UUID
	if req.ConversationID != "" {
		id, err := uuid.Parse(req.ConversationID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_arguments", "invalid conversation id")
			return
		}
		convID = &id
	}

	res, err := s.orchestrator.Handle(r.Context(), caller.UserID, req.Message, convID)
	if err != nil {
		writeMappedError(w, err)
		return
	}

	toolCalls := res.ToolCalls
	if toolCalls == nil {
		toolCalls = []agent.ToolCall{}
	}
	writeJSON(w, http.StatusOK, chatResponse{
		Response:       res.Reply,
		ConversationID: res.ConversationID.String(),
		ToolCalls:      toolCalls,
	})
}
