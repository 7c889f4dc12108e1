package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/taskpilot/taskpilot/internal/store"
)

type taskCreateRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type taskUpdateRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Completed   *bool   `json:"completed,omitempty"`
}

type taskListResponse struct {
	Tasks []store.Task `json:"tasks"`
}

func (s *Server) taskID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("task_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_arguments", "invalid task id")
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.callerForPath(w, r)
	if !ok {
		return
	}
	var req taskCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_arguments", "malformed request body")
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "invalid_arguments", "title is required")
		return
	}
	task, err := s.store.CreateTask(r.Context(), caller.UserID, req.Title, req.Description)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.callerForPath(w, r)
	if !ok {
		return
	}
	tasks, err := s.store.ListTasks(r.Context(), caller.UserID)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, taskListResponse{Tasks: tasks})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.callerForPath(w, r)
	if !ok {
		return
	}
	id, ok := s.taskID(w, r)
	if !ok {
		return
	}
	task, err := s.store.GetTask(r.Context(), caller.UserID, id)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.callerForPath(w, r)
	if !ok {
		return
	}
	id, ok := s.taskID(w, r)
	if !ok {
		return
	}
	var req taskUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_arguments", "malformed request body")
		return
	}
	task, err := s.store.UpdateTask(r.Context(), caller.UserID, id, store.TaskUpdate{
		Title:       req.Title,
		Description: req.Description,
		Completed:   req.Completed,
	})
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.callerForPath(w, r)
	if !ok {
		return
	}
	id, ok := s.taskID(w, r)
	if !ok {
		return
	}
	if err := s.store.DeleteTask(r.Context(), caller.UserID, id); err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleToggleComplete(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.callerForPath(w, r)
	if !ok {
		return
	}
	id, ok := s.taskID(w, r)
	if !ok {
		return
	}
	task, err := s.store.ToggleComplete(r.Context(), caller.UserID, id)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}
