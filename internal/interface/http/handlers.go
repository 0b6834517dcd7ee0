package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/neuroboost/progress-engine/internal/application/command"
	"github.com/neuroboost/progress-engine/internal/application/query"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Healthy {
			writeJSON(w, r, http.StatusServiceUnavailable, status)
			return
		}
		writeJSON(w, r, http.StatusOK, status)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]any{
		"status":  "healthy",
		"uptime":  s.Uptime().String(),
		"version": s.config.Version,
	})
}

// handleReady handles the readiness endpoint.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Ready {
			writeJSONError(w, r, http.StatusServiceUnavailable, "not_ready", status.Message)
			return
		}
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE & PROGRESS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleEnsureProfile creates the starting progress record for a new user.
func (s *Server) handleEnsureProfile(w http.ResponseWriter, r *http.Request) {
	view, err := s.deps.Profiles.Ensure(r.Context(), r.PathValue("userID"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, view)
}

// handleGetProgress returns XP, level and streak of a user.
func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	summary, err := s.deps.Summary.Handle(r.Context(), query.GetProgressSummaryQuery{
		UserID: r.PathValue("userID"),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, summary)
}

// handleGetWeekly returns per-day XP and focus minutes.
// Query params: days (default 7, max 90).
func (s *Server) handleGetWeekly(w http.ResponseWriter, r *http.Request) {
	weekly, err := s.deps.Weekly.Handle(r.Context(), query.GetWeeklyProgressQuery{
		UserID: r.PathValue("userID"),
		Days:   getQueryParamInt(r, "days", 7),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, weekly)
}

// handleGetHistory returns the latest ledger entries.
// Query params: limit (default 20, max 100).
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.deps.History.Handle(r.Context(), query.GetXPHistoryQuery{
		UserID: r.PathValue("userID"),
		Limit:  getQueryParamInt(r, "limit", 20),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, entries, &ResponseMeta{TotalCount: len(entries)})
}

// handleGetShield returns the distraction shield payload.
func (s *Server) handleGetShield(w http.ResponseWriter, r *http.Request) {
	shield, err := s.deps.Shield.Handle(r.Context(), query.GetShieldQuery{UserID: r.PathValue("userID")})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, shield)
}

// ══════════════════════════════════════════════════════════════════════════════
// TASK HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type createTaskRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	Deadline    *time.Time `json:"deadline"`
}

// handleCreateTask creates a pending task.
func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if !decodeBody(w, r, &req) {
		return
	}
	view, err := s.deps.Tasks.Create(r.Context(), command.CreateTaskCommand{
		UserID:      r.PathValue("userID"),
		Title:       req.Title,
		Category:    req.Category,
		Description: req.Description,
		Deadline:    req.Deadline,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, view)
}

// handleListTasks lists a user's tasks.
// Query params: pending (only pending tasks when true).
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.deps.ListTasks.Handle(r.Context(), query.ListTasksQuery{
		UserID:      r.PathValue("userID"),
		OnlyPending: getQueryParamBool(r, "pending"),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, tasks, &ResponseMeta{TotalCount: len(tasks)})
}

type recategorizeTaskRequest struct {
	Category string `json:"category"`
}

// handleRecategorizeTask changes a task's category. Its XP value is unchanged.
func (s *Server) handleRecategorizeTask(w http.ResponseWriter, r *http.Request) {
	var req recategorizeTaskRequest
	if !decodeBody(w, r, &req) {
		return
	}
	view, err := s.deps.Tasks.Recategorize(r.Context(), command.RecategorizeTaskCommand{
		UserID:   r.PathValue("userID"),
		TaskID:   r.PathValue("taskID"),
		Category: req.Category,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, view)
}

// handleDeleteTask removes a task; progress is untouched.
func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("taskID")
	err := s.deps.Tasks.Delete(r.Context(), command.DeleteTaskCommand{
		UserID: r.PathValue("userID"),
		TaskID: taskID,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"task_id": taskID, "deleted": true})
}

// handleToggleTask flips a task between pending and completed.
func (s *Server) handleToggleTask(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.ToggleTask.Handle(r.Context(), command.ToggleTaskCommand{
		UserID: r.PathValue("userID"),
		TaskID: r.PathValue("taskID"),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// FOCUS SESSION HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type logFocusSessionRequest struct {
	DurationMinutes int        `json:"duration_minutes"`
	Notes           string     `json:"notes"`
	StartedAt       *time.Time `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at"`
}

// handleLogFocusSession records a finished session and credits it.
func (s *Server) handleLogFocusSession(w http.ResponseWriter, r *http.Request) {
	var req logFocusSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := s.deps.LogFocus.Handle(r.Context(), command.LogFocusSessionCommand{
		UserID:          r.PathValue("userID"),
		DurationMinutes: req.DurationMinutes,
		Notes:           req.Notes,
		StartedAt:       req.StartedAt,
		EndedAt:         req.EndedAt,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, result)
}

// handleCreditFocusSession re-applies a stored session. Repeated calls are no-ops.
func (s *Server) handleCreditFocusSession(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.CreditFocus.Handle(r.Context(), command.CreditFocusSessionCommand{
		UserID:    r.PathValue("userID"),
		SessionID: r.PathValue("sessionID"),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST DECODING
// ══════════════════════════════════════════════════════════════════════════════

// decodeBody reads a JSON body into dst. An empty body leaves dst zero.
// It writes the error response itself and returns false on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	err := dec.Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}

	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		writeJSONError(w, r, http.StatusRequestEntityTooLarge, "payload_too_large", "Request body too large")
		return false
	}
	writeJSONError(w, r, http.StatusBadRequest, "invalid_body", "Request body must be valid JSON")
	return false
}
