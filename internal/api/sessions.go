package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"sprout/internal/logging"
	"sprout/internal/report"
	"sprout/internal/store"
)

type createSessionRequest struct {
	UserRef        string `json:"user_ref"`
	Mode           string `json:"mode"`
	ChildAgeMonths int    `json:"child_age_months"`
	ChildGender    string `json:"child_gender"`
	Concern        string `json:"concern"`
}

type createSessionResponse struct {
	SessionID  string `json:"session_id"`
	UploadPath string `json:"upload_path"`
}

type sessionStatusResponse struct {
	SessionID        string `json:"session_id"`
	Status           string `json:"status"`
	PermanentFailure bool   `json:"permanent_failure"`
	Retries          int    `json:"retries"`
	Error            string `json:"error,omitempty"`
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.UserRef = strings.TrimSpace(req.UserRef)
	if req.UserRef == "" {
		s.writeError(w, http.StatusBadRequest, "user_ref is required")
		return
	}
	if req.ChildAgeMonths <= 0 {
		s.writeError(w, http.StatusBadRequest, "child_age_months must be positive")
		return
	}

	session, err := s.store.NewSession(r.Context(), store.NewSessionParams{
		UserRef:        req.UserRef,
		Mode:           req.Mode,
		ChildAgeMonths: req.ChildAgeMonths,
		ChildGender:    req.ChildGender,
		Concern:        req.Concern,
	})
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	session.AudioRef = filepath.Join(s.cfg.Paths.AudioDir, session.ID+".wav")
	if err := s.store.UpdateSession(r.Context(), session); err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to assign upload path")
		return
	}

	s.logger.Info("session created",
		logging.String("session_id", session.ID),
		logging.String("user_ref", session.UserRef),
	)
	s.writeJSON(w, http.StatusCreated, createSessionResponse{
		SessionID:  session.ID,
		UploadPath: session.AudioRef,
	})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" || strings.Contains(action, "/") {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}

	switch action {
	case "complete":
		s.handleComplete(w, r, id)
	case "status":
		s.handleStatus(w, r, id)
	case "report":
		s.handleReport(w, r, id)
	default:
		s.writeError(w, http.StatusNotFound, "session not found")
	}
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	session, err := s.store.GetSession(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if session.Status != store.StatusPending {
		s.writeError(w, http.StatusConflict, "session already handed off")
		return
	}
	if _, err := os.Stat(session.AudioRef); err != nil {
		s.writeError(w, http.StatusBadRequest, "audio upload missing")
		return
	}

	// The supervisor owns all status transitions; the handler only hands
	// the session over. Process claims pending atomically, so a racing
	// duplicate handoff is a harmless no-op.
	runCtx := s.baseCtx
	if runCtx == nil {
		runCtx = context.Background()
	}
	go func() {
		if err := s.processor.Process(runCtx, session.ID); err != nil {
			s.logger.Warn("session processing ended with error",
				logging.String("session_id", session.ID),
				logging.Error(err),
			)
		}
	}()

	s.writeJSON(w, http.StatusAccepted, sessionStatusResponse{
		SessionID: session.ID,
		Status:    string(session.Status),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	session, err := s.store.GetSession(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	s.writeJSON(w, http.StatusOK, sessionStatusResponse{
		SessionID:        session.ID,
		Status:           string(session.Status),
		PermanentFailure: session.PermanentFailure,
		Retries:          session.RetryCount,
		Error:            session.ErrorMessage,
	})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	session, err := s.store.GetSession(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	switch session.Status {
	case store.StatusCompleted:
	case store.StatusPending, store.StatusProcessing:
		s.writeError(w, http.StatusConflict, "session analysis in progress")
		return
	default:
		s.writeError(w, http.StatusNotFound, "no report for failed session")
		return
	}

	rep, err := report.Build(r.Context(), s.store, session)
	if err != nil {
		s.logger.Error("report assembly failed",
			logging.String("session_id", session.ID),
			logging.Error(err),
		)
		s.writeError(w, http.StatusInternalServerError, "failed to assemble report")
		return
	}
	s.writeJSON(w, http.StatusOK, rep)
}
