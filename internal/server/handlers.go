package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/roach88/recon/internal/artifact"
	"github.com/roach88/recon/internal/job"
	"github.com/roach88/recon/internal/lock"
	"github.com/roach88/recon/internal/store"
)

// maxNotificationBytes caps a notification request body.
const maxNotificationBytes = 1 << 20

// Problem types for transport-level errors.
const (
	problemBadRequest  = "about:blank#bad-request"
	problemNotFound    = "about:blank#not-found"
	problemConflict    = "about:blank#lock-timeout"
	problemForbidden   = "about:blank#forbidden"
	problemUnavailable = "about:blank#unavailable"
	problemInternal    = "about:blank#internal"
)

func (s *Server) handleNotification(w http.ResponseWriter, r *http.Request) {
	var n job.Notification
	dec := json.NewDecoder(io.LimitReader(r.Body, maxNotificationBytes))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		writeProblem(w, http.StatusBadRequest, problemBadRequest, "Invalid notification", err.Error())
		return
	}

	res, err := s.deps.Reconciler.Handle(r.Context(), n)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, res)
	case errors.Is(err, job.ErrInvalidNotification):
		writeProblem(w, http.StatusBadRequest, problemBadRequest, "Invalid notification", err.Error())
	case errors.Is(err, job.ErrNotFound):
		writeProblem(w, http.StatusNotFound, problemNotFound, "Job assignment not found", err.Error())
	case errors.Is(err, lock.ErrLockTimeout):
		writeProblem(w, http.StatusConflict, problemConflict, "Job assignment busy", err.Error())
	case r.Context().Err() != nil:
		writeProblem(w, http.StatusServiceUnavailable, problemUnavailable, "Request cancelled", err.Error())
	default:
		s.deps.Logger.Error("notification failed", "assignment", n.JobAssignmentID, "error", err)
		writeProblem(w, http.StatusInternalServerError, problemInternal, "Internal error", err.Error())
	}
}

func (s *Server) handleGetAssignment(w http.ResponseWriter, r *http.Request) {
	id := job.AssignmentID(chi.URLParam(r, "guid"))

	a, err := s.deps.Assignments.GetAssignment(r.Context(), id)
	if errors.Is(err, job.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, problemNotFound, "Job assignment not found", id)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, problemInternal, "Internal error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	// chi matches on the escaped path whenever one was kept.
	if r.URL.RawPath != "" {
		unescaped, err := url.PathUnescape(key)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, problemBadRequest, "Invalid artifact key", err.Error())
			return
		}
		key = unescaped
	}
	q := r.URL.Query()

	if err := s.deps.Verifier.Verify(key, q.Get(artifact.ParamExpires), q.Get(artifact.ParamSignature), s.deps.Now()); err != nil {
		writeProblem(w, http.StatusForbidden, problemForbidden, "Access denied", err.Error())
		return
	}

	rec, err := s.deps.Blobs.Get(r.Context(), key)
	if errors.Is(err, store.ErrArtifactNotFound) {
		writeProblem(w, http.StatusNotFound, problemNotFound, "Artifact not found", key)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, problemInternal, "Internal error", err.Error())
		return
	}

	w.Header().Set("Content-Type", rec.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(rec.Content)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(rec.Content)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health != nil {
		if err := s.deps.Health.Ping(r.Context()); err != nil {
			writeProblem(w, http.StatusServiceUnavailable, problemUnavailable, "Database unavailable", err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, typ, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(job.ProblemDetail{Type: typ, Title: title, Detail: detail})
}
