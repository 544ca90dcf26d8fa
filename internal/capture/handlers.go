package capture

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/zombor/id-capture/internal/document"
	"github.com/zombor/id-capture/internal/session"
	"github.com/zombor/id-capture/internal/submission"
)

// maxUploadSize covers full-resolution phone photos
const maxUploadSize = int64(20 << 20)

// writeJSON encodes v with the given status
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeError writes {"error": message}
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

// statusFor maps service errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, document.ErrSessionNotFound), errors.Is(err, submission.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, document.ErrCaptureInProgress),
		errors.Is(err, document.ErrNotSubmittable),
		errors.Is(err, document.ErrNotEditable):
		return http.StatusConflict
	case errors.Is(err, document.ErrUnknownField), errors.Is(err, document.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, document.ErrCaptureFailed):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError logs unexpected failures and writes the mapped status
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, "Internal server error", status)
		return
	}
	writeError(w, err.Error(), status)
}

// handleListFields returns the field table so clients can render the form
func (s *Server) handleListFields(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Fields())
}

// handleCreateSession starts a new session
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	snap, err := s.service.CreateSession()
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

// handleGetSession returns a session snapshot
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	snap, err := s.service.GetSession(r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleDeleteSession forgets a session
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteSession(r.PathValue("id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCapture takes the uploaded image as the session's camera frame
func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "session_id", id, "error", err)
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, "File is too large. Maximum size is 20MB.", http.StatusRequestEntityTooLarge)
			return
		}
		writeError(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			writeError(w, "No file was selected. Please choose an image to upload.", http.StatusBadRequest)
			return
		}
		writeError(w, "No file provided", http.StatusBadRequest)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = session.ContentTypeForName(header.Filename)
	}

	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))

	snap, err := s.service.Capture(r.Context(), id, data, contentType, wait)
	if err != nil {
		slog.Error("Error capturing document", "session_id", id, "filename", header.Filename, "error", err)
		writeServiceError(w, r, err)
		return
	}

	status := http.StatusAccepted
	if snap.State != session.Recognizing {
		status = http.StatusOK
	}
	writeJSON(w, status, snap)
}

// handleEditField updates a single field value
func (s *Server) handleEditField(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value *string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Value == nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	snap, err := s.service.EditField(r.PathValue("id"), document.FieldKey(r.PathValue("key")), *req.Value)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleSubmit submits the session's current values
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	sub, err := s.service.Submit(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// handleReset abandons the current capture
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	snap, err := s.service.Reset(r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleListSubmissions returns all stored submissions
func (s *Server) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	subs, err := s.service.ListSubmissions()
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

// handleGetSubmission returns one stored submission
func (s *Server) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	sub, err := s.service.GetSubmission(r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// handleDeleteSubmission removes one stored submission
func (s *Server) handleDeleteSubmission(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteSubmission(r.PathValue("id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
