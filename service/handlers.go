package service

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"

	"github.com/0xSardius/castmark/errors"
	"github.com/0xSardius/castmark/registry"
)

type registerRequest struct {
	Identifier string `json:"identifier"`
	Name       string `json:"name"`
	URL        string `json:"url"`
}

type updateRequest struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type transferRequest struct {
	NewOwner string `json:"new_owner"`
}

type batchRequest struct {
	Identifiers []string `json:"identifiers"`
	Names       []string `json:"names"`
	URLs        []string `json:"urls"`
}

type markResponse struct {
	Key       string `json:"key"`
	Name      string `json:"name"`
	URL       string `json:"url"`
	Owner     string `json:"owner"`
	UpdatedAt int64  `json:"updated_at"`
	Exists    bool   `json:"exists"`
}

type registeredResponse struct {
	Registered bool `json:"registered"`
}

type statusResponse struct {
	Paused bool `json:"paused"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

func (s *Service) handleRegister(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.principal(w, r)
	if !ok {
		return
	}

	var req registerRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	if err := s.registry.Register(r.Context(), req.Identifier, req.Name, req.URL, caller); err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"key": registry.KeyFor(req.Identifier).Hex(),
	})
}

func (s *Service) handleBatchRegister(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.principal(w, r)
	if !ok {
		return
	}

	var req batchRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	if err := s.registry.BatchRegister(r.Context(), req.Identifiers, req.Names, req.URLs, caller); err != nil {
		s.writeError(w, err)
		return
	}

	keys := make([]string, len(req.Identifiers))
	for i, identifier := range req.Identifiers {
		keys[i] = registry.KeyFor(identifier).Hex()
	}
	writeJSON(w, http.StatusCreated, map[string][]string{"keys": keys})
}

func (s *Service) handleLookup(w http.ResponseWriter, r *http.Request) {
	identifier := r.PathValue("identifier")

	mark, err := s.registry.GetMark(identifier)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, markResponse{
		Key:       registry.KeyFor(identifier).Hex(),
		Name:      mark.Name,
		URL:       mark.URL,
		Owner:     string(mark.Owner),
		UpdatedAt: mark.UpdatedAt,
		Exists:    mark.Exists,
	})
}

func (s *Service) handleRegistered(w http.ResponseWriter, r *http.Request) {
	identifier := r.PathValue("identifier")
	writeJSON(w, http.StatusOK, registeredResponse{
		Registered: s.registry.IsRegistered(identifier),
	})
}

func (s *Service) handleUpdate(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.principal(w, r)
	if !ok {
		return
	}

	var req updateRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	if err := s.registry.Update(r.Context(), r.PathValue("identifier"), req.Name, req.URL, caller); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleTransfer(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.principal(w, r)
	if !ok {
		return
	}

	var req transferRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	err := s.registry.Transfer(r.Context(), r.PathValue("identifier"), registry.Principal(req.NewOwner), caller)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleRemove(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.principal(w, r)
	if !ok {
		return
	}

	if err := s.registry.Remove(r.Context(), r.PathValue("identifier"), caller); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handlePause(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.principal(w, r)
	if !ok {
		return
	}

	if err := s.registry.Pause(caller); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Paused: true})
}

func (s *Service) handleUnpause(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.principal(w, r)
	if !ok {
		return
	}

	if err := s.registry.Unpause(caller); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Paused: false})
}

// principal extracts the caller principal from the request header. A missing
// header fails the request with 401 before the registry is touched.
func (s *Service) principal(w http.ResponseWriter, r *http.Request) (registry.Principal, bool) {
	value := r.Header.Get(PrincipalHeader)
	if value == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{
			Error:  "missing " + PrincipalHeader + " header",
			Status: http.StatusUnauthorized,
		})
		return "", false
	}
	return registry.Principal(value), true
}

// decodeBody reads and decodes a JSON request body, writing a 400 on failure
func (s *Service) decodeBody(w http.ResponseWriter, r *http.Request, target any) bool {
	defer r.Body.Close()

	data, err := io.ReadAll(io.LimitReader(r.Body, maxRequestSize))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:  "failed to read request body",
			Status: http.StatusBadRequest,
		})
		return false
	}
	if err := json.Unmarshal(data, target); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:  "malformed JSON body",
			Status: http.StatusBadRequest,
		})
		return false
	}
	return true
}

// writeError maps a registry error to an HTTP status and writes the response.
// The sentinel text is safe to expose; wrapped internal detail is logged only.
func (s *Service) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "internal server error"

	switch {
	case stderrors.Is(err, errors.ErrAlreadyRegistered):
		status, message = http.StatusConflict, errors.ErrAlreadyRegistered.Error()
	case stderrors.Is(err, errors.ErrNotRegistered):
		status, message = http.StatusNotFound, errors.ErrNotRegistered.Error()
	case stderrors.Is(err, errors.ErrRemoved):
		status, message = http.StatusGone, errors.ErrRemoved.Error()
	case stderrors.Is(err, errors.ErrNotOwner):
		status, message = http.StatusForbidden, errors.ErrNotOwner.Error()
	case stderrors.Is(err, errors.ErrNotAuthorized):
		status, message = http.StatusForbidden, errors.ErrNotAuthorized.Error()
	case stderrors.Is(err, errors.ErrServicePaused):
		status, message = http.StatusServiceUnavailable, errors.ErrServicePaused.Error()
	case stderrors.Is(err, errors.ErrBatchLengthMismatch):
		status, message = http.StatusBadRequest, errors.ErrBatchLengthMismatch.Error()
	case stderrors.Is(err, errors.ErrInvalidInput):
		status, message = http.StatusBadRequest, errors.ErrInvalidInput.Error()
	case errors.IsTransient(err):
		status, message = http.StatusServiceUnavailable, "service temporarily unavailable"
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, errorResponse{Error: message, Status: status})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	data, _ := json.Marshal(body)
	_, _ = w.Write(data)
}
