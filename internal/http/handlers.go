package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"voice-task-service/internal/app"
	"voice-task-service/internal/schema"
	"voice-task-service/internal/service/session"
	"voice-task-service/internal/service/stt/relay"
	"voice-task-service/internal/service/transcript"
	"voice-task-service/internal/service/voice"
)

const (
	maxJSONBody  = 64 << 10
	maxAudioBody = 1 << 20
)

type handlers struct {
	app       *app.Application
	validator *schema.Validator
}

type sessionResponse struct {
	session.Status
	Notices []session.Notice `json:"notices"`
}

type errorResponse struct {
	Error  string          `json:"error"`
	Notice *session.Notice `json:"notice,omitempty"`
}

func (h *handlers) readiness(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Ready(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (h *handlers) listTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.app.Store.Load(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (h *handlers) createSession(w http.ResponseWriter, r *http.Request) {
	var req schema.CreateSessionRequest
	if !h.decode(w, r, &req) {
		return
	}
	s, err := h.app.Sessions.Create(r.Context(), voice.CreateOptions{
		PermissionGranted: req.PermissionGranted,
		Language:          req.Language,
	})
	if errors.Is(err, voice.ErrTooMany) {
		writeError(w, http.StatusTooManyRequests, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, describe(s))
}

func (h *handlers) getSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, describe(s))
}

func (h *handlers) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Sessions.Remove(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) startSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.app.Sessions.Start(r.Context(), chi.URLParam(r, "sessionID"))
	if s == nil {
		writeError(w, statusFor(err), err)
		return
	}
	if err != nil {
		writeNoticeError(w, statusFor(err), err, s)
		return
	}
	writeJSON(w, http.StatusOK, describe(s))
}

func (h *handlers) stopSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	// The save must not be cut short by a client that hangs up.
	out, err := s.Controller.Stop(context.WithoutCancel(r.Context()))
	if err != nil {
		writeNoticeError(w, statusFor(err), err, s)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) pushEvent(w http.ResponseWriter, r *http.Request) {
	var req schema.EventRequest
	if !h.decode(w, r, &req) {
		return
	}
	payload, err := transcript.ParseJSON(req.Payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ev := relay.Event{
		Kind:    relay.Kind(req.Kind),
		Payload: payload,
		Code:    req.Code,
		Message: req.Message,
	}
	if err := h.app.Sessions.Push(chi.URLParam(r, "sessionID"), ev); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *handlers) sendAudio(w http.ResponseWriter, r *http.Request) {
	audio, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxAudioBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}
	if err := h.app.Sessions.SendAudio(r.Context(), chi.URLParam(r, "sessionID"), audio); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *handlers) lookup(w http.ResponseWriter, r *http.Request) (*voice.Session, bool) {
	s, err := h.app.Sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return nil, false
	}
	return s, true
}

func (h *handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	if err := h.validator.Validate(dst); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

func describe(s *voice.Session) sessionResponse {
	notices := s.Notices()
	if notices == nil {
		notices = []session.Notice{}
	}
	return sessionResponse{Status: s.Controller.Status(), Notices: notices}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, voice.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, session.ErrSessionActive),
		errors.Is(err, session.ErrNotActive),
		errors.Is(err, relay.ErrNotStarted):
		return http.StatusConflict
	case errors.Is(err, voice.ErrUnsupported):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeNoticeError attaches the session's latest notice so the client can
// show it.
func writeNoticeError(w http.ResponseWriter, status int, err error, s *voice.Session) {
	resp := errorResponse{Error: err.Error()}
	if notices := s.Notices(); len(notices) > 0 {
		last := notices[len(notices)-1]
		resp.Notice = &last
	}
	writeJSON(w, status, resp)
}

func writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg("Request failed")
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Encoding response failed")
	}
}
