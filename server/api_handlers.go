package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/jrsteele09/go-rollcall/attendance"
	"github.com/jrsteele09/go-rollcall/internal/errors"
	"github.com/jrsteele09/go-rollcall/syncer"
	"github.com/rs/zerolog/log"
)

const contentTypeJSON = "application/json; charset=utf-8"

type courseResponse struct {
	ID      string `json:"id"`
	Code    string `json:"code"`
	Name    string `json:"name"`
	Section string `json:"section"`
	Year    int    `json:"year"`
	Term    string `json:"term"`
	Path    string `json:"path"`
}

type statusResponse struct {
	Connected    bool               `json:"connected"`
	CanRefresh   bool               `json:"can_refresh"`
	Account      string             `json:"account,omitempty"`
	ExpiresAt    *time.Time         `json:"expires_at,omitempty"`
	ActiveCourse string             `json:"active_course,omitempty"`
	Mode         attendance.Mode    `json:"mode"`
	Save         *syncer.SaveStatus `json:"save,omitempty"`
}

type tapRequest struct {
	StudentID string          `json:"student_id"`
	Mode      attendance.Mode `json:"mode,omitempty"`
}

type tapResponse struct {
	StudentID string            `json:"student_id"`
	Record    attendance.Record `json:"record"`
}

type modeRequest struct {
	Mode string `json:"mode"`
}

type modeResponse struct {
	Mode attendance.Mode `json:"mode"`
}

// StatusHandler reports connection and save state without any network call.
func (s *Server) StatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := s.tokens.State()
		resp := statusResponse{
			Connected:  state.Authenticated,
			CanRefresh: state.CanRefresh,
			Account:    state.Account,
			Mode:       s.classroom.Mode(),
		}
		if !state.ExpiresAt.IsZero() {
			resp.ExpiresAt = &state.ExpiresAt
		}
		if course, ok := s.classroom.ActiveCourse(); ok {
			resp.ActiveCourse = course.ID()
			if save, err := s.classroom.SaveStatus(); err == nil {
				resp.Save = &save
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) CoursesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		courses := s.classroom.Courses()
		resp := make([]courseResponse, 0, len(courses))
		for _, c := range courses {
			resp = append(resp, courseResponse{
				ID:      c.ID(),
				Code:    c.Code,
				Name:    c.Name,
				Section: c.Section,
				Year:    c.Year,
				Term:    c.Term,
				Path:    c.DataPath(),
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) OpenCourseHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dataset, err := s.classroom.OpenCourse(r.Context(), r.PathValue("id"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, dataset)
	}
}

func (s *Server) DatasetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dataset, err := s.classroom.Dataset()
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, dataset)
	}
}

func (s *Server) TapHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req tapRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.StudentID == "" {
			writeJSONError(w, "invalid_request", "student_id is required", http.StatusBadRequest)
			return
		}

		record, err := s.classroom.Tap(req.StudentID, req.Mode)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, tapResponse{StudentID: req.StudentID, Record: record})
	}
}

func (s *Server) GetModeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, modeResponse{Mode: s.classroom.Mode()})
	}
}

func (s *Server) SetModeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req modeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, "invalid_request", "mode is required", http.StatusBadRequest)
			return
		}
		mode, err := attendance.ParseMode(req.Mode)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if err := s.classroom.SetMode(mode); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, modeResponse{Mode: mode})
	}
}

func (s *Server) NoticesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.notices.List())
	}
}

func (s *Server) DismissNoticeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.notices.Dismiss(r.PathValue("id")) {
			writeJSONError(w, "not_found", "notice not found", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// DisconnectHandler revokes and forgets the stored credentials.
func (s *Server) DisconnectHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.tokens.Disconnect(r.Context()); err != nil {
			log.Err(err).Msg("Disconnect failed")
			writeJSONError(w, "server_error", "failed to clear credentials", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// writeDomainError maps core errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errors.ErrCourseNotFound):
		writeJSONError(w, "not_found", err.Error(), http.StatusNotFound)
	case errors.Is(err, errors.ErrUnknownStudent):
		writeJSONError(w, "unknown_student", err.Error(), http.StatusNotFound)
	case errors.Is(err, errors.ErrInvalidMode):
		writeJSONError(w, "invalid_mode", err.Error(), http.StatusBadRequest)
	case errors.Is(err, errors.ErrNoActiveCourse):
		writeJSONError(w, "no_active_course", err.Error(), http.StatusConflict)
	case errors.Is(err, errors.ErrUnauthenticated),
		errors.Is(err, errors.ErrAuthorizationExpired),
		errors.Is(err, errors.ErrRemoteAuth):
		writeJSONError(w, "reconnect_required", err.Error(), http.StatusUnauthorized)
	default:
		log.Err(err).Msg("Request failed")
		writeJSONError(w, "remote_error", err.Error(), http.StatusBadGateway)
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Err(err).Msg("Failed to write response")
	}
}

func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             errorCode,
		"error_description": description,
	})
}
