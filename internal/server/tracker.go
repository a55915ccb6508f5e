package server

import (
	"context"
	"encoding/json"
	"errors"
	"mastery-tracker/internal/constants"
	"mastery-tracker/internal/middleware"
	"mastery-tracker/internal/service"
	"mastery-tracker/internal/view"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"
)

type TrackerServer struct {
	store  *service.Store
	logger zerolog.Logger
}

func NewTrackerServer(store *service.Store, logger zerolog.Logger) *TrackerServer {
	return &TrackerServer{store: store, logger: logger}
}

func (s *TrackerServer) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.Health)
	mux.HandleFunc("GET /api/state", s.GetState)
	mux.HandleFunc("POST /api/key", s.SubmitKey)
	mux.HandleFunc("DELETE /api/key", s.ClearKey)
	mux.HandleFunc("PUT /api/filters/completion", s.SetCompletion)
	mux.HandleFunc("PUT /api/filters/goal", s.SetGoal)
	mux.HandleFunc("PUT /api/filters/show-hidden", s.SetShowHidden)
	mux.HandleFunc("POST /api/hidden/{id}", s.ToggleHidden)
	mux.HandleFunc("POST /api/refresh", s.Refresh)
	mux.HandleFunc("POST /api/database/build", s.BuildDatabase)
	mux.HandleFunc("GET /api/database/builds", s.BuildHistory)
	return mux
}

func (s *TrackerServer) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *TrackerServer) GetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Snapshot())
}

type submitKeyRequest struct {
	APIKey string `json:"apiKey"`
}

func (s *TrackerServer) SubmitKey(w http.ResponseWriter, r *http.Request) {
	var req submitKeyRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.store.SubmitKey(req.APIKey); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.store.Snapshot())
}

func (s *TrackerServer) ClearKey(w http.ResponseWriter, r *http.Request) {
	s.store.ClearKey()
	writeJSON(w, http.StatusOK, s.store.Snapshot())
}

type valueRequest[T any] struct {
	Value T `json:"value"`
}

func (s *TrackerServer) SetCompletion(w http.ResponseWriter, r *http.Request) {
	var req valueRequest[view.Completion]
	if !decode(w, r, &req) {
		return
	}
	if err := s.store.SetCompletion(req.Value); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, s.store.Snapshot())
}

func (s *TrackerServer) SetGoal(w http.ResponseWriter, r *http.Request) {
	var req valueRequest[view.Goal]
	if !decode(w, r, &req) {
		return
	}
	if err := s.store.SetGoal(req.Value); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, s.store.Snapshot())
}

func (s *TrackerServer) SetShowHidden(w http.ResponseWriter, r *http.Request) {
	var req valueRequest[bool]
	if !decode(w, r, &req) {
		return
	}
	s.store.SetShowHidden(req.Value)
	writeJSON(w, http.StatusOK, s.store.Snapshot())
}

func (s *TrackerServer) ToggleHidden(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		writeError(w, r, http.StatusBadRequest, errors.New("achievement id must be a positive integer"))
		return
	}
	hidden := s.store.ToggleHidden(id)
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "hidden": hidden})
}

// Refresh waits for the load to finish. Load failures are part of the
// returned state, not an HTTP error.
func (s *TrackerServer) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), constants.LoadTimeout)
	defer cancel()

	if err := s.store.Refresh(ctx); err != nil {
		s.logger.Warn().Err(err).Str("request_id", middleware.GetRequestID(r.Context())).Msg("refresh failed")
	}
	writeJSON(w, http.StatusOK, s.store.Snapshot())
}

func (s *TrackerServer) BuildDatabase(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), constants.BuildTimeout)
	defer cancel()

	err := s.store.BuildDatabase(ctx)
	if errors.Is(err, service.ErrBuildInProgress) {
		writeError(w, r, http.StatusConflict, err)
		return
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("request_id", middleware.GetRequestID(r.Context())).Msg("database build failed")
	}
	writeJSON(w, http.StatusOK, s.store.Snapshot())
}

func (s *TrackerServer) BuildHistory(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, r, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, s.store.BuildHistory(r.Context(), limit))
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, r, http.StatusBadRequest, errors.New("invalid JSON body"))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	writeJSON(w, status, map[string]string{
		"error":     err.Error(),
		"requestId": middleware.GetRequestID(r.Context()),
	})
}
