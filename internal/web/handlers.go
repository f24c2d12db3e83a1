package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/andresmejia3/facecam/internal/pipeline"
	"github.com/andresmejia3/facecam/internal/store"
	"go.uber.org/zap"
)

type statusResponse struct {
	Mode             string                `json:"mode"`
	CameraActive     bool                  `json:"camera_active"`
	DeviceID         string                `json:"device_id,omitempty"`
	Registration     *registrationResponse `json:"registration,omitempty"`
	InFlight         int                   `json:"in_flight"`
	Visible          bool                  `json:"visible"`
	Sampling         bool                  `json:"sampling"`
	Ticks            uint64                `json:"ticks"`
	SkippedTicks     uint64                `json:"skipped_ticks"`
	Dispatched       uint64                `json:"dispatched"`
	LastProcessingMS float64               `json:"last_processing_ms"`
}

type registrationResponse struct {
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	Captured int    `json:"captured"`
	Target   int    `json:"target"`
}

type cameraStartRequest struct {
	DeviceID string `json:"device_id"`
}

type registerRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type visibilityRequest struct {
	Visible bool `json:"visible"`
}

type eventResponse struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id,omitempty"`
	Kind      string    `json:"kind"`
	Name      string    `json:"name,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type sessionResponse struct {
	ID        string     `json:"id"`
	DeviceID  string     `json:"device_id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Events    int        `json:"events"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondControllerError maps controller guard errors onto status codes.
func respondControllerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pipeline.ErrCameraInactive), errors.Is(err, pipeline.ErrNameRequired):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, pipeline.ErrCameraActive), errors.Is(err, pipeline.ErrModeActive):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, pipeline.ErrClosed):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

// decodeJSON reads an optional JSON body; an empty body leaves dst untouched.
func decodeJSON(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	return json.Unmarshal(body, dst)
}

func toStatusResponse(st pipeline.Status) statusResponse {
	resp := statusResponse{
		Mode:             st.Mode.String(),
		CameraActive:     st.Camera.Active,
		DeviceID:         st.Camera.DeviceID,
		InFlight:         st.InFlight,
		Visible:          st.Visible,
		Sampling:         st.Sampling,
		Ticks:            st.Ticks,
		SkippedTicks:     st.SkippedTicks,
		Dispatched:       st.Dispatched,
		LastProcessingMS: st.LastProcessingMS,
	}
	if st.Mode == pipeline.ModeRegistering {
		resp.Registration = &registrationResponse{
			Name:     st.Registration.Name,
			Email:    st.Registration.Email,
			Captured: st.Registration.Captured,
			Target:   st.Registration.Target,
		}
	}
	return resp
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.devices()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if devices == nil {
		devices = []string{}
	}
	respondJSON(w, http.StatusOK, map[string][]string{"devices": devices})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeStatus(w)
}

// writeStatus answers an action with the resulting controller snapshot.
func (s *Server) writeStatus(w http.ResponseWriter) {
	st, err := s.ctrl.Status()
	if err != nil {
		respondControllerError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toStatusResponse(st))
}

func (s *Server) handleCameraStart(w http.ResponseWriter, r *http.Request) {
	var req cameraStartRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.ctrl.StartCamera(req.DeviceID); err != nil {
		respondControllerError(w, err)
		return
	}
	s.writeStatus(w)
}

func (s *Server) handleCameraStop(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.StopCamera(); err != nil {
		respondControllerError(w, err)
		return
	}
	s.writeStatus(w)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.ctrl.StartRegister(req.Name, req.Email); err != nil {
		respondControllerError(w, err)
		return
	}
	s.writeStatus(w)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.StartVerify(); err != nil {
		respondControllerError(w, err)
		return
	}
	s.writeStatus(w)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Cancel(); err != nil {
		respondControllerError(w, err)
		return
	}
	s.writeStatus(w)
}

func (s *Server) handleVisibility(w http.ResponseWriter, r *http.Request) {
	var req visibilityRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.ctrl.SetVisible(req.Visible); err != nil {
		respondControllerError(w, err)
		return
	}
	s.writeStatus(w)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	eventCh := s.events.AddListener()
	if eventCh == nil {
		respondError(w, http.StatusServiceUnavailable, "shutting down")
		return
	}
	defer s.events.RemoveListener(eventCh)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Initial snapshot so a fresh client can render without waiting
	if st, err := s.ctrl.Status(); err == nil {
		sendSSEEvent(w, flusher, "snapshot", toStatusResponse(st))
	} else {
		flusher.Flush()
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			sendSSEEvent(w, flusher, event.Type, event)
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) {
	jsonData, _ := json.Marshal(data)
	_, _ = io.WriteString(w, "event: "+eventType+"\n")
	_, _ = io.WriteString(w, "data: ")
	_, _ = io.Copy(w, bytes.NewReader(jsonData))
	_, _ = io.WriteString(w, "\n\n")
	flusher.Flush()
}

func queryLimit(r *http.Request, def int) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			return n
		}
	}
	return def
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		respondError(w, http.StatusNotFound, "history requires a database")
		return
	}
	events, err := s.history.ListEvents(r.Context(), r.URL.Query().Get("kind"), queryLimit(r, 50))
	if err != nil {
		s.log.Error("history query failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	out := make([]eventResponse, 0, len(events))
	for _, e := range events {
		er := eventResponse{ID: e.ID, Kind: e.Kind, Name: e.Name, Detail: e.Detail, CreatedAt: e.CreatedAt}
		if e.SessionID.Valid {
			er.SessionID = e.SessionID.UUID.String()
		}
		out = append(out, er)
	}
	respondJSON(w, http.StatusOK, map[string]any{"events": out})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		respondError(w, http.StatusNotFound, "history requires a database")
		return
	}
	sessions, err := s.history.ListSessions(r.Context(), queryLimit(r, 20))
	if err != nil {
		s.log.Error("session query failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to load sessions")
		return
	}
	out := make([]sessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sessionResponse{
			ID:        sess.ID.String(),
			DeviceID:  sess.DeviceID,
			StartedAt: sess.StartedAt,
			EndedAt:   sess.EndedAt,
			Events:    sess.Events,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		respondError(w, http.StatusNotFound, "history requires a database")
		return
	}
	sum, err := s.history.Summarize(r.Context())
	if err != nil {
		s.log.Error("summary query failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to load summary")
		return
	}
	respondJSON(w, http.StatusOK, summaryResponse(sum))
}

func summaryResponse(sum store.Summary) map[string]int {
	return map[string]int{
		"sessions":      sum.Sessions,
		"matches":       sum.Matches,
		"registrations": sum.Registrations,
		"errors":        sum.Errors,
	}
}
