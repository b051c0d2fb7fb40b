package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ortholink/callbridge/internal/models"
	"github.com/ortholink/callbridge/internal/overlay"
)

// defaultMessageLimit caps the message log listing when no limit is given.
const defaultMessageLimit = 50

func (s *Server) callEventsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var event models.CallEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		slog.Warn("Server.callEventsHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	slog.Debug("Server.callEventsHandler: event received", "state", event.State, "direction", event.Direction)

	if err := s.monitor.HandleCallEvent(r.Context(), event); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Recorded("Call event processed"))
}

func (s *Server) overlayHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(s.machine.Snapshot()))
}

type overlayActionRequest struct {
	Action   string `json:"action"`
	ActionID string `json:"action_id,omitempty"`
}

func (s *Server) overlayActionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req overlayActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.overlayActionHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	slog.Debug("Server.overlayActionHandler: action requested", "action", req.Action, "actionID", req.ActionID)

	var err error
	switch req.Action {
	case "accept":
		err = s.machine.Accept(r.Context())
	case "end":
		s.machine.End(r.Context())
	case "minimize":
		s.machine.Minimize()
	case "restore":
		err = s.machine.Restore()
	case "quick_action":
		err = s.machine.TriggerQuickAction(r.Context(), req.ActionID)
	default:
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Unknown overlay action"))
		return
	}
	if err != nil {
		writeJSONResponse(w, actionErrorStatus(err), models.Error(err.Error()))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(s.machine.Snapshot()))
}

// actionErrorStatus maps overlay errors onto HTTP status codes.
func actionErrorStatus(err error) int {
	switch {
	case errors.Is(err, overlay.ErrUnknownAction):
		return http.StatusBadRequest
	case errors.Is(err, overlay.ErrNoActiveSession), errors.Is(err, overlay.ErrNotMinimized), errors.Is(err, overlay.ErrNotIncoming):
		return http.StatusConflict
	case errors.Is(err, models.ErrAutomationBusy):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

type summaryResponse struct {
	Locations []models.LocationStats `json:"locations"`
	Refreshed time.Time              `json:"refreshed"`
}

func (s *Server) summaryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	stats, refreshed := s.summary.Stats()
	writeJSONResponse(w, http.StatusOK, models.Success(summaryResponse{Locations: stats, Refreshed: refreshed}))
}

func (s *Server) updatesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.checker == nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Update checks are not configured"))
		return
	}
	info, err := s.checker.Check(r.Context())
	if err != nil {
		slog.Error("Server.updatesHandler: update check failed", "error", err)
		writeJSONResponse(w, http.StatusBadGateway, models.Error("Update check failed"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(info))
}

func (s *Server) messagesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.log == nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Message log is not configured"))
		return
	}
	limit := defaultMessageLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid limit parameter"))
			return
		}
		limit = n
	}
	records, err := s.log.ListMessages(limit)
	if err != nil {
		slog.Error("Server.messagesHandler: failed to list messages", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list messages"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(records))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"status": "healthy"}))
}
