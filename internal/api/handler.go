package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"buildwatch/internal/domain"
	"buildwatch/internal/oracle"
)

type Store interface {
	UpsertTrackedJob(ctx context.Context, job domain.TrackedJob) error
	ListUnread(ctx context.Context, username string) ([]domain.Notification, error)
	MarkRead(ctx context.Context, username, jobName, buildNumber string) error
	MarkAllRead(ctx context.Context, username string) (int64, error)
	SetNotificationsEnabled(ctx context.Context, username string, enabled bool) error
}

// BuildOracle answers questions about builds on the CI server.
type BuildOracle interface {
	CheckStatus(ctx context.Context, jobName, buildNumber string) (domain.BuildStatus, error)
	LastBuildNumber(ctx context.Context, jobName string) (string, error)
}

// UserChecker runs the foreground reconciliation check for one user.
type UserChecker interface {
	CheckAndNotify(ctx context.Context, username string) ([]string, error)
}

// HealthChecker provides database health status for the /health endpoint.
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

type Handler struct {
	store   Store
	oracle  BuildOracle
	checker UserChecker
	db      HealthChecker
	clock   func() time.Time
}

func NewHandler(store Store, oracle BuildOracle, checker UserChecker) *Handler {
	return &Handler{
		store:   store,
		oracle:  oracle,
		checker: checker,
		clock:   time.Now,
	}
}

// WithHealthChecker sets the database health checker for verbose /health responses.
func (h *Handler) WithHealthChecker(db HealthChecker) *Handler {
	h.db = db
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	switch {
	case path == "/health" && r.Method == http.MethodGet:
		h.health(w, r)

	case path == "/track" && r.Method == http.MethodPost:
		h.track(w, r)

	case path == "/notifications" && r.Method == http.MethodGet:
		h.listNotifications(w, r)

	case path == "/notifications/read" && r.Method == http.MethodPost:
		h.markRead(w, r)

	case path == "/notifications/read-all" && r.Method == http.MethodPost:
		h.markAllRead(w, r)

	case path == "/notifications/settings" && r.Method == http.MethodPost:
		h.settings(w, r)

	case path == "/status" && r.Method == http.MethodGet:
		h.status(w, r)

	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// HealthResponse represents the /health endpoint response.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	verbose := r.URL.Query().Get("verbose") == "true"

	if !verbose || h.db == nil {
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
		return
	}

	resp := HealthResponse{
		Status:     "ok",
		Components: make(map[string]string),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		resp.Status = "degraded"
		resp.Components["database"] = "unhealthy: " + err.Error()
	} else {
		resp.Components["database"] = "healthy"
	}

	statusCode := http.StatusOK
	if resp.Status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, resp)
}

// maxRequestBodySize is the maximum allowed request body size (1MB).
const maxRequestBodySize = 1 << 20

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if err.Error() == "http: request body too large" {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

func (h *Handler) track(w http.ResponseWriter, r *http.Request) {
	var req TrackRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := validateTrack(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()

	build := req.BuildNumber
	if build == "" {
		latest, err := h.oracle.LastBuildNumber(ctx, req.JobName)
		if err != nil {
			if errors.Is(err, oracle.ErrBuildNotFound) {
				writeError(w, http.StatusNotFound, "job has no builds")
				return
			}
			log.Printf("api: last build lookup error: %v", err)
			writeError(w, http.StatusServiceUnavailable, "ci server unreachable")
			return
		}
		build = latest
	}

	status, err := h.oracle.CheckStatus(ctx, req.JobName, build)
	if err != nil {
		if errors.Is(err, oracle.ErrBuildNotFound) {
			writeError(w, http.StatusNotFound, "no such build")
			return
		}
		log.Printf("api: status check error: %v", err)
		writeError(w, http.StatusInternalServerError, "status check failed")
		return
	}

	listType := domain.ListType(req.Type)

	switch {
	case status == domain.StatusUnknown:
		// CI reachable but undecipherable, or circuit open. Nothing recorded.
		writeError(w, http.StatusServiceUnavailable, "build status unavailable, try again")
		return

	case status.IsTerminal():
		// Already finished: report the outcome, track nothing.
		writeJSON(w, http.StatusOK, TrackResponse{
			JobName:     req.JobName,
			BuildNumber: build,
			Status:      string(status),
			Tracked:     false,
			Message:     domain.CompletionSubject(req.JobName, build, status),
		})
		return
	}

	subject := req.Subject
	if subject == "" {
		subject = domain.RunningSubject(listType, req.JobName, build)
	}

	job := domain.TrackedJob{
		Username:    req.Username,
		ListType:    listType,
		JobName:     req.JobName,
		BuildNumber: build,
		Status:      domain.StatusRunning,
		Subject:     subject,
		UpdatedAt:   h.clock().UTC(),
	}
	if err := h.store.UpsertTrackedJob(ctx, job); err != nil {
		log.Printf("api: track error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to track build")
		return
	}

	writeJSON(w, http.StatusCreated, TrackResponse{
		JobName:     req.JobName,
		BuildNumber: build,
		Status:      string(status),
		Tracked:     true,
		Message:     subject,
	})
}

func (h *Handler) listNotifications(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if err := validateUsername(username); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()

	// Reconcile this user's running builds first so completions that
	// happened since the last poll show up in this response.
	messages, err := h.checker.CheckAndNotify(ctx, username)
	if err != nil {
		// The feed is still worth serving when the check fails.
		log.Printf("api: check for %s error: %v", username, err)
	}

	unread, err := h.store.ListUnread(ctx, username)
	if err != nil {
		log.Printf("api: list notifications error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}

	resp := NotificationsResponse{
		Messages:      messages,
		Notifications: make([]NotificationResponse, len(unread)),
	}
	for i, n := range unread {
		resp.Notifications[i] = NotificationResponse{
			ID:          n.ID.String(),
			JobName:     n.JobName,
			BuildNumber: n.BuildNumber,
			Status:      string(n.Status),
			Type:        string(n.Type),
			CreatedAt:   formatTime(n.CreatedAt),
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	var req MarkReadRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := validateUsername(req.Username); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validateJobName(req.JobName); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validateBuildNumber(req.BuildNumber); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.MarkRead(r.Context(), req.Username, req.JobName, req.BuildNumber); err != nil {
		if err == sql.ErrNoRows {
			writeError(w, http.StatusNotFound, "no unread notification for this build")
			return
		}
		log.Printf("api: mark read error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to mark notification read")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) markAllRead(w http.ResponseWriter, r *http.Request) {
	var req MarkAllReadRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := validateUsername(req.Username); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	marked, err := h.store.MarkAllRead(r.Context(), req.Username)
	if err != nil {
		log.Printf("api: mark all read error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to mark notifications read")
		return
	}

	writeJSON(w, http.StatusOK, MarkReadResponse{Marked: marked})
}

func (h *Handler) settings(w http.ResponseWriter, r *http.Request) {
	var req SettingsRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := validateUsername(req.Username); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Enabled == nil {
		writeError(w, http.StatusBadRequest, "enabled is required")
		return
	}

	if err := h.store.SetNotificationsEnabled(r.Context(), req.Username, *req.Enabled); err != nil {
		log.Printf("api: settings error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to update settings")
		return
	}

	writeJSON(w, http.StatusOK, SettingsResponse{Username: req.Username, Enabled: *req.Enabled})
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	jobName := r.URL.Query().Get("job")
	build := r.URL.Query().Get("build")

	if err := validateJobName(jobName); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validateBuildNumber(build); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	status, err := h.oracle.CheckStatus(r.Context(), jobName, build)
	if err != nil {
		if errors.Is(err, oracle.ErrBuildNotFound) {
			writeError(w, http.StatusNotFound, "no such build")
			return
		}
		log.Printf("api: status check error: %v", err)
		writeError(w, http.StatusInternalServerError, "status check failed")
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		JobName:     jobName,
		BuildNumber: build,
		Status:      string(status),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: json encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
