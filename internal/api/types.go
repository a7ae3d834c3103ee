package api

import "time"

type TrackRequest struct {
	Username    string `json:"username"`
	Type        string `json:"type"` // "triggered" or "inquired"
	JobName     string `json:"job_name"`
	BuildNumber string `json:"build_number,omitempty"` // empty = latest build
	Subject     string `json:"subject,omitempty"`
}

type TrackResponse struct {
	JobName     string `json:"job_name"`
	BuildNumber string `json:"build_number"`
	Status      string `json:"status"`
	Tracked     bool   `json:"tracked"`
	Message     string `json:"message"`
}

type NotificationResponse struct {
	ID          string `json:"id"`
	JobName     string `json:"job_name"`
	BuildNumber string `json:"build_number"`
	Status      string `json:"status"`
	Type        string `json:"type"`
	CreatedAt   string `json:"created_at"`
}

type NotificationsResponse struct {
	Messages      []string               `json:"messages,omitempty"`
	Notifications []NotificationResponse `json:"notifications"`
}

type MarkReadRequest struct {
	Username    string `json:"username"`
	JobName     string `json:"job_name"`
	BuildNumber string `json:"build_number"`
}

type MarkAllReadRequest struct {
	Username string `json:"username"`
}

type MarkReadResponse struct {
	Marked int64 `json:"marked"`
}

type SettingsRequest struct {
	Username string `json:"username"`
	Enabled  *bool  `json:"enabled"`
}

type SettingsResponse struct {
	Username string `json:"username"`
	Enabled  bool   `json:"enabled"`
}

type StatusResponse struct {
	JobName     string `json:"job_name"`
	BuildNumber string `json:"build_number"`
	Status      string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
