package protocol

// History is the body of GET /api/notifications.
type History struct {
	Notifications []Notification `json:"notifications"`
	Unread        int            `json:"unread"`
}

// MarkReadRequest is the body of POST /api/notifications/read.
type MarkReadRequest struct {
	IDs []string `json:"ids"`
}

type MarkReadResponse struct {
	Updated int `json:"updated"`
}

// PublishRequest is the body of POST /internal/notifications.
type PublishRequest struct {
	UserID       string       `json:"userId"`
	Notification Notification `json:"notification"`
}

// SignalRequest is the body of POST /internal/signals/invitations.
type SignalRequest struct {
	UserID string `json:"userId"`
}
