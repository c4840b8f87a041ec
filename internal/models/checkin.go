package models

import "time"

// GenerateCheckInRequest asks for a QR check-in code for an active session.
// Duration is in minutes; zero means the configured default.
type GenerateCheckInRequest struct {
	SessionID string `json:"session_id" validate:"required,uuid"`
	Duration  int    `json:"duration" validate:"omitempty,gte=1"`
}

// CheckInCode is a signed, time limited code rendered as a QR image.
type CheckInCode struct {
	SessionID string    `json:"session_id"`
	Token     string    `json:"token"`
	ScanURL   string    `json:"scan_url"`
	QRCodeURL string    `json:"qr_code_url"`
	Duration  int       `json:"duration"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CheckInRequest carries the token read from a scanned code.
type CheckInRequest struct {
	Token string `json:"token" validate:"required"`
}
