package models

// Token is a short-lived, single-use download capability tied to a paid
// checkout session. It has no relation to any license record.
type Token struct {
	SessionID string `json:"session_id"`
	ExpiresAt int64  `json:"exp"` // epoch millis
}
