package domain

import "time"

// OTPChallenge is the single live code for a subject.
type OTPChallenge struct {
	SubjectID string    `json:"subject_id"`
	Code      string    `json:"code"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// LiveAt reports whether the challenge can still be redeemed at now.
func (c OTPChallenge) LiveAt(now time.Time) bool {
	return now.Before(c.ExpiresAt)
}
