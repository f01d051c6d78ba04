package domain

import "time"

// Registration is one request to be emailed when Domain becomes available.
// Notified moves false → true exactly once, after a successful send.
type Registration struct {
	ID         string     `json:"id"`
	Domain     string     `json:"domain"`
	Email      string     `json:"email"`
	Notified   bool       `json:"notified"`
	CreatedAt  time.Time  `json:"created_at"`
	NotifiedAt *time.Time `json:"notified_at,omitempty"`
}
