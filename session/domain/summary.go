package domain

import "time"

// Summary is the admin view of one session.
type Summary struct {
	TenantID   string    `json:"tenant_id"`
	Status     State     `json:"status"`
	Failures   int       `json:"retries"`
	HasClient  bool      `json:"has_client"`
	HasQR      bool      `json:"has_qr"`
	LastError  string    `json:"last_error,omitempty"`
	Generation uint64    `json:"generation"`
	UpdatedAt  time.Time `json:"updated_at"`
}
