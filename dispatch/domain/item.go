package domain

import "time"

// Status is the dispatch lifecycle of a queue item.
type Status string

const (
	// StatusStaged items wait for operator approval and are never dispatched.
	StatusStaged     Status = "staged"
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusStaged, StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// EditableStatuses are the statuses in which an operator may change recipient data.
var EditableStatuses = []Status{StatusStaged, StatusPending, StatusFailed}

// Editable reports whether an operator may change recipient data in this status.
func (s Status) Editable() bool {
	for _, e := range EditableStatuses {
		if s == e {
			return true
		}
	}
	return false
}

// Item is one message, optionally with a document, for one recipient.
type Item struct {
	ID           uint      `json:"id"`
	TenantID     string    `json:"tenant_id"`
	Name         string    `json:"name"`
	Mobile       string    `json:"mobile"`
	DocumentPath string    `json:"pdf_path,omitempty"`
	DocumentName string    `json:"original_filename,omitempty"`
	Message      string    `json:"message,omitempty"`
	Status       Status    `json:"status"`
	Retries      int       `json:"retries"`
	Error        string    `json:"error,omitempty"`
	Logs         string    `json:"logs,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (i Item) HasDocument() bool {
	return i.DocumentPath != ""
}

// Eligible reports whether a pass may pick the item up.
func (i Item) Eligible(maxRetries int) bool {
	switch i.Status {
	case StatusPending:
		return true
	case StatusFailed:
		return i.Retries < maxRetries
	}
	return false
}

// Extraction is the best-effort recipient data read from a document.
// Nil fields were not found.
type Extraction struct {
	Name        *string `json:"name"`
	Mobile      *string `json:"mobile"`
	TextPreview string  `json:"text_preview"`
}

// Complete reports whether the extraction can skip staging.
func (e Extraction) Complete() bool {
	return e.Name != nil && *e.Name != "" && e.Mobile != nil && *e.Mobile != ""
}

// PassResult summarizes one dispatch pass for one tenant.
type PassResult struct {
	TenantID  string `json:"tenant_id"`
	Processed int    `json:"processed"`
	Completed int    `json:"completed"`
	Retried   int    `json:"retried"`
	Failed    int    `json:"failed"`
	Staged    int    `json:"staged"`
	Skipped   bool   `json:"skipped"`
	Reason    string `json:"reason,omitempty"`
}

// QueueState is the operator-visible dispatch state of a tenant.
type QueueState struct {
	Paused       bool             `json:"isPaused"`
	Processing   bool             `json:"isProcessing"`
	Template     string           `json:"template,omitempty"`
	StatusCounts map[Status]int64 `json:"counts"`
}
