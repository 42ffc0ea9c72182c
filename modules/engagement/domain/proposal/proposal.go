package proposal

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusDraft             Status = "Draft"
	StatusSentToClient      Status = "SentToClient"
	StatusRevisionRequested Status = "RevisionRequested"
	StatusApproved          Status = "Approved"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusSentToClient, StatusRevisionRequested, StatusApproved:
		return true
	}
	return false
}

// Reviewable reports whether a proposal in this status is part of the
// client-facing review flow.
func (s Status) Reviewable() bool {
	switch s {
	case StatusSentToClient, StatusApproved, StatusRevisionRequested:
		return true
	}
	return false
}

type Attachment struct {
	FileName   string `json:"file_name"`
	StorageKey string `json:"storage_key"`
}

type Proposal struct {
	ID             uuid.UUID    `json:"id"`
	OpportunityID  uuid.UUID    `json:"opportunity_id"`
	ContactID      uuid.UUID    `json:"contact_id"`
	Title          string       `json:"title"`
	Status         Status       `json:"status"`
	IsCurrent      bool         `json:"is_current"`
	CreatedAt      time.Time    `json:"created_at"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	ReviewerID     *uuid.UUID   `json:"reviewer_id,omitempty"`
	ClientFeedback *string      `json:"client_feedback,omitempty"`

	// Legacy marks single-proposal records migrated from before contacts
	// could accumulate multiple proposals. They only surface when no
	// reviewable proposal exists.
	Legacy bool `json:"legacy,omitempty"`
}
