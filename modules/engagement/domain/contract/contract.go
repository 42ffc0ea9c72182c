package contract

import (
	"time"

	"github.com/google/uuid"
)

// Kind distinguishes the two contract documents an engagement produces: the
// Master Service Agreement and Statements of Work issued under it.
type Kind string

const (
	KindMSA Kind = "MSA"
	KindSOW Kind = "SOW"
)

type EngagementType string

const (
	EngagementFixedPrice EngagementType = "FixedPrice"
	EngagementRetainer   EngagementType = "Retainer"
)

func (t EngagementType) IsValid() bool {
	switch t {
	case EngagementFixedPrice, EngagementRetainer:
		return true
	}
	return false
}

type Status string

const (
	StatusActive     Status = "Active"
	StatusCompleted  Status = "Completed"
	StatusTerminated Status = "Terminated"
)

type Contract struct {
	ID             uuid.UUID      `json:"id"`
	Kind           Kind           `json:"kind"`
	EngagementType EngagementType `json:"engagement_type,omitempty"` // SOW only
	Status         Status         `json:"status"`
	AssigneeUserID uuid.UUID      `json:"assignee_user_id"`
	Version        int            `json:"version"` // SOW/Retainer only, bumped by amendments
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}
