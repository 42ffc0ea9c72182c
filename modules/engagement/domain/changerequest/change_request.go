package changerequest

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stafflink/engage-sdk/modules/engagement/domain/contract"
)

type Status string

const (
	StatusDraft             Status = "Draft"
	StatusSubmitted         Status = "Submitted"
	StatusProcessing        Status = "Processing"
	StatusClientUnderReview Status = "ClientUnderReview"
	StatusApproved          Status = "Approved"
	StatusRequestForChange  Status = "RequestForChange"
	StatusTerminated        Status = "Terminated"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusSubmitted, StatusProcessing, StatusClientUnderReview,
		StatusApproved, StatusRequestForChange, StatusTerminated:
		return true
	}
	return false
}

// Terminal statuses have no outgoing transitions.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusTerminated
}

type Action string

const (
	ActionSaveDraft        Action = "saveDraft"
	ActionSubmit           Action = "submit"
	ActionAttachImpact     Action = "attachImpact"
	ActionSendToClient     Action = "sendToClient"
	ActionApprove          Action = "approve"
	ActionRequestForChange Action = "requestForChange"
	ActionTerminate        Action = "terminate"
	ActionResubmit         Action = "resubmit"
	ActionReopen           Action = "reopen"
)

// RequestType is the change category; the allowed set depends on the owning
// contract's engagement type.
type RequestType string

const (
	// Fixed-price contracts.
	TypeScopeChange    RequestType = "ScopeChange"
	TypeScheduleChange RequestType = "ScheduleChange"
	TypeCostChange     RequestType = "CostChange"

	// Retainer contracts.
	TypeTeamExpansion RequestType = "TeamExpansion"
	TypeTeamReduction RequestType = "TeamReduction"
	TypeBillingChange RequestType = "BillingChange"
)

func TypesFor(et contract.EngagementType) []RequestType {
	switch et {
	case contract.EngagementFixedPrice:
		return []RequestType{TypeScopeChange, TypeScheduleChange, TypeCostChange}
	case contract.EngagementRetainer:
		return []RequestType{TypeTeamExpansion, TypeTeamReduction, TypeBillingChange}
	}
	return nil
}

func (t RequestType) ValidFor(et contract.EngagementType) bool {
	for _, allowed := range TypesFor(et) {
		if t == allowed {
			return true
		}
	}
	return false
}

type HistoryEntry struct {
	Action    Action    `json:"action"`
	ActorID   uuid.UUID `json:"actor_id"`
	Timestamp time.Time `json:"timestamp"`
	Note      *string   `json:"note,omitempty"`
}

type Attachment struct {
	FileName   string `json:"file_name"`
	StorageKey string `json:"storage_key"`
	SizeBytes  int64  `json:"size_bytes"`
}

const (
	MaxTitleLen       = 255
	MaxDescriptionLen = 2000
	MaxReasonLen      = 2000
	MaxMessageLen     = 2000
	MaxLogMessageLen  = 500

	MaxAttachmentSizeBytes = 10 << 20
)

type ChangeRequest struct {
	ID               uuid.UUID       `json:"id"`
	ContractID       uuid.UUID       `json:"contract_id"`
	Title            string          `json:"title"`
	Type             RequestType     `json:"type"`
	Description      string          `json:"description"`
	Reason           string          `json:"reason"`
	DesiredStartDate time.Time       `json:"desired_start_date"`
	DesiredEndDate   time.Time       `json:"desired_end_date"`
	ExpectedCost     decimal.Decimal `json:"expected_extra_cost"`
	Status           Status          `json:"status"`
	CreatedBy        uuid.UUID       `json:"created_by"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	Attachments      []Attachment    `json:"attachments,omitempty"`
	ImpactAnalysis   *ImpactAnalysis `json:"impact_analysis,omitempty"`
	History          []HistoryEntry  `json:"history,omitempty"`
}

// ValidateDraft checks every field a change request must satisfy before it
// can be submitted, against the owning contract's engagement type. All
// problems are collected into a field-keyed map; an empty map means valid.
func ValidateDraft(cr *ChangeRequest, et contract.EngagementType) map[string]string {
	problems := map[string]string{}

	if cr.Title == "" {
		problems["title"] = "title is required"
	} else if utf8.RuneCountInString(cr.Title) > MaxTitleLen {
		problems["title"] = fmt.Sprintf("title must be at most %d characters", MaxTitleLen)
	}

	if cr.Type == "" {
		problems["type"] = "type is required"
	} else if !cr.Type.ValidFor(et) {
		problems["type"] = fmt.Sprintf("type %q is not allowed for %s contracts", cr.Type, et)
	}

	if utf8.RuneCountInString(cr.Description) > MaxDescriptionLen {
		problems["description"] = fmt.Sprintf("description must be at most %d characters", MaxDescriptionLen)
	}
	if utf8.RuneCountInString(cr.Reason) > MaxReasonLen {
		problems["reason"] = fmt.Sprintf("reason must be at most %d characters", MaxReasonLen)
	}

	if cr.DesiredStartDate.IsZero() {
		problems["desired_start_date"] = "desired_start_date is required"
	}
	if cr.DesiredEndDate.IsZero() {
		problems["desired_end_date"] = "desired_end_date is required"
	}
	if !cr.DesiredStartDate.IsZero() && !cr.DesiredEndDate.IsZero() &&
		!cr.DesiredEndDate.After(cr.DesiredStartDate) {
		problems["desired_end_date"] = "desired_end_date must be after desired_start_date"
	}

	if cr.ExpectedCost.IsNegative() {
		problems["expected_extra_cost"] = "expected_extra_cost must be non-negative"
	}

	for i, a := range cr.Attachments {
		if a.SizeBytes > MaxAttachmentSizeBytes {
			problems[fmt.Sprintf("attachments[%d]", i)] = "attachment exceeds 10MB"
		}
	}

	return problems
}

// ValidateReviewMessage bounds the message a client reviewer sends back with
// a request-for-change decision.
func ValidateReviewMessage(message string) map[string]string {
	problems := map[string]string{}
	if message == "" {
		problems["message"] = "message is required"
	} else if utf8.RuneCountInString(message) > MaxMessageLen {
		problems["message"] = fmt.Sprintf("message must be at most %d characters", MaxMessageLen)
	}
	return problems
}

// ValidateLogMessage bounds free-form communication log entries.
func ValidateLogMessage(message string) map[string]string {
	problems := map[string]string{}
	if message == "" {
		problems["message"] = "message is required"
	} else if utf8.RuneCountInString(message) > MaxLogMessageLen {
		problems["message"] = fmt.Sprintf("message must be at most %d characters", MaxLogMessageLen)
	}
	return problems
}
