package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ChangeRequest struct {
	ID               uuid.UUID
	ContractID       uuid.UUID
	Title            string
	Type             string
	Description      string
	Reason           string
	DesiredStartDate time.Time
	DesiredEndDate   time.Time
	ExpectedCost     decimal.Decimal
	Status           string
	CreatedBy        uuid.UUID
	CreatedAt        time.Time
	UpdatedAt        time.Time
	Attachments      []byte // jsonb
	ImpactAnalysis   []byte // jsonb, null until attached
}

type ChangeRequestHistory struct {
	ID        int64
	RequestID uuid.UUID
	Action    string
	ActorID   uuid.UUID
	Timestamp time.Time
	Note      *string
}

type Contract struct {
	ID             uuid.UUID
	Kind           string
	EngagementType *string
	Status         string
	AssigneeUserID uuid.UUID
	Version        int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Proposal struct {
	ID             uuid.UUID
	OpportunityID  uuid.UUID
	ContactID      uuid.UUID
	Title          string
	Status         string
	IsCurrent      bool
	CreatedAt      time.Time
	Attachments    []byte // jsonb
	ReviewerID     *uuid.UUID
	ClientFeedback *string
	Legacy         bool
}
