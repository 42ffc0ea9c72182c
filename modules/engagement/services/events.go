package services

import (
	"time"

	"github.com/google/uuid"

	"github.com/stafflink/engage-sdk/modules/engagement/domain/changerequest"
)

// ChangeRequestTransitionedEvent is published after a workflow action commits.
// Subscribers see the already-persisted state; failing subscribers never roll
// the transition back.
type ChangeRequestTransitionedEvent struct {
	RequestID  uuid.UUID
	ContractID uuid.UUID
	ActorID    uuid.UUID
	Action     changerequest.Action
	From       changerequest.Status
	To         changerequest.Status
	OccurredAt time.Time
}

// ProposalFeedbackSubmittedEvent is published when a client reviewer leaves
// feedback on a proposal.
type ProposalFeedbackSubmittedEvent struct {
	ProposalID uuid.UUID
	ReviewerID uuid.UUID
	OccurredAt time.Time
}
