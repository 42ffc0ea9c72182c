package proposal

import (
	"context"

	"github.com/google/uuid"

	"github.com/stafflink/engage-sdk/pkg/serrors"
)

var ErrNotFound = serrors.NewError("PROPOSAL_NOT_FOUND", "proposal not found")

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Proposal, error)
	ListByContact(ctx context.Context, contactID uuid.UUID) ([]Proposal, error)
	UpdateFeedback(ctx context.Context, id uuid.UUID, reviewerID uuid.UUID, feedback string) (*Proposal, error)
}
