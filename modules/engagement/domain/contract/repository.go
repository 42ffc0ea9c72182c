package contract

import (
	"context"

	"github.com/google/uuid"

	"github.com/stafflink/engage-sdk/pkg/serrors"
)

var ErrNotFound = serrors.NewError("CONTRACT_NOT_FOUND", "contract not found")

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Contract, error)

	// BumpVersion increments the amendment version of a SOW. Only retainer
	// engagements version on amendment.
	BumpVersion(ctx context.Context, id uuid.UUID) (*Contract, error)
}
