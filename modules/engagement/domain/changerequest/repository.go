package changerequest

import (
	"context"

	"github.com/google/uuid"

	"github.com/stafflink/engage-sdk/pkg/serrors"
)

// ErrStatusConflict signals an optimistic-concurrency failure: the persisted
// status no longer matches the one the caller's guards were evaluated
// against. Callers must re-fetch and re-decide; nothing was changed.
var ErrStatusConflict = serrors.NewError("STATUS_CONFLICT", "change request status changed concurrently")

// ErrNotFound is returned when no change request exists for the given id.
var ErrNotFound = serrors.NewError("CHANGE_REQUEST_NOT_FOUND", "change request not found")

type Repository interface {
	Create(ctx context.Context, cr *ChangeRequest) (*ChangeRequest, error)
	GetByID(ctx context.Context, id uuid.UUID) (*ChangeRequest, error)

	// LockByID loads the change request under a row lock so the status read
	// here stays true until the surrounding transaction commits.
	LockByID(ctx context.Context, id uuid.UUID) (*ChangeRequest, error)

	// UpdateDraft persists draft field edits. Fails with ErrStatusConflict
	// if the persisted status is no longer Draft.
	UpdateDraft(ctx context.Context, cr *ChangeRequest) (*ChangeRequest, error)

	// UpdateStatus moves the request from expected to next, guarded by the
	// persisted status still being expected; zero rows updated surfaces as
	// ErrStatusConflict.
	UpdateStatus(ctx context.Context, id uuid.UUID, expected, next Status) (*ChangeRequest, error)

	// SetImpactAnalysis stores the analysis and moves the request to next
	// under the same status guard as UpdateStatus.
	SetImpactAnalysis(ctx context.Context, id uuid.UUID, expected, next Status, impact *ImpactAnalysis) (*ChangeRequest, error)

	AppendHistory(ctx context.Context, id uuid.UUID, entry HistoryEntry) error
	ListByContract(ctx context.Context, contractID uuid.UUID) ([]*ChangeRequest, error)
}
