package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/stafflink/engage-sdk/modules/engagement/domain/contract"
	"github.com/stafflink/engage-sdk/modules/engagement/infrastructure/persistence/models"
	"github.com/stafflink/engage-sdk/pkg/composables"
)

const contractColumns = `
	id, kind, engagement_type, status, assignee_user_id, version, created_at, updated_at
`

type ContractRepository struct{}

func NewContractRepository() contract.Repository {
	return &ContractRepository{}
}

func (r *ContractRepository) GetByID(ctx context.Context, id uuid.UUID) (*contract.Contract, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	c, err := scanContract(tx.QueryRow(ctx, `
		SELECT `+contractColumns+` FROM engagement_contracts WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, contract.ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

func (r *ContractRepository) BumpVersion(ctx context.Context, id uuid.UUID) (*contract.Contract, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	c, err := scanContract(tx.QueryRow(ctx, `
		UPDATE engagement_contracts
		SET version = version + 1, updated_at = now()
		WHERE id = $1
		RETURNING `+contractColumns,
		id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, contract.ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

func scanContract(row pgx.Row) (*contract.Contract, error) {
	var m models.Contract
	if err := row.Scan(
		&m.ID, &m.Kind, &m.EngagementType, &m.Status,
		&m.AssigneeUserID, &m.Version, &m.CreatedAt, &m.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return toDomainContract(&m), nil
}
