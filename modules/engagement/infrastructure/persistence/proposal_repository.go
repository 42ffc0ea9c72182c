package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/stafflink/engage-sdk/modules/engagement/domain/proposal"
	"github.com/stafflink/engage-sdk/modules/engagement/infrastructure/persistence/models"
	"github.com/stafflink/engage-sdk/pkg/composables"
)

const proposalColumns = `
	id, opportunity_id, contact_id, title, status, is_current,
	created_at, attachments, reviewer_id, client_feedback, legacy
`

type ProposalRepository struct{}

func NewProposalRepository() proposal.Repository {
	return &ProposalRepository{}
}

func (r *ProposalRepository) GetByID(ctx context.Context, id uuid.UUID) (*proposal.Proposal, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	p, err := scanProposal(tx.QueryRow(ctx, `
		SELECT `+proposalColumns+` FROM engagement_proposals WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, proposal.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *ProposalRepository) ListByContact(ctx context.Context, contactID uuid.UUID) ([]proposal.Proposal, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT `+proposalColumns+`
		FROM engagement_proposals
		WHERE contact_id = $1
		ORDER BY created_at DESC, id
	`, contactID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []proposal.Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *ProposalRepository) UpdateFeedback(ctx context.Context, id uuid.UUID, reviewerID uuid.UUID, feedback string) (*proposal.Proposal, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	p, err := scanProposal(tx.QueryRow(ctx, `
		UPDATE engagement_proposals
		SET client_feedback = $2, reviewer_id = $3
		WHERE id = $1
		RETURNING `+proposalColumns,
		id, feedback, reviewerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, proposal.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func scanProposal(row pgx.Row) (*proposal.Proposal, error) {
	var m models.Proposal
	if err := row.Scan(
		&m.ID, &m.OpportunityID, &m.ContactID, &m.Title, &m.Status, &m.IsCurrent,
		&m.CreatedAt, &m.Attachments, &m.ReviewerID, &m.ClientFeedback, &m.Legacy,
	); err != nil {
		return nil, err
	}
	return toDomainProposal(&m)
}
