package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/stafflink/engage-sdk/modules/engagement/domain/changerequest"
	"github.com/stafflink/engage-sdk/modules/engagement/infrastructure/persistence/models"
	"github.com/stafflink/engage-sdk/pkg/composables"
)

const changeRequestColumns = `
	id, contract_id, title, type, description, reason,
	desired_start_date, desired_end_date, expected_extra_cost,
	status, created_by, created_at, updated_at, attachments, impact_analysis
`

type ChangeRequestRepository struct{}

func NewChangeRequestRepository() changerequest.Repository {
	return &ChangeRequestRepository{}
}

func (r *ChangeRequestRepository) Create(ctx context.Context, cr *changerequest.ChangeRequest) (*changerequest.ChangeRequest, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	row, err := toDBChangeRequest(cr)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO engagement_change_requests (` + changeRequestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING ` + changeRequestColumns
	return r.scanOne(ctx,
		tx.QueryRow(ctx, query,
			row.ID, row.ContractID, row.Title, row.Type, row.Description, row.Reason,
			row.DesiredStartDate, row.DesiredEndDate, row.ExpectedCost,
			row.Status, row.CreatedBy, row.CreatedAt, row.UpdatedAt, row.Attachments, row.ImpactAnalysis,
		),
	)
}

func (r *ChangeRequestRepository) GetByID(ctx context.Context, id uuid.UUID) (*changerequest.ChangeRequest, error) {
	return r.getByID(ctx, id, false)
}

func (r *ChangeRequestRepository) LockByID(ctx context.Context, id uuid.UUID) (*changerequest.ChangeRequest, error) {
	return r.getByID(ctx, id, true)
}

func (r *ChangeRequestRepository) getByID(ctx context.Context, id uuid.UUID, forUpdate bool) (*changerequest.ChangeRequest, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + changeRequestColumns + ` FROM engagement_change_requests WHERE id = $1`
	if forUpdate {
		query += " FOR UPDATE"
	}
	cr, err := r.scanOne(ctx, tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, changerequest.ErrNotFound
		}
		return nil, err
	}

	history, err := r.loadHistory(ctx, id)
	if err != nil {
		return nil, err
	}
	cr.History = history
	return cr, nil
}

func (r *ChangeRequestRepository) UpdateDraft(ctx context.Context, cr *changerequest.ChangeRequest) (*changerequest.ChangeRequest, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	row, err := toDBChangeRequest(cr)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE engagement_change_requests
		SET title = $2, type = $3, description = $4, reason = $5,
			desired_start_date = $6, desired_end_date = $7, expected_extra_cost = $8,
			attachments = $9, updated_at = $10
		WHERE id = $1 AND status = $11
		RETURNING ` + changeRequestColumns
	out, err := r.scanOne(ctx,
		tx.QueryRow(ctx, query,
			row.ID, row.Title, row.Type, row.Description, row.Reason,
			row.DesiredStartDate, row.DesiredEndDate, row.ExpectedCost,
			row.Attachments, row.UpdatedAt, string(changerequest.StatusDraft),
		),
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.conflictOrMissing(ctx, cr.ID)
		}
		return nil, err
	}
	return out, nil
}

func (r *ChangeRequestRepository) UpdateStatus(ctx context.Context, id uuid.UUID, expected, next changerequest.Status) (*changerequest.ChangeRequest, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE engagement_change_requests
		SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING ` + changeRequestColumns
	out, err := r.scanOne(ctx, tx.QueryRow(ctx, query, id, string(expected), string(next)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.conflictOrMissing(ctx, id)
		}
		return nil, err
	}
	return out, nil
}

func (r *ChangeRequestRepository) SetImpactAnalysis(ctx context.Context, id uuid.UUID, expected, next changerequest.Status, impact *changerequest.ImpactAnalysis) (*changerequest.ChangeRequest, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	payload, err := toDBChangeRequest(&changerequest.ChangeRequest{ID: id, ImpactAnalysis: impact})
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE engagement_change_requests
		SET status = $3, impact_analysis = $4, updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING ` + changeRequestColumns
	out, err := r.scanOne(ctx, tx.QueryRow(ctx, query, id, string(expected), string(next), payload.ImpactAnalysis))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.conflictOrMissing(ctx, id)
		}
		return nil, err
	}
	return out, nil
}

func (r *ChangeRequestRepository) AppendHistory(ctx context.Context, id uuid.UUID, entry changerequest.HistoryEntry) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO engagement_change_request_history (request_id, action, actor_id, occurred_at, note)
		VALUES ($1, $2, $3, $4, $5)
	`, id, string(entry.Action), entry.ActorID, entry.Timestamp, entry.Note)
	return err
}

func (r *ChangeRequestRepository) ListByContract(ctx context.Context, contractID uuid.UUID) ([]*changerequest.ChangeRequest, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT `+changeRequestColumns+`
		FROM engagement_change_requests
		WHERE contract_id = $1
		ORDER BY created_at DESC, id
	`, contractID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*changerequest.ChangeRequest
	for rows.Next() {
		cr, err := r.scanOne(ctx, rows)
		if err != nil {
			return nil, err
		}
		results = append(results, cr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *ChangeRequestRepository) loadHistory(ctx context.Context, id uuid.UUID) ([]changerequest.HistoryEntry, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT id, request_id, action, actor_id, occurred_at, note
		FROM engagement_change_request_history
		WHERE request_id = $1
		ORDER BY occurred_at, id
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []changerequest.HistoryEntry
	for rows.Next() {
		var row models.ChangeRequestHistory
		if err := rows.Scan(&row.ID, &row.RequestID, &row.Action, &row.ActorID, &row.Timestamp, &row.Note); err != nil {
			return nil, err
		}
		history = append(history, toDomainHistoryEntry(&row))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return history, nil
}

// conflictOrMissing disambiguates a zero-row guarded update: the row either
// vanished or its status moved under us.
func (r *ChangeRequestRepository) conflictOrMissing(ctx context.Context, id uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	var exists bool
	if err := tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM engagement_change_requests WHERE id = $1)
	`, id).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return changerequest.ErrStatusConflict
	}
	return changerequest.ErrNotFound
}

func (r *ChangeRequestRepository) scanOne(_ context.Context, row pgx.Row) (*changerequest.ChangeRequest, error) {
	var m models.ChangeRequest
	if err := row.Scan(
		&m.ID, &m.ContractID, &m.Title, &m.Type, &m.Description, &m.Reason,
		&m.DesiredStartDate, &m.DesiredEndDate, &m.ExpectedCost,
		&m.Status, &m.CreatedBy, &m.CreatedAt, &m.UpdatedAt, &m.Attachments, &m.ImpactAnalysis,
	); err != nil {
		return nil, err
	}
	return toDomainChangeRequest(&m)
}
