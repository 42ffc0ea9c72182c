package services

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stafflink/engage-sdk/modules/engagement/domain/changerequest"
	"github.com/stafflink/engage-sdk/modules/engagement/domain/contract"
	"github.com/stafflink/engage-sdk/modules/engagement/permissions"
	"github.com/stafflink/engage-sdk/pkg/composables"
	"github.com/stafflink/engage-sdk/pkg/eventbus"
)

// WorkflowService drives a change request through its lifecycle. Every action
// runs the same pipeline inside one transaction: load the request under a row
// lock, check the move against the transition table, check the actor against
// the permission gate, validate the payload, then persist with the status
// read at lock time as the optimistic guard. An action the table does not
// list for the current status fails as an invalid transition no matter who
// asks; the gate only ever rules on legal moves. Events go out only after
// commit.
type WorkflowService struct {
	crRepo       changerequest.Repository
	contractRepo contract.Repository
	gate         *permissions.Gate
	publisher    eventbus.EventBus
}

func NewWorkflowService(
	crRepo changerequest.Repository,
	contractRepo contract.Repository,
	gate *permissions.Gate,
	publisher eventbus.EventBus,
) *WorkflowService {
	return &WorkflowService{
		crRepo:       crRepo,
		contractRepo: contractRepo,
		gate:         gate,
		publisher:    publisher,
	}
}

func inTx[T any](ctx context.Context, fn func(txCtx context.Context) (T, error)) (T, error) {
	return composables.InTxResult(ctx, fn)
}

type CreateDraftParams struct {
	ContractID       uuid.UUID
	Title            string
	Type             changerequest.RequestType
	Description      string
	Reason           string
	DesiredStartDate time.Time
	DesiredEndDate   time.Time
	ExpectedCost     decimal.Decimal
	Attachments      []changerequest.Attachment
}

type UpdateDraftParams struct {
	Title            string
	Type             changerequest.RequestType
	Description      string
	Reason           string
	DesiredStartDate time.Time
	DesiredEndDate   time.Time
	ExpectedCost     decimal.Decimal
	Attachments      []changerequest.Attachment
}

func (s *WorkflowService) CreateDraft(ctx context.Context, actor permissions.Actor, params CreateDraftParams) (*changerequest.ChangeRequest, error) {
	out, err := inTx(ctx, func(txCtx context.Context) (*changerequest.ChangeRequest, error) {
		c, err := s.contractRepo.GetByID(txCtx, params.ContractID)
		if err != nil {
			return nil, err
		}
		if c.Status != contract.StatusActive {
			return nil, newServiceError(http.StatusUnprocessableEntity, "ENG_CONTRACT_INACTIVE", "change requests can only target an active contract", nil)
		}

		now := time.Now().UTC()
		cr := &changerequest.ChangeRequest{
			ID:               uuid.New(),
			ContractID:       c.ID,
			Title:            params.Title,
			Type:             params.Type,
			Description:      params.Description,
			Reason:           params.Reason,
			DesiredStartDate: params.DesiredStartDate,
			DesiredEndDate:   params.DesiredEndDate,
			ExpectedCost:     params.ExpectedCost,
			Status:           changerequest.StatusDraft,
			CreatedBy:        actor.ID,
			CreatedAt:        now,
			UpdatedAt:        now,
			Attachments:      params.Attachments,
		}
		if problems := changerequest.ValidateDraft(cr, c.EngagementType); len(problems) > 0 {
			return nil, newValidationError(problems)
		}

		created, err := s.crRepo.Create(txCtx, cr)
		if err != nil {
			return nil, err
		}
		if err := s.crRepo.AppendHistory(txCtx, created.ID, changerequest.HistoryEntry{
			Action:    changerequest.ActionSaveDraft,
			ActorID:   actor.ID,
			Timestamp: now,
		}); err != nil {
			return nil, err
		}
		return created, nil
	})
	if err != nil {
		return nil, mapError(err)
	}

	recordTransition(changerequest.ActionSaveDraft, "ok")
	return out, nil
}

func (s *WorkflowService) UpdateDraft(ctx context.Context, actor permissions.Actor, id uuid.UUID, params UpdateDraftParams) (*changerequest.ChangeRequest, error) {
	out, err := inTx(ctx, func(txCtx context.Context) (*changerequest.ChangeRequest, error) {
		cr, c, err := s.lockRequest(txCtx, id)
		if err != nil {
			return nil, err
		}
		if _, err := changerequest.Next(cr.Status, changerequest.ActionSaveDraft); err != nil {
			return nil, err
		}
		if err := s.authorize(actor, cr, c, changerequest.ActionSaveDraft); err != nil {
			return nil, err
		}

		cr.Title = params.Title
		cr.Type = params.Type
		cr.Description = params.Description
		cr.Reason = params.Reason
		cr.DesiredStartDate = params.DesiredStartDate
		cr.DesiredEndDate = params.DesiredEndDate
		cr.ExpectedCost = params.ExpectedCost
		cr.Attachments = params.Attachments
		cr.UpdatedAt = time.Now().UTC()

		if problems := changerequest.ValidateDraft(cr, c.EngagementType); len(problems) > 0 {
			return nil, newValidationError(problems)
		}

		updated, err := s.crRepo.UpdateDraft(txCtx, cr)
		if err != nil {
			return nil, err
		}
		if err := s.crRepo.AppendHistory(txCtx, id, changerequest.HistoryEntry{
			Action:    changerequest.ActionSaveDraft,
			ActorID:   actor.ID,
			Timestamp: cr.UpdatedAt,
		}); err != nil {
			return nil, err
		}
		return updated, nil
	})
	if err != nil {
		return nil, mapError(err)
	}

	recordTransition(changerequest.ActionSaveDraft, "ok")
	return out, nil
}

// Submit re-validates the draft before it leaves the creator's hands: a draft
// may be saved incomplete, but never submitted incomplete.
func (s *WorkflowService) Submit(ctx context.Context, actor permissions.Actor, id uuid.UUID) (*changerequest.ChangeRequest, error) {
	return s.applyAction(ctx, actor, id, changerequest.ActionSubmit, nil, func(txCtx context.Context, cr *changerequest.ChangeRequest, c *contract.Contract) error {
		if problems := changerequest.ValidateDraft(cr, c.EngagementType); len(problems) > 0 {
			return newValidationError(problems)
		}
		return nil
	})
}

// AttachImpactAnalysis runs the impact builder against the owning contract's
// engagement type and stores the normalized result. From Submitted this also
// moves the request into Processing; from Processing it stays put, replacing
// the previous analysis.
func (s *WorkflowService) AttachImpactAnalysis(ctx context.Context, actor permissions.Actor, id uuid.UUID, candidate changerequest.ImpactAnalysis) (*changerequest.ChangeRequest, error) {
	action := changerequest.ActionAttachImpact
	result, err := inTx(ctx, func(txCtx context.Context) (transitionResult, error) {
		cr, c, err := s.lockRequest(txCtx, id)
		if err != nil {
			return transitionResult{}, err
		}
		next, err := changerequest.Next(cr.Status, action)
		if err != nil {
			return transitionResult{}, err
		}
		if err := s.authorize(actor, cr, c, action); err != nil {
			return transitionResult{}, err
		}

		impact, problems := changerequest.BuildImpact(c.EngagementType, candidate)
		if len(problems) > 0 {
			return transitionResult{}, newValidationError(problems)
		}

		updated, err := s.crRepo.SetImpactAnalysis(txCtx, id, cr.Status, next, &impact)
		if err != nil {
			return transitionResult{}, err
		}
		if err := s.crRepo.AppendHistory(txCtx, id, changerequest.HistoryEntry{
			Action:    action,
			ActorID:   actor.ID,
			Timestamp: time.Now().UTC(),
		}); err != nil {
			return transitionResult{}, err
		}
		return transitionResult{cr: updated, from: cr.Status, to: next}, nil
	})
	if err != nil {
		return nil, mapError(err)
	}

	s.finish(actor, action, result)
	return result.cr, nil
}

func (s *WorkflowService) SendToClient(ctx context.Context, actor permissions.Actor, id uuid.UUID) (*changerequest.ChangeRequest, error) {
	return s.applyAction(ctx, actor, id, changerequest.ActionSendToClient, nil, func(txCtx context.Context, cr *changerequest.ChangeRequest, c *contract.Contract) error {
		if cr.ImpactAnalysis == nil {
			return newValidationError(map[string]string{
				"impact_analysis": "an impact analysis must be attached before the request goes to the client",
			})
		}
		return nil
	})
}

// Approve finalizes the request. Approving a retainer amendment also bumps
// the owning SOW's version inside the same transaction.
func (s *WorkflowService) Approve(ctx context.Context, actor permissions.Actor, id uuid.UUID) (*changerequest.ChangeRequest, error) {
	return s.applyActionAfter(ctx, actor, id, changerequest.ActionApprove, nil, nil, func(txCtx context.Context, cr *changerequest.ChangeRequest, c *contract.Contract) error {
		if c.EngagementType != contract.EngagementRetainer {
			return nil
		}
		_, err := s.contractRepo.BumpVersion(txCtx, c.ID)
		return err
	})
}

// RequestForChange sends the request back to its creator with the reviewer's
// message recorded in history.
func (s *WorkflowService) RequestForChange(ctx context.Context, actor permissions.Actor, id uuid.UUID, message string) (*changerequest.ChangeRequest, error) {
	if problems := changerequest.ValidateReviewMessage(message); len(problems) > 0 {
		return nil, newValidationError(problems)
	}
	return s.applyAction(ctx, actor, id, changerequest.ActionRequestForChange, &message, nil)
}

func (s *WorkflowService) Reopen(ctx context.Context, actor permissions.Actor, id uuid.UUID) (*changerequest.ChangeRequest, error) {
	return s.applyAction(ctx, actor, id, changerequest.ActionReopen, nil, nil)
}

// Resubmit returns a reworked request straight to the internal queue without
// another draft pass.
func (s *WorkflowService) Resubmit(ctx context.Context, actor permissions.Actor, id uuid.UUID) (*changerequest.ChangeRequest, error) {
	return s.applyAction(ctx, actor, id, changerequest.ActionResubmit, nil, func(txCtx context.Context, cr *changerequest.ChangeRequest, c *contract.Contract) error {
		if problems := changerequest.ValidateDraft(cr, c.EngagementType); len(problems) > 0 {
			return newValidationError(problems)
		}
		return nil
	})
}

func (s *WorkflowService) Terminate(ctx context.Context, actor permissions.Actor, id uuid.UUID, note *string) (*changerequest.ChangeRequest, error) {
	return s.applyAction(ctx, actor, id, changerequest.ActionTerminate, note, nil)
}

func (s *WorkflowService) GetByID(ctx context.Context, id uuid.UUID) (*changerequest.ChangeRequest, error) {
	cr, err := s.crRepo.GetByID(ctx, id)
	if err != nil {
		return nil, mapError(err)
	}
	return cr, nil
}

func (s *WorkflowService) ListByContract(ctx context.Context, contractID uuid.UUID) ([]*changerequest.ChangeRequest, error) {
	out, err := s.crRepo.ListByContract(ctx, contractID)
	if err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

// AllowedActions answers which actions the given actor could run against the
// request right now, combining the transition table with the permission gate.
func (s *WorkflowService) AllowedActions(ctx context.Context, actor permissions.Actor, id uuid.UUID) ([]changerequest.Action, error) {
	cr, err := s.crRepo.GetByID(ctx, id)
	if err != nil {
		return nil, mapError(err)
	}
	c, err := s.contractRepo.GetByID(ctx, cr.ContractID)
	if err != nil {
		return nil, mapError(err)
	}

	out := make([]changerequest.Action, 0)
	for _, action := range changerequest.AllowedActions(cr.Status) {
		if d := s.gate.CanPerform(actor, cr, c, action); d.Allowed {
			out = append(out, action)
		}
	}
	return out, nil
}

type transitionResult struct {
	cr   *changerequest.ChangeRequest
	from changerequest.Status
	to   changerequest.Status
}

func (s *WorkflowService) applyAction(
	ctx context.Context,
	actor permissions.Actor,
	id uuid.UUID,
	action changerequest.Action,
	note *string,
	validate func(txCtx context.Context, cr *changerequest.ChangeRequest, c *contract.Contract) error,
) (*changerequest.ChangeRequest, error) {
	return s.applyActionAfter(ctx, actor, id, action, note, validate, nil)
}

func (s *WorkflowService) applyActionAfter(
	ctx context.Context,
	actor permissions.Actor,
	id uuid.UUID,
	action changerequest.Action,
	note *string,
	validate func(txCtx context.Context, cr *changerequest.ChangeRequest, c *contract.Contract) error,
	after func(txCtx context.Context, cr *changerequest.ChangeRequest, c *contract.Contract) error,
) (*changerequest.ChangeRequest, error) {
	result, err := inTx(ctx, func(txCtx context.Context) (transitionResult, error) {
		cr, c, err := s.lockRequest(txCtx, id)
		if err != nil {
			return transitionResult{}, err
		}
		next, err := changerequest.Next(cr.Status, action)
		if err != nil {
			return transitionResult{}, err
		}
		if err := s.authorize(actor, cr, c, action); err != nil {
			return transitionResult{}, err
		}
		if validate != nil {
			if err := validate(txCtx, cr, c); err != nil {
				return transitionResult{}, err
			}
		}

		updated, err := s.crRepo.UpdateStatus(txCtx, id, cr.Status, next)
		if err != nil {
			return transitionResult{}, err
		}
		if err := s.crRepo.AppendHistory(txCtx, id, changerequest.HistoryEntry{
			Action:    action,
			ActorID:   actor.ID,
			Timestamp: time.Now().UTC(),
			Note:      note,
		}); err != nil {
			return transitionResult{}, err
		}
		if after != nil {
			if err := after(txCtx, updated, c); err != nil {
				return transitionResult{}, err
			}
		}
		return transitionResult{cr: updated, from: cr.Status, to: next}, nil
	})
	if err != nil {
		return nil, mapError(err)
	}

	s.finish(actor, action, result)
	return result.cr, nil
}

func (s *WorkflowService) lockRequest(txCtx context.Context, id uuid.UUID) (*changerequest.ChangeRequest, *contract.Contract, error) {
	cr, err := s.crRepo.LockByID(txCtx, id)
	if err != nil {
		return nil, nil, err
	}
	c, err := s.contractRepo.GetByID(txCtx, cr.ContractID)
	if err != nil {
		return nil, nil, err
	}
	return cr, c, nil
}

func (s *WorkflowService) authorize(actor permissions.Actor, cr *changerequest.ChangeRequest, c *contract.Contract, action changerequest.Action) error {
	if d := s.gate.CanPerform(actor, cr, c, action); !d.Allowed {
		recordPermissionDenial(string(d.Reason))
		return permissionDenied(d)
	}
	return nil
}

func (s *WorkflowService) finish(actor permissions.Actor, action changerequest.Action, result transitionResult) {
	recordTransition(action, "ok")
	s.publisher.Publish(&ChangeRequestTransitionedEvent{
		RequestID:  result.cr.ID,
		ContractID: result.cr.ContractID,
		ActorID:    actor.ID,
		Action:     action,
		From:       result.from,
		To:         result.to,
		OccurredAt: time.Now().UTC(),
	})
}
