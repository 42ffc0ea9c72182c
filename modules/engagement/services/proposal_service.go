package services

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/stafflink/engage-sdk/modules/engagement/domain/proposal"
	"github.com/stafflink/engage-sdk/modules/engagement/permissions"
	"github.com/stafflink/engage-sdk/pkg/eventbus"
)

const maxFeedbackLen = 2000

// ProposalService serves the client-facing proposal surface: which proposal a
// contact sees, and the feedback the reviewer leaves on it.
type ProposalService struct {
	repo      proposal.Repository
	gate      *permissions.Gate
	publisher eventbus.EventBus
}

func NewProposalService(repo proposal.Repository, gate *permissions.Gate, publisher eventbus.EventBus) *ProposalService {
	return &ProposalService{repo: repo, gate: gate, publisher: publisher}
}

// DisplayProposal resolves the single proposal a contact's portal page shows.
// A nil result with a nil error means the contact has nothing reviewable.
func (s *ProposalService) DisplayProposal(ctx context.Context, contactID uuid.UUID) (*proposal.Proposal, error) {
	list, err := s.repo.ListByContact(ctx, contactID)
	if err != nil {
		return nil, mapError(err)
	}
	return proposal.SelectDisplay(list), nil
}

func (s *ProposalService) GetByID(ctx context.Context, id uuid.UUID) (*proposal.Proposal, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapError(err)
	}
	return p, nil
}

// SubmitFeedback records the reviewer's free-form feedback on a proposal they
// are entitled to review.
func (s *ProposalService) SubmitFeedback(ctx context.Context, actor permissions.Actor, id uuid.UUID, feedback string) (*proposal.Proposal, error) {
	if problems := validateFeedback(feedback); len(problems) > 0 {
		return nil, newValidationError(problems)
	}

	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapError(err)
	}
	if d := s.gate.CanReviewProposal(actor, p); !d.Allowed {
		recordPermissionDenial(string(d.Reason))
		return nil, permissionDenied(d)
	}

	updated, err := s.repo.UpdateFeedback(ctx, id, actor.ID, feedback)
	if err != nil {
		return nil, mapError(err)
	}

	s.publisher.Publish(&ProposalFeedbackSubmittedEvent{
		ProposalID: updated.ID,
		ReviewerID: actor.ID,
		OccurredAt: time.Now().UTC(),
	})
	return updated, nil
}

func validateFeedback(feedback string) map[string]string {
	problems := map[string]string{}
	if feedback == "" {
		problems["feedback"] = "feedback is required"
	} else if utf8.RuneCountInString(feedback) > maxFeedbackLen {
		problems["feedback"] = "feedback must be at most 2000 characters"
	}
	return problems
}
