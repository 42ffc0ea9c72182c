package permissions

import (
	"github.com/google/uuid"

	"github.com/stafflink/engage-sdk/modules/engagement/domain/changerequest"
	"github.com/stafflink/engage-sdk/modules/engagement/domain/contract"
	"github.com/stafflink/engage-sdk/modules/engagement/domain/proposal"
)

type Role string

const (
	RoleAdmin        Role = "ADMIN"
	RoleSalesManager Role = "SALES_MANAGER"
	RoleSalesRep     Role = "SALES_REP"
	RoleClient       Role = "CLIENT"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleSalesManager, RoleSalesRep, RoleClient:
		return true
	}
	return false
}

// Manager roles pass every internal review gate.
func (r Role) Manager() bool {
	return r == RoleAdmin || r == RoleSalesManager
}

type Actor struct {
	ID   uuid.UUID
	Role Role
}

// ReasonCode explains a denial; the orchestrator surfaces it verbatim so
// user-facing messages stay consistent and denials stay testable.
type ReasonCode string

const (
	ReasonNotCreator        ReasonCode = "NOT_CREATOR"
	ReasonNotAssignee       ReasonCode = "NOT_ASSIGNEE"
	ReasonNotManager        ReasonCode = "NOT_MANAGER"
	ReasonNotClientReviewer ReasonCode = "NOT_CLIENT_REVIEWER"
	ReasonWrongState        ReasonCode = "WRONG_STATE"
)

type Decision struct {
	Allowed bool
	Reason  ReasonCode
}

func Allow() Decision {
	return Decision{Allowed: true}
}

func Deny(reason ReasonCode) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// ReviewPolicy decides which party gates the client-review stage. The
// boundary between internal Processing and ClientUnderReview is policy, not
// a hard rule, so deployments can flip it without code changes.
type ReviewPolicy struct {
	// ClientGatesReview means approve/request-for-change while
	// ClientUnderReview belong to the client reviewer; when false, an
	// internal manager decides on the client's behalf.
	ClientGatesReview bool
}

func DefaultReviewPolicy() ReviewPolicy {
	return ReviewPolicy{ClientGatesReview: true}
}

type Gate struct {
	policy ReviewPolicy
}

func NewGate(policy ReviewPolicy) *Gate {
	return &Gate{policy: policy}
}

// CanPerform answers whether the actor may run the given action against the
// change request in its current status. The owning contract supplies the
// assignee relation. State legality itself belongs to the transition table;
// a denial here is about who, not what.
func (g *Gate) CanPerform(actor Actor, cr *changerequest.ChangeRequest, c *contract.Contract, action changerequest.Action) Decision {
	switch action {
	case changerequest.ActionSaveDraft, changerequest.ActionSubmit:
		if cr.Status != changerequest.StatusDraft {
			return Deny(ReasonWrongState)
		}
		return g.requireCreator(actor, cr)

	case changerequest.ActionReopen, changerequest.ActionResubmit:
		if cr.Status != changerequest.StatusRequestForChange {
			return Deny(ReasonWrongState)
		}
		return g.requireCreator(actor, cr)

	case changerequest.ActionAttachImpact:
		if cr.Status != changerequest.StatusSubmitted && cr.Status != changerequest.StatusProcessing {
			return Deny(ReasonWrongState)
		}
		return g.requireInternal(actor, c)

	case changerequest.ActionSendToClient:
		if cr.Status != changerequest.StatusProcessing {
			return Deny(ReasonWrongState)
		}
		return g.requireInternal(actor, c)

	case changerequest.ActionApprove, changerequest.ActionRequestForChange:
		if cr.Status != changerequest.StatusClientUnderReview {
			return Deny(ReasonWrongState)
		}
		if g.policy.ClientGatesReview {
			if actor.Role != RoleClient {
				return Deny(ReasonNotClientReviewer)
			}
			return Allow()
		}
		return g.requireManager(actor)

	case changerequest.ActionTerminate:
		if cr.Status.Terminal() {
			return Deny(ReasonWrongState)
		}
		if actor.ID == cr.CreatedBy || actor.Role.Manager() {
			return Allow()
		}
		return Deny(ReasonNotManager)
	}

	return Deny(ReasonWrongState)
}

func (g *Gate) requireCreator(actor Actor, cr *changerequest.ChangeRequest) Decision {
	if actor.ID != cr.CreatedBy {
		return Deny(ReasonNotCreator)
	}
	return Allow()
}

func (g *Gate) requireManager(actor Actor) Decision {
	if !actor.Role.Manager() {
		return Deny(ReasonNotManager)
	}
	return Allow()
}

// Internal review stages are open to the contract's current assignee and to
// managers.
func (g *Gate) requireInternal(actor Actor, c *contract.Contract) Decision {
	if actor.ID == c.AssigneeUserID || actor.Role.Manager() {
		return Allow()
	}
	return Deny(ReasonNotAssignee)
}

// CanReviewProposal answers whether the actor may approve, request revision
// of, or leave feedback on a client-facing proposal.
func (g *Gate) CanReviewProposal(actor Actor, p *proposal.Proposal) Decision {
	if !p.Status.Reviewable() {
		return Deny(ReasonWrongState)
	}
	if actor.Role != RoleClient {
		return Deny(ReasonNotClientReviewer)
	}
	if p.ReviewerID != nil && *p.ReviewerID != actor.ID {
		return Deny(ReasonNotClientReviewer)
	}
	return Allow()
}

// ContactField is a mutable field on a consultation contact. Classification
// fields are shared sales data; operational fields belong to the assignee's
// day-to-day work on the contact.
type ContactField string

const (
	FieldRequestType      ContactField = "requestType"
	FieldPriority         ContactField = "priority"
	FieldInternalNotes    ContactField = "internalNotes"
	FieldMeetingSchedule  ContactField = "meetingSchedule"
	FieldCommunicationLog ContactField = "communicationLog"
)

func (f ContactField) Classification() bool {
	return f == FieldRequestType || f == FieldPriority
}

// CanEditContactField applies the assignment relation: classification fields
// open up to managers, operational fields never do.
func (g *Gate) CanEditContactField(actor Actor, assigneeID uuid.UUID, field ContactField) Decision {
	if actor.ID == assigneeID {
		return Allow()
	}
	if field.Classification() && actor.Role == RoleSalesManager {
		return Allow()
	}
	return Deny(ReasonNotAssignee)
}
