package services

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/stafflink/engage-sdk/modules/engagement/domain/changerequest"
	"github.com/stafflink/engage-sdk/modules/engagement/domain/contract"
	"github.com/stafflink/engage-sdk/modules/engagement/permissions"
	"github.com/stafflink/engage-sdk/pkg/composables"
	"github.com/stafflink/engage-sdk/pkg/eventbus"
)

// nopTx satisfies pgx.Tx just enough to stand in as the ambient transaction;
// inTx joins it and never drives it.
type nopTx struct{ pgx.Tx }

func (nopTx) Commit(context.Context) error   { return nil }
func (nopTx) Rollback(context.Context) error { return nil }

func testCtx() context.Context {
	return composables.WithTx(context.Background(), nopTx{})
}

type fakeCRRepo struct {
	mu      sync.Mutex
	items   map[uuid.UUID]*changerequest.ChangeRequest
	history map[uuid.UUID][]changerequest.HistoryEntry

	// staleLockStatus, when set, makes LockByID report that status instead
	// of the stored one, simulating a decision made against a snapshot that
	// another writer has since invalidated.
	staleLockStatus *changerequest.Status
}

func newFakeCRRepo() *fakeCRRepo {
	return &fakeCRRepo{
		items:   map[uuid.UUID]*changerequest.ChangeRequest{},
		history: map[uuid.UUID][]changerequest.HistoryEntry{},
	}
}

func (f *fakeCRRepo) Create(_ context.Context, cr *changerequest.ChangeRequest) (*changerequest.ChangeRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *cr
	f.items[cr.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeCRRepo) GetByID(_ context.Context, id uuid.UUID) (*changerequest.ChangeRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cr, ok := f.items[id]
	if !ok {
		return nil, changerequest.ErrNotFound
	}
	out := *cr
	out.History = append([]changerequest.HistoryEntry(nil), f.history[id]...)
	return &out, nil
}

func (f *fakeCRRepo) LockByID(ctx context.Context, id uuid.UUID) (*changerequest.ChangeRequest, error) {
	cr, err := f.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if f.staleLockStatus != nil {
		cr.Status = *f.staleLockStatus
	}
	return cr, nil
}

func (f *fakeCRRepo) UpdateDraft(_ context.Context, cr *changerequest.ChangeRequest) (*changerequest.ChangeRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.items[cr.ID]
	if !ok {
		return nil, changerequest.ErrNotFound
	}
	if stored.Status != changerequest.StatusDraft {
		return nil, changerequest.ErrStatusConflict
	}
	cp := *cr
	f.items[cr.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeCRRepo) UpdateStatus(_ context.Context, id uuid.UUID, expected, next changerequest.Status) (*changerequest.ChangeRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.items[id]
	if !ok {
		return nil, changerequest.ErrNotFound
	}
	if stored.Status != expected {
		return nil, changerequest.ErrStatusConflict
	}
	stored.Status = next
	stored.UpdatedAt = time.Now().UTC()
	out := *stored
	return &out, nil
}

func (f *fakeCRRepo) SetImpactAnalysis(_ context.Context, id uuid.UUID, expected, next changerequest.Status, impact *changerequest.ImpactAnalysis) (*changerequest.ChangeRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.items[id]
	if !ok {
		return nil, changerequest.ErrNotFound
	}
	if stored.Status != expected {
		return nil, changerequest.ErrStatusConflict
	}
	stored.Status = next
	stored.ImpactAnalysis = impact
	stored.UpdatedAt = time.Now().UTC()
	out := *stored
	return &out, nil
}

func (f *fakeCRRepo) AppendHistory(_ context.Context, id uuid.UUID, entry changerequest.HistoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history[id] = append(f.history[id], entry)
	return nil
}

func (f *fakeCRRepo) ListByContract(_ context.Context, contractID uuid.UUID) ([]*changerequest.ChangeRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*changerequest.ChangeRequest, 0)
	for _, cr := range f.items {
		if cr.ContractID == contractID {
			cp := *cr
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeContractRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*contract.Contract
	bumps int
}

func newFakeContractRepo(contracts ...*contract.Contract) *fakeContractRepo {
	f := &fakeContractRepo{items: map[uuid.UUID]*contract.Contract{}}
	for _, c := range contracts {
		f.items[c.ID] = c
	}
	return f
}

func (f *fakeContractRepo) GetByID(_ context.Context, id uuid.UUID) (*contract.Contract, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.items[id]
	if !ok {
		return nil, contract.ErrNotFound
	}
	out := *c
	return &out, nil
}

func (f *fakeContractRepo) BumpVersion(_ context.Context, id uuid.UUID) (*contract.Contract, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.items[id]
	if !ok {
		return nil, contract.ErrNotFound
	}
	c.Version++
	f.bumps++
	out := *c
	return &out, nil
}

func quietBus() eventbus.EventBus {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return eventbus.NewEventPublisher(log)
}

type workflowFixture struct {
	svc       *WorkflowService
	crRepo    *fakeCRRepo
	contracts *fakeContractRepo
	contract  *contract.Contract
	creator   permissions.Actor
	manager   permissions.Actor
	client    permissions.Actor
	bus       eventbus.EventBus
}

func newWorkflowFixture(t *testing.T, et contract.EngagementType) *workflowFixture {
	t.Helper()
	c := &contract.Contract{
		ID:             uuid.New(),
		Kind:           contract.KindSOW,
		EngagementType: et,
		Status:         contract.StatusActive,
		AssigneeUserID: uuid.New(),
		Version:        1,
	}
	crRepo := newFakeCRRepo()
	contracts := newFakeContractRepo(c)
	bus := quietBus()
	svc := NewWorkflowService(crRepo, contracts, permissions.NewGate(permissions.DefaultReviewPolicy()), bus)
	return &workflowFixture{
		svc:       svc,
		crRepo:    crRepo,
		contracts: contracts,
		contract:  c,
		creator:   permissions.Actor{ID: uuid.New(), Role: permissions.RoleSalesRep},
		manager:   permissions.Actor{ID: uuid.New(), Role: permissions.RoleSalesManager},
		client:    permissions.Actor{ID: uuid.New(), Role: permissions.RoleClient},
		bus:       bus,
	}
}

func (fx *workflowFixture) draftParams() CreateDraftParams {
	t := changerequest.TypeScopeChange
	if fx.contract.EngagementType == contract.EngagementRetainer {
		t = changerequest.TypeTeamExpansion
	}
	return CreateDraftParams{
		ContractID:       fx.contract.ID,
		Title:            "Extend analytics scope",
		Type:             t,
		Description:      "Add the churn dashboard to the deliverables.",
		Reason:           "Client board meeting moved up a quarter.",
		DesiredStartDate: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		DesiredEndDate:   time.Date(2026, 11, 30, 0, 0, 0, 0, time.UTC),
		ExpectedCost:     decimal.RequireFromString("18000"),
	}
}

func (fx *workflowFixture) createDraft(t *testing.T) *changerequest.ChangeRequest {
	t.Helper()
	cr, err := fx.svc.CreateDraft(testCtx(), fx.creator, fx.draftParams())
	require.NoError(t, err)
	require.Equal(t, changerequest.StatusDraft, cr.Status)
	return cr
}

func TestWorkflow_SubmitRecordsHistory(t *testing.T) {
	fx := newWorkflowFixture(t, contract.EngagementFixedPrice)
	cr := fx.createDraft(t)

	var events []*ChangeRequestTransitionedEvent
	fx.bus.Subscribe(func(ev *ChangeRequestTransitionedEvent) {
		events = append(events, ev)
	})

	out, err := fx.svc.Submit(testCtx(), fx.creator, cr.ID)
	require.NoError(t, err)
	require.Equal(t, changerequest.StatusSubmitted, out.Status)

	got, err := fx.svc.GetByID(testCtx(), cr.ID)
	require.NoError(t, err)
	require.Len(t, got.History, 2)
	require.Equal(t, changerequest.ActionSaveDraft, got.History[0].Action)
	require.Equal(t, changerequest.ActionSubmit, got.History[1].Action)
	require.Equal(t, fx.creator.ID, got.History[1].ActorID)

	require.Len(t, events, 1)
	require.Equal(t, changerequest.StatusDraft, events[0].From)
	require.Equal(t, changerequest.StatusSubmitted, events[0].To)
}

func TestWorkflow_SubmitByNonCreatorDenied(t *testing.T) {
	fx := newWorkflowFixture(t, contract.EngagementFixedPrice)
	cr := fx.createDraft(t)

	_, err := fx.svc.Submit(testCtx(), fx.manager, cr.ID)
	requireServiceError(t, err, 403, "ENG_PERMISSION_DENIED")
	require.Contains(t, err.Error(), string(permissions.ReasonNotCreator))

	got, err := fx.svc.GetByID(testCtx(), cr.ID)
	require.NoError(t, err)
	require.Equal(t, changerequest.StatusDraft, got.Status)
}

func TestWorkflow_CreateDraftValidation(t *testing.T) {
	fx := newWorkflowFixture(t, contract.EngagementFixedPrice)
	params := fx.draftParams()
	params.Title = ""
	params.DesiredEndDate = params.DesiredStartDate

	_, err := fx.svc.CreateDraft(testCtx(), fx.creator, params)
	fields := requireValidationError(t, err)
	require.Contains(t, fields, "title")
	require.Contains(t, fields, "desired_end_date")
}

func TestWorkflow_CreateDraftRejectsRetainerTypeOnFixedPrice(t *testing.T) {
	fx := newWorkflowFixture(t, contract.EngagementFixedPrice)
	params := fx.draftParams()
	params.Type = changerequest.TypeBillingChange

	_, err := fx.svc.CreateDraft(testCtx(), fx.creator, params)
	fields := requireValidationError(t, err)
	require.Contains(t, fields, "type")
}

func TestWorkflow_CreateDraftOnInactiveContract(t *testing.T) {
	fx := newWorkflowFixture(t, contract.EngagementFixedPrice)
	fx.contract.Status = contract.StatusCompleted
	fx.contracts.items[fx.contract.ID] = fx.contract

	_, err := fx.svc.CreateDraft(testCtx(), fx.creator, fx.draftParams())
	requireServiceError(t, err, 422, "ENG_CONTRACT_INACTIVE")
}

func TestWorkflow_FullFixedPricePath(t *testing.T) {
	fx := newWorkflowFixture(t, contract.EngagementFixedPrice)
	cr := fx.createDraft(t)

	_, err := fx.svc.Submit(testCtx(), fx.creator, cr.ID)
	require.NoError(t, err)

	hours := decimal.RequireFromString("120")
	out, err := fx.svc.AttachImpactAnalysis(testCtx(), fx.manager, cr.ID, changerequest.ImpactAnalysis{
		FixedPrice: &changerequest.FixedPriceImpact{DevHours: &hours},
	})
	require.NoError(t, err)
	require.Equal(t, changerequest.StatusProcessing, out.Status)
	require.NotNil(t, out.ImpactAnalysis)
	require.Equal(t, contract.EngagementFixedPrice, out.ImpactAnalysis.EngagementType)

	out, err = fx.svc.SendToClient(testCtx(), fx.manager, cr.ID)
	require.NoError(t, err)
	require.Equal(t, changerequest.StatusClientUnderReview, out.Status)

	out, err = fx.svc.Approve(testCtx(), fx.client, cr.ID)
	require.NoError(t, err)
	require.Equal(t, changerequest.StatusApproved, out.Status)

	// Fixed-price approvals do not version the contract.
	require.Zero(t, fx.contracts.bumps)
}

func TestWorkflow_RetainerApprovalBumpsContractVersion(t *testing.T) {
	fx := newWorkflowFixture(t, contract.EngagementRetainer)
	cr := fx.createDraft(t)

	_, err := fx.svc.Submit(testCtx(), fx.creator, cr.ID)
	require.NoError(t, err)

	_, err = fx.svc.AttachImpactAnalysis(testCtx(), fx.manager, cr.ID, changerequest.ImpactAnalysis{
		Retainer: &changerequest.RetainerImpact{
			EngagedEngineers: []changerequest.EngagedEngineer{{
				EngineerLevel: "Senior",
				StartDate:     time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
				EndDate:       time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
				BillingType:   changerequest.BillingMonthly,
				Rate:          decimal.RequireFromString("9500"),
				Total:         decimal.RequireFromString("9500"),
			}},
		},
	})
	require.NoError(t, err)

	_, err = fx.svc.SendToClient(testCtx(), fx.manager, cr.ID)
	require.NoError(t, err)
	_, err = fx.svc.Approve(testCtx(), fx.client, cr.ID)
	require.NoError(t, err)

	require.Equal(t, 1, fx.contracts.bumps)
	c, err := fx.contracts.GetByID(testCtx(), fx.contract.ID)
	require.NoError(t, err)
	require.Equal(t, 2, c.Version)
}

func TestWorkflow_SendToClientRequiresImpact(t *testing.T) {
	fx := newWorkflowFixture(t, contract.EngagementFixedPrice)
	cr := fx.createDraft(t)
	_, err := fx.svc.Submit(testCtx(), fx.creator, cr.ID)
	require.NoError(t, err)

	// Move to Processing with an empty analysis, then drop it to simulate a
	// request that reached Processing without one.
	_, err = fx.svc.AttachImpactAnalysis(testCtx(), fx.manager, cr.ID, changerequest.ImpactAnalysis{})
	require.NoError(t, err)
	fx.crRepo.items[cr.ID].ImpactAnalysis = nil

	_, err = fx.svc.SendToClient(testCtx(), fx.manager, cr.ID)
	fields := requireValidationError(t, err)
	require.Contains(t, fields, "impact_analysis")
}

func TestWorkflow_RequestForChangeRequiresMessage(t *testing.T) {
	fx := newWorkflowFixture(t, contract.EngagementFixedPrice)
	cr := fx.createDraft(t)

	_, err := fx.svc.RequestForChange(testCtx(), fx.client, cr.ID, "")
	fields := requireValidationError(t, err)
	require.Contains(t, fields, "message")

	// Nothing moved.
	got, err := fx.svc.GetByID(testCtx(), cr.ID)
	require.NoError(t, err)
	require.Equal(t, changerequest.StatusDraft, got.Status)
}

func TestWorkflow_ReworkLoop(t *testing.T) {
	fx := newWorkflowFixture(t, contract.EngagementFixedPrice)
	cr := fx.createDraft(t)

	_, err := fx.svc.Submit(testCtx(), fx.creator, cr.ID)
	require.NoError(t, err)
	_, err = fx.svc.AttachImpactAnalysis(testCtx(), fx.manager, cr.ID, changerequest.ImpactAnalysis{})
	require.NoError(t, err)
	_, err = fx.svc.SendToClient(testCtx(), fx.manager, cr.ID)
	require.NoError(t, err)

	out, err := fx.svc.RequestForChange(testCtx(), fx.client, cr.ID, "Costs need a line-item breakdown.")
	require.NoError(t, err)
	require.Equal(t, changerequest.StatusRequestForChange, out.Status)

	got, err := fx.svc.GetByID(testCtx(), cr.ID)
	require.NoError(t, err)
	last := got.History[len(got.History)-1]
	require.Equal(t, changerequest.ActionRequestForChange, last.Action)
	require.NotNil(t, last.Note)
	require.Equal(t, "Costs need a line-item breakdown.", *last.Note)

	out, err = fx.svc.Reopen(testCtx(), fx.creator, cr.ID)
	require.NoError(t, err)
	require.Equal(t, changerequest.StatusDraft, out.Status)
}

func TestWorkflow_ResubmitSkipsDraft(t *testing.T) {
	fx := newWorkflowFixture(t, contract.EngagementFixedPrice)
	cr := fx.createDraft(t)

	_, err := fx.svc.Submit(testCtx(), fx.creator, cr.ID)
	require.NoError(t, err)
	_, err = fx.svc.AttachImpactAnalysis(testCtx(), fx.manager, cr.ID, changerequest.ImpactAnalysis{})
	require.NoError(t, err)
	_, err = fx.svc.SendToClient(testCtx(), fx.manager, cr.ID)
	require.NoError(t, err)
	_, err = fx.svc.RequestForChange(testCtx(), fx.client, cr.ID, "Adjust the schedule.")
	require.NoError(t, err)

	out, err := fx.svc.Resubmit(testCtx(), fx.creator, cr.ID)
	require.NoError(t, err)
	require.Equal(t, changerequest.StatusSubmitted, out.Status)
}

func TestWorkflow_TerminateFromRework(t *testing.T) {
	fx := newWorkflowFixture(t, contract.EngagementFixedPrice)
	cr := fx.createDraft(t)

	_, err := fx.svc.Submit(testCtx(), fx.creator, cr.ID)
	require.NoError(t, err)
	_, err = fx.svc.AttachImpactAnalysis(testCtx(), fx.manager, cr.ID, changerequest.ImpactAnalysis{})
	require.NoError(t, err)
	_, err = fx.svc.SendToClient(testCtx(), fx.manager, cr.ID)
	require.NoError(t, err)
	_, err = fx.svc.RequestForChange(testCtx(), fx.client, cr.ID, "Not this quarter.")
	require.NoError(t, err)

	note := "Client withdrew the request."
	out, err := fx.svc.Terminate(testCtx(), fx.creator, cr.ID, &note)
	require.NoError(t, err)
	require.Equal(t, changerequest.StatusTerminated, out.Status)
}

func TestWorkflow_ActionOnTerminalRequest(t *testing.T) {
	fx := newWorkflowFixture(t, contract.EngagementFixedPrice)
	cr := fx.createDraft(t)
	_, err := fx.svc.Terminate(testCtx(), fx.creator, cr.ID, nil)
	require.NoError(t, err)

	// Terminal statuses reject every action as an invalid transition, before
	// anyone asks who the actor is.
	_, err = fx.svc.Submit(testCtx(), fx.creator, cr.ID)
	requireServiceError(t, err, 422, "ENG_INVALID_TRANSITION")

	_, err = fx.svc.Terminate(testCtx(), fx.manager, cr.ID, nil)
	requireServiceError(t, err, 422, "ENG_INVALID_TRANSITION")
}

func TestWorkflow_ApproveTwiceIsInvalidTransition(t *testing.T) {
	fx := newWorkflowFixture(t, contract.EngagementFixedPrice)
	cr := fx.createDraft(t)

	_, err := fx.svc.Submit(testCtx(), fx.creator, cr.ID)
	require.NoError(t, err)
	_, err = fx.svc.AttachImpactAnalysis(testCtx(), fx.manager, cr.ID, changerequest.ImpactAnalysis{})
	require.NoError(t, err)
	_, err = fx.svc.SendToClient(testCtx(), fx.manager, cr.ID)
	require.NoError(t, err)
	out, err := fx.svc.Approve(testCtx(), fx.client, cr.ID)
	require.NoError(t, err)
	require.Equal(t, changerequest.StatusApproved, out.Status)

	_, err = fx.svc.Approve(testCtx(), fx.client, cr.ID)
	requireServiceError(t, err, 422, "ENG_INVALID_TRANSITION")
}

func TestWorkflow_ConcurrentApproveConflicts(t *testing.T) {
	fx := newWorkflowFixture(t, contract.EngagementFixedPrice)
	cr := fx.createDraft(t)

	_, err := fx.svc.Submit(testCtx(), fx.creator, cr.ID)
	require.NoError(t, err)
	_, err = fx.svc.AttachImpactAnalysis(testCtx(), fx.manager, cr.ID, changerequest.ImpactAnalysis{})
	require.NoError(t, err)
	_, err = fx.svc.SendToClient(testCtx(), fx.manager, cr.ID)
	require.NoError(t, err)
	_, err = fx.svc.Approve(testCtx(), fx.client, cr.ID)
	require.NoError(t, err)

	// A second reviewer raced the first and still holds the under-review
	// snapshot; the status guard must reject the write.
	stale := changerequest.StatusClientUnderReview
	fx.crRepo.staleLockStatus = &stale

	_, err = fx.svc.Approve(testCtx(), fx.client, cr.ID)
	requireServiceError(t, err, 409, "ENG_CONFLICT")
}

func TestWorkflow_AllowedActions(t *testing.T) {
	fx := newWorkflowFixture(t, contract.EngagementFixedPrice)
	cr := fx.createDraft(t)

	actions, err := fx.svc.AllowedActions(testCtx(), fx.creator, cr.ID)
	require.NoError(t, err)
	require.ElementsMatch(t, []changerequest.Action{
		changerequest.ActionSaveDraft,
		changerequest.ActionSubmit,
		changerequest.ActionTerminate,
	}, actions)

	actions, err = fx.svc.AllowedActions(testCtx(), fx.client, cr.ID)
	require.NoError(t, err)
	require.Empty(t, actions)
}

func TestWorkflow_UpdateDraft(t *testing.T) {
	fx := newWorkflowFixture(t, contract.EngagementFixedPrice)
	cr := fx.createDraft(t)

	params := UpdateDraftParams{
		Title:            "Extend analytics scope and retention",
		Type:             changerequest.TypeScopeChange,
		Description:      "Churn dashboard plus the retention cohort view.",
		Reason:           "Board asked for both views together.",
		DesiredStartDate: time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC),
		DesiredEndDate:   time.Date(2026, 12, 15, 0, 0, 0, 0, time.UTC),
		ExpectedCost:     decimal.RequireFromString("24000"),
	}
	out, err := fx.svc.UpdateDraft(testCtx(), fx.creator, cr.ID, params)
	require.NoError(t, err)
	require.Equal(t, params.Title, out.Title)
	require.Equal(t, changerequest.StatusDraft, out.Status)
}

func TestWorkflow_GetByIDNotFound(t *testing.T) {
	fx := newWorkflowFixture(t, contract.EngagementFixedPrice)
	_, err := fx.svc.GetByID(testCtx(), uuid.New())
	requireServiceError(t, err, 404, "ENG_NOT_FOUND")
}

func requireServiceError(t *testing.T, err error, status int, code string) {
	t.Helper()
	require.Error(t, err)
	var svcErr *ServiceError
	require.ErrorAs(t, err, &svcErr)
	require.Equal(t, status, svcErr.Status)
	require.Equal(t, code, svcErr.Code)
}

func requireValidationError(t *testing.T, err error) map[string]string {
	t.Helper()
	require.Error(t, err)
	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	return valErr.Fields
}
