package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/stafflink/engage-sdk/modules/engagement/domain/changerequest"
	"github.com/stafflink/engage-sdk/modules/engagement/domain/contract"
	"github.com/stafflink/engage-sdk/modules/engagement/domain/proposal"
	"github.com/stafflink/engage-sdk/modules/engagement/permissions"
	"github.com/stafflink/engage-sdk/modules/engagement/services"
	"github.com/stafflink/engage-sdk/pkg/composables"
	"github.com/stafflink/engage-sdk/pkg/eventbus"
)

type nopTx struct{ pgx.Tx }

func (nopTx) Commit(context.Context) error   { return nil }
func (nopTx) Rollback(context.Context) error { return nil }

type memCRRepo struct {
	items   map[uuid.UUID]*changerequest.ChangeRequest
	history map[uuid.UUID][]changerequest.HistoryEntry
}

func newMemCRRepo() *memCRRepo {
	return &memCRRepo{
		items:   map[uuid.UUID]*changerequest.ChangeRequest{},
		history: map[uuid.UUID][]changerequest.HistoryEntry{},
	}
}

func (m *memCRRepo) Create(_ context.Context, cr *changerequest.ChangeRequest) (*changerequest.ChangeRequest, error) {
	cp := *cr
	m.items[cr.ID] = &cp
	out := cp
	return &out, nil
}

func (m *memCRRepo) GetByID(_ context.Context, id uuid.UUID) (*changerequest.ChangeRequest, error) {
	cr, ok := m.items[id]
	if !ok {
		return nil, changerequest.ErrNotFound
	}
	out := *cr
	out.History = append([]changerequest.HistoryEntry(nil), m.history[id]...)
	return &out, nil
}

func (m *memCRRepo) LockByID(ctx context.Context, id uuid.UUID) (*changerequest.ChangeRequest, error) {
	return m.GetByID(ctx, id)
}

func (m *memCRRepo) UpdateDraft(_ context.Context, cr *changerequest.ChangeRequest) (*changerequest.ChangeRequest, error) {
	stored, ok := m.items[cr.ID]
	if !ok {
		return nil, changerequest.ErrNotFound
	}
	if stored.Status != changerequest.StatusDraft {
		return nil, changerequest.ErrStatusConflict
	}
	cp := *cr
	m.items[cr.ID] = &cp
	out := cp
	return &out, nil
}

func (m *memCRRepo) UpdateStatus(_ context.Context, id uuid.UUID, expected, next changerequest.Status) (*changerequest.ChangeRequest, error) {
	stored, ok := m.items[id]
	if !ok {
		return nil, changerequest.ErrNotFound
	}
	if stored.Status != expected {
		return nil, changerequest.ErrStatusConflict
	}
	stored.Status = next
	out := *stored
	return &out, nil
}

func (m *memCRRepo) SetImpactAnalysis(_ context.Context, id uuid.UUID, expected, next changerequest.Status, impact *changerequest.ImpactAnalysis) (*changerequest.ChangeRequest, error) {
	stored, ok := m.items[id]
	if !ok {
		return nil, changerequest.ErrNotFound
	}
	if stored.Status != expected {
		return nil, changerequest.ErrStatusConflict
	}
	stored.Status = next
	stored.ImpactAnalysis = impact
	out := *stored
	return &out, nil
}

func (m *memCRRepo) AppendHistory(_ context.Context, id uuid.UUID, entry changerequest.HistoryEntry) error {
	m.history[id] = append(m.history[id], entry)
	return nil
}

func (m *memCRRepo) ListByContract(_ context.Context, contractID uuid.UUID) ([]*changerequest.ChangeRequest, error) {
	var out []*changerequest.ChangeRequest
	for _, cr := range m.items {
		if cr.ContractID == contractID {
			cp := *cr
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memContractRepo struct {
	items map[uuid.UUID]*contract.Contract
}

func (m *memContractRepo) GetByID(_ context.Context, id uuid.UUID) (*contract.Contract, error) {
	c, ok := m.items[id]
	if !ok {
		return nil, contract.ErrNotFound
	}
	out := *c
	return &out, nil
}

func (m *memContractRepo) BumpVersion(_ context.Context, id uuid.UUID) (*contract.Contract, error) {
	c, ok := m.items[id]
	if !ok {
		return nil, contract.ErrNotFound
	}
	c.Version++
	out := *c
	return &out, nil
}

type memProposalRepo struct {
	items map[uuid.UUID]*proposal.Proposal
}

func (m *memProposalRepo) GetByID(_ context.Context, id uuid.UUID) (*proposal.Proposal, error) {
	p, ok := m.items[id]
	if !ok {
		return nil, proposal.ErrNotFound
	}
	out := *p
	return &out, nil
}

func (m *memProposalRepo) ListByContact(_ context.Context, contactID uuid.UUID) ([]proposal.Proposal, error) {
	var out []proposal.Proposal
	for _, p := range m.items {
		if p.ContactID == contactID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memProposalRepo) UpdateFeedback(_ context.Context, id uuid.UUID, reviewerID uuid.UUID, feedback string) (*proposal.Proposal, error) {
	p, ok := m.items[id]
	if !ok {
		return nil, proposal.ErrNotFound
	}
	p.ClientFeedback = &feedback
	p.ReviewerID = &reviewerID
	out := *p
	return &out, nil
}

type apiFixture struct {
	router   *mux.Router
	contract *contract.Contract
	creator  permissions.Actor
	manager  permissions.Actor
	client   permissions.Actor
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	c := &contract.Contract{
		ID:             uuid.New(),
		Kind:           contract.KindSOW,
		EngagementType: contract.EngagementFixedPrice,
		Status:         contract.StatusActive,
		AssigneeUserID: uuid.New(),
		Version:        1,
	}

	gate := permissions.NewGate(permissions.DefaultReviewPolicy())
	bus := eventbus.NewEventPublisher(nil)
	workflow := services.NewWorkflowService(
		newMemCRRepo(),
		&memContractRepo{items: map[uuid.UUID]*contract.Contract{c.ID: c}},
		gate,
		bus,
	)
	proposals := services.NewProposalService(
		&memProposalRepo{items: map[uuid.UUID]*proposal.Proposal{}},
		gate,
		bus,
	)

	r := mux.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(composables.WithTx(req.Context(), nopTx{})))
		})
	})
	NewEngagementAPIController(workflow, proposals).Register(r)

	return &apiFixture{
		router:   r,
		contract: c,
		creator:  permissions.Actor{ID: uuid.New(), Role: permissions.RoleSalesRep},
		manager:  permissions.Actor{ID: uuid.New(), Role: permissions.RoleSalesManager},
		client:   permissions.Actor{ID: uuid.New(), Role: permissions.RoleClient},
	}
}

func (fx *apiFixture) do(t *testing.T, actor *permissions.Actor, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	if actor != nil {
		req.Header.Set("X-User-Id", actor.ID.String())
		req.Header.Set("X-User-Role", string(actor.Role))
	}
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)
	return rec
}

func (fx *apiFixture) createBody() map[string]any {
	return map[string]any{
		"contract_id":         fx.contract.ID.String(),
		"title":               "Extend reporting scope",
		"type":                "ScopeChange",
		"reason":              "Compliance deadline moved.",
		"desired_start_date":  "2026-09-01",
		"desired_end_date":    "2026-10-15",
		"expected_extra_cost": "12000",
	}
}

func (fx *apiFixture) createDraft(t *testing.T) uuid.UUID {
	t.Helper()
	rec := fx.do(t, &fx.creator, http.MethodPost, "/engagement/api/change-requests", fx.createBody())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var cr changerequest.ChangeRequest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cr))
	return cr.ID
}

func TestAPI_RequiresIdentity(t *testing.T) {
	fx := newAPIFixture(t)
	rec := fx.do(t, nil, http.MethodPost, "/engagement/api/change-requests", fx.createBody())
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPI_CreateAndSubmit(t *testing.T) {
	fx := newAPIFixture(t)
	id := fx.createDraft(t)

	rec := fx.do(t, &fx.creator, http.MethodPost, "/engagement/api/change-requests/"+id.String()+":submit", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var cr changerequest.ChangeRequest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cr))
	require.Equal(t, changerequest.StatusSubmitted, cr.Status)
}

func TestAPI_CreateValidationFields(t *testing.T) {
	fx := newAPIFixture(t)
	body := fx.createBody()
	body["title"] = ""

	rec := fx.do(t, &fx.creator, http.MethodPost, "/engagement/api/change-requests", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var apiErr struct {
		Code   string            `json:"code"`
		Fields map[string]string `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	require.Equal(t, "ENG_VALIDATION", apiErr.Code)
	require.Contains(t, apiErr.Fields, "Title")
}

func TestAPI_UnknownBodyFieldRejected(t *testing.T) {
	fx := newAPIFixture(t)
	body := fx.createBody()
	body["unexpected"] = true

	rec := fx.do(t, &fx.creator, http.MethodPost, "/engagement/api/change-requests", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_SubmitByOtherUserForbidden(t *testing.T) {
	fx := newAPIFixture(t)
	id := fx.createDraft(t)

	rec := fx.do(t, &fx.manager, http.MethodPost, "/engagement/api/change-requests/"+id.String()+":submit", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	var apiErr struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	require.Equal(t, "ENG_PERMISSION_DENIED", apiErr.Code)
}

func TestAPI_RequestChangeEmptyMessage(t *testing.T) {
	fx := newAPIFixture(t)
	id := fx.createDraft(t)

	rec := fx.do(t, &fx.client, http.MethodPost,
		"/engagement/api/change-requests/"+id.String()+":request-change",
		map[string]any{"message": ""})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_FullReviewRound(t *testing.T) {
	fx := newAPIFixture(t)
	id := fx.createDraft(t)

	rec := fx.do(t, &fx.creator, http.MethodPost, "/engagement/api/change-requests/"+id.String()+":submit", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = fx.do(t, &fx.manager, http.MethodPost,
		"/engagement/api/change-requests/"+id.String()+":attach-impact",
		map[string]any{"fixed_price": map[string]any{"dev_hours": "80"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = fx.do(t, &fx.manager, http.MethodPost, "/engagement/api/change-requests/"+id.String()+":send-to-client", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = fx.do(t, &fx.client, http.MethodPost, "/engagement/api/change-requests/"+id.String()+":approve", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var cr changerequest.ChangeRequest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cr))
	require.Equal(t, changerequest.StatusApproved, cr.Status)
}

func TestAPI_GetIncludesHistory(t *testing.T) {
	fx := newAPIFixture(t)
	id := fx.createDraft(t)
	fx.do(t, &fx.creator, http.MethodPost, "/engagement/api/change-requests/"+id.String()+":submit", nil)

	rec := fx.do(t, &fx.creator, http.MethodGet, "/engagement/api/change-requests/"+id.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var cr changerequest.ChangeRequest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cr))
	require.Len(t, cr.History, 2)
	require.Equal(t, changerequest.ActionSubmit, cr.History[1].Action)
}

func TestAPI_AllowedActions(t *testing.T) {
	fx := newAPIFixture(t)
	id := fx.createDraft(t)

	rec := fx.do(t, &fx.creator, http.MethodGet, "/engagement/api/change-requests/"+id.String()+"/allowed-actions", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		AllowedActions []changerequest.Action `json:"allowed_actions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.ElementsMatch(t, []changerequest.Action{
		changerequest.ActionSaveDraft,
		changerequest.ActionSubmit,
		changerequest.ActionTerminate,
	}, resp.AllowedActions)
}

func TestAPI_BadPathID(t *testing.T) {
	fx := newAPIFixture(t)
	rec := fx.do(t, &fx.creator, http.MethodGet, "/engagement/api/change-requests/not-a-uuid", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_NotFound(t *testing.T) {
	fx := newAPIFixture(t)
	rec := fx.do(t, &fx.creator, http.MethodGet, "/engagement/api/change-requests/"+uuid.NewString(), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_TerminateWithNote(t *testing.T) {
	fx := newAPIFixture(t)
	id := fx.createDraft(t)

	rec := fx.do(t, &fx.creator, http.MethodPost,
		"/engagement/api/change-requests/"+id.String()+":terminate",
		map[string]any{"note": "Client paused the initiative."})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var cr changerequest.ChangeRequest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cr))
	require.Equal(t, changerequest.StatusTerminated, cr.Status)
}

func TestAPI_ProposalFeedbackFlow(t *testing.T) {
	fx := newAPIFixture(t)

	repo := &memProposalRepo{items: map[uuid.UUID]*proposal.Proposal{}}
	contactID := uuid.New()
	p := &proposal.Proposal{
		ID:        uuid.New(),
		ContactID: contactID,
		Status:    proposal.StatusSentToClient,
		CreatedAt: time.Now().UTC(),
	}
	repo.items[p.ID] = p

	gate := permissions.NewGate(permissions.DefaultReviewPolicy())
	proposals := services.NewProposalService(repo, gate, eventbus.NewEventPublisher(nil))

	r := mux.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(composables.WithTx(req.Context(), nopTx{})))
		})
	})
	NewEngagementAPIController(nil, proposals).Register(r)
	fx.router = r

	rec := fx.do(t, &fx.client, http.MethodGet, "/engagement/api/contacts/"+contactID.String()+"/display-proposal", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Proposal *proposal.Proposal `json:"proposal"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Proposal)
	require.Equal(t, p.ID, resp.Proposal.ID)

	rec = fx.do(t, &fx.client, http.MethodPost,
		"/engagement/api/proposals/"+p.ID.String()+":feedback",
		map[string]any{"feedback": "Works for our timeline."})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = fx.do(t, &fx.creator, http.MethodPost,
		"/engagement/api/proposals/"+p.ID.String()+":feedback",
		map[string]any{"feedback": "Internal note."})
	require.Equal(t, http.StatusForbidden, rec.Code)
}
