package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/stafflink/engage-sdk/modules/engagement/domain/changerequest"
	"github.com/stafflink/engage-sdk/modules/engagement/permissions"
	"github.com/stafflink/engage-sdk/modules/engagement/presentation/controllers/dtos"
	"github.com/stafflink/engage-sdk/modules/engagement/services"
	"github.com/stafflink/engage-sdk/pkg/composables"
	"github.com/stafflink/engage-sdk/pkg/middleware"
)

type EngagementAPIController struct {
	workflow  *services.WorkflowService
	proposals *services.ProposalService
	apiPrefix string
}

func NewEngagementAPIController(workflow *services.WorkflowService, proposals *services.ProposalService) *EngagementAPIController {
	return &EngagementAPIController{
		workflow:  workflow,
		proposals: proposals,
		apiPrefix: "/engagement/api",
	}
}

func (c *EngagementAPIController) Key() string {
	return c.apiPrefix
}

func (c *EngagementAPIController) Register(r *mux.Router) {
	api := r.PathPrefix(c.apiPrefix).Subrouter()
	api.Use(middleware.ProvideActor())

	api.HandleFunc("/contacts/{id}/display-proposal", c.GetDisplayProposal).Methods(http.MethodGet)
	api.HandleFunc("/proposals/{id}", c.GetProposal).Methods(http.MethodGet)
	api.HandleFunc("/proposals/{id}:feedback", c.SubmitProposalFeedback).Methods(http.MethodPost)

	api.HandleFunc("/change-requests", c.CreateChangeRequest).Methods(http.MethodPost)
	api.HandleFunc("/change-requests", c.ListChangeRequests).Methods(http.MethodGet)
	api.HandleFunc("/change-requests/{id}", c.GetChangeRequest).Methods(http.MethodGet)
	api.HandleFunc("/change-requests/{id}", c.UpdateChangeRequest).Methods(http.MethodPatch)
	api.HandleFunc("/change-requests/{id}/allowed-actions", c.GetAllowedActions).Methods(http.MethodGet)
	api.HandleFunc("/change-requests/{id}:submit", c.SubmitChangeRequest).Methods(http.MethodPost)
	api.HandleFunc("/change-requests/{id}:attach-impact", c.AttachImpactAnalysis).Methods(http.MethodPost)
	api.HandleFunc("/change-requests/{id}:send-to-client", c.SendToClient).Methods(http.MethodPost)
	api.HandleFunc("/change-requests/{id}:approve", c.ApproveChangeRequest).Methods(http.MethodPost)
	api.HandleFunc("/change-requests/{id}:request-change", c.RequestForChange).Methods(http.MethodPost)
	api.HandleFunc("/change-requests/{id}:resubmit", c.ResubmitChangeRequest).Methods(http.MethodPost)
	api.HandleFunc("/change-requests/{id}:reopen", c.ReopenChangeRequest).Methods(http.MethodPost)
	api.HandleFunc("/change-requests/{id}:terminate", c.TerminateChangeRequest).Methods(http.MethodPost)
}

func (c *EngagementAPIController) GetDisplayProposal(w http.ResponseWriter, r *http.Request) {
	_, requestID, ok := requireActor(w, r)
	if !ok {
		return
	}
	contactID, ok := pathID(w, r, requestID)
	if !ok {
		return
	}

	p, err := c.proposals.DisplayProposal(r.Context(), contactID)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	if p == nil {
		writeJSON(w, http.StatusOK, map[string]any{"proposal": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"proposal": p})
}

func (c *EngagementAPIController) GetProposal(w http.ResponseWriter, r *http.Request) {
	_, requestID, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, requestID)
	if !ok {
		return
	}

	p, err := c.proposals.GetByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (c *EngagementAPIController) SubmitProposalFeedback(w http.ResponseWriter, r *http.Request) {
	actor, requestID, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, requestID)
	if !ok {
		return
	}

	var dto dtos.SubmitFeedbackDTO
	if err := decodeJSON(r.Body, &dto); err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "ENG_INVALID_BODY", "invalid request body")
		return
	}
	if fields, ok := dto.Ok(r.Context()); !ok {
		writeValidationError(w, requestID, fields)
		return
	}

	p, err := c.proposals.SubmitFeedback(r.Context(), actor, id, dto.Feedback)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (c *EngagementAPIController) CreateChangeRequest(w http.ResponseWriter, r *http.Request) {
	actor, requestID, ok := requireActor(w, r)
	if !ok {
		return
	}

	var dto dtos.CreateChangeRequestDTO
	if err := decodeJSON(r.Body, &dto); err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "ENG_INVALID_BODY", "invalid request body")
		return
	}
	if fields, ok := dto.Ok(r.Context()); !ok {
		writeValidationError(w, requestID, fields)
		return
	}
	params, err := dto.ToParams()
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "ENG_INVALID_BODY", err.Error())
		return
	}

	cr, err := c.workflow.CreateDraft(r.Context(), actor, params)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusCreated, cr)
}

func (c *EngagementAPIController) ListChangeRequests(w http.ResponseWriter, r *http.Request) {
	_, requestID, ok := requireActor(w, r)
	if !ok {
		return
	}
	contractID, err := uuid.Parse(r.URL.Query().Get("contract_id"))
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "ENG_INVALID_QUERY", "contract_id is required")
		return
	}

	list, err := c.workflow.ListByContract(r.Context(), contractID)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"change_requests": list})
}

func (c *EngagementAPIController) GetChangeRequest(w http.ResponseWriter, r *http.Request) {
	_, requestID, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, requestID)
	if !ok {
		return
	}

	cr, err := c.workflow.GetByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, cr)
}

func (c *EngagementAPIController) UpdateChangeRequest(w http.ResponseWriter, r *http.Request) {
	actor, requestID, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, requestID)
	if !ok {
		return
	}

	var dto dtos.UpdateChangeRequestDTO
	if err := decodeJSON(r.Body, &dto); err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "ENG_INVALID_BODY", "invalid request body")
		return
	}
	if fields, ok := dto.Ok(r.Context()); !ok {
		writeValidationError(w, requestID, fields)
		return
	}
	params, err := dto.ToParams()
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "ENG_INVALID_BODY", err.Error())
		return
	}

	cr, err := c.workflow.UpdateDraft(r.Context(), actor, id, params)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, cr)
}

func (c *EngagementAPIController) GetAllowedActions(w http.ResponseWriter, r *http.Request) {
	actor, requestID, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, requestID)
	if !ok {
		return
	}

	actions, err := c.workflow.AllowedActions(r.Context(), actor, id)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"allowed_actions": actions})
}

func (c *EngagementAPIController) SubmitChangeRequest(w http.ResponseWriter, r *http.Request) {
	c.runAction(w, r, c.workflow.Submit)
}

func (c *EngagementAPIController) SendToClient(w http.ResponseWriter, r *http.Request) {
	c.runAction(w, r, c.workflow.SendToClient)
}

func (c *EngagementAPIController) ApproveChangeRequest(w http.ResponseWriter, r *http.Request) {
	c.runAction(w, r, c.workflow.Approve)
}

func (c *EngagementAPIController) ResubmitChangeRequest(w http.ResponseWriter, r *http.Request) {
	c.runAction(w, r, c.workflow.Resubmit)
}

func (c *EngagementAPIController) ReopenChangeRequest(w http.ResponseWriter, r *http.Request) {
	c.runAction(w, r, c.workflow.Reopen)
}

func (c *EngagementAPIController) AttachImpactAnalysis(w http.ResponseWriter, r *http.Request) {
	actor, requestID, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, requestID)
	if !ok {
		return
	}

	var candidate changerequest.ImpactAnalysis
	if err := decodeJSON(r.Body, &candidate); err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "ENG_INVALID_BODY", "invalid request body")
		return
	}

	cr, err := c.workflow.AttachImpactAnalysis(r.Context(), actor, id, candidate)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, cr)
}

func (c *EngagementAPIController) RequestForChange(w http.ResponseWriter, r *http.Request) {
	actor, requestID, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, requestID)
	if !ok {
		return
	}

	var dto dtos.RequestForChangeDTO
	if err := decodeJSON(r.Body, &dto); err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "ENG_INVALID_BODY", "invalid request body")
		return
	}
	if fields, ok := dto.Ok(r.Context()); !ok {
		writeValidationError(w, requestID, fields)
		return
	}

	cr, err := c.workflow.RequestForChange(r.Context(), actor, id, dto.Message)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, cr)
}

func (c *EngagementAPIController) TerminateChangeRequest(w http.ResponseWriter, r *http.Request) {
	actor, requestID, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, requestID)
	if !ok {
		return
	}

	dto := dtos.TerminateDTO{}
	if err := decodeJSON(r.Body, &dto); err != nil && !errors.Is(err, io.EOF) {
		writeAPIError(w, http.StatusBadRequest, requestID, "ENG_INVALID_BODY", "invalid request body")
		return
	}
	if fields, ok := dto.Ok(r.Context()); !ok {
		writeValidationError(w, requestID, fields)
		return
	}

	cr, err := c.workflow.Terminate(r.Context(), actor, id, dto.Note)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, cr)
}

func (c *EngagementAPIController) runAction(
	w http.ResponseWriter,
	r *http.Request,
	action func(ctx context.Context, actor permissions.Actor, id uuid.UUID) (*changerequest.ChangeRequest, error),
) {
	actor, requestID, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, requestID)
	if !ok {
		return
	}

	cr, err := action(r.Context(), actor, id)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, cr)
}

func requireActor(w http.ResponseWriter, r *http.Request) (permissions.Actor, string, bool) {
	requestID := composables.UseRequestID(r.Context())
	actor, ok := permissions.UseActor(r.Context())
	if !ok {
		writeAPIError(w, http.StatusUnauthorized, requestID, "ENG_UNAUTHENTICATED", "no authenticated user")
		return permissions.Actor{}, requestID, false
	}
	return actor, requestID, true
}

func pathID(w http.ResponseWriter, r *http.Request, requestID string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "ENG_INVALID_QUERY", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func decodeJSON(body io.ReadCloser, out any) error {
	defer func() { _ = body.Close() }()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func writeServiceError(w http.ResponseWriter, requestID string, err error) {
	var valErr *services.ValidationError
	if errors.As(err, &valErr) {
		writeValidationError(w, requestID, valErr.Fields)
		return
	}
	var svcErr *services.ServiceError
	if errors.As(err, &svcErr) {
		writeAPIError(w, svcErr.Status, requestID, svcErr.Code, svcErr.Message)
		return
	}
	writeAPIError(w, http.StatusInternalServerError, requestID, "ENG_INTERNAL", err.Error())
}

func writeValidationError(w http.ResponseWriter, requestID string, fields map[string]string) {
	meta := map[string]string{}
	if requestID != "" {
		meta["request_id"] = requestID
	}
	writeJSON(w, http.StatusBadRequest, dtos.APIError{
		Code:    "ENG_VALIDATION",
		Message: "validation failed",
		Meta:    meta,
		Fields:  fields,
	})
}

func writeAPIError(w http.ResponseWriter, status int, requestID, code, message string) {
	meta := map[string]string{}
	if requestID != "" {
		meta["request_id"] = requestID
	}
	writeJSON(w, status, dtos.APIError{
		Code:    code,
		Message: message,
		Meta:    meta,
	})
}

func writeJSON[T any](w http.ResponseWriter, status int, payload T) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
