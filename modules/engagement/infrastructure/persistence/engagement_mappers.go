package persistence

import (
	"encoding/json"
	"fmt"

	"github.com/stafflink/engage-sdk/modules/engagement/domain/changerequest"
	"github.com/stafflink/engage-sdk/modules/engagement/domain/contract"
	"github.com/stafflink/engage-sdk/modules/engagement/domain/proposal"
	"github.com/stafflink/engage-sdk/modules/engagement/infrastructure/persistence/models"
)

func toDomainChangeRequest(row *models.ChangeRequest) (*changerequest.ChangeRequest, error) {
	cr := &changerequest.ChangeRequest{
		ID:               row.ID,
		ContractID:       row.ContractID,
		Title:            row.Title,
		Type:             changerequest.RequestType(row.Type),
		Description:      row.Description,
		Reason:           row.Reason,
		DesiredStartDate: row.DesiredStartDate,
		DesiredEndDate:   row.DesiredEndDate,
		ExpectedCost:     row.ExpectedCost,
		Status:           changerequest.Status(row.Status),
		CreatedBy:        row.CreatedBy,
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
	}
	if len(row.Attachments) > 0 {
		if err := json.Unmarshal(row.Attachments, &cr.Attachments); err != nil {
			return nil, fmt.Errorf("decode attachments for change request %s: %w", row.ID, err)
		}
	}
	if len(row.ImpactAnalysis) > 0 {
		var impact changerequest.ImpactAnalysis
		if err := json.Unmarshal(row.ImpactAnalysis, &impact); err != nil {
			return nil, fmt.Errorf("decode impact analysis for change request %s: %w", row.ID, err)
		}
		cr.ImpactAnalysis = &impact
	}
	return cr, nil
}

func toDBChangeRequest(cr *changerequest.ChangeRequest) (*models.ChangeRequest, error) {
	row := &models.ChangeRequest{
		ID:               cr.ID,
		ContractID:       cr.ContractID,
		Title:            cr.Title,
		Type:             string(cr.Type),
		Description:      cr.Description,
		Reason:           cr.Reason,
		DesiredStartDate: cr.DesiredStartDate,
		DesiredEndDate:   cr.DesiredEndDate,
		ExpectedCost:     cr.ExpectedCost,
		Status:           string(cr.Status),
		CreatedBy:        cr.CreatedBy,
		CreatedAt:        cr.CreatedAt,
		UpdatedAt:        cr.UpdatedAt,
	}
	if cr.Attachments != nil {
		b, err := json.Marshal(cr.Attachments)
		if err != nil {
			return nil, fmt.Errorf("encode attachments for change request %s: %w", cr.ID, err)
		}
		row.Attachments = b
	}
	if cr.ImpactAnalysis != nil {
		b, err := json.Marshal(cr.ImpactAnalysis)
		if err != nil {
			return nil, fmt.Errorf("encode impact analysis for change request %s: %w", cr.ID, err)
		}
		row.ImpactAnalysis = b
	}
	return row, nil
}

func toDomainHistoryEntry(row *models.ChangeRequestHistory) changerequest.HistoryEntry {
	return changerequest.HistoryEntry{
		Action:    changerequest.Action(row.Action),
		ActorID:   row.ActorID,
		Timestamp: row.Timestamp,
		Note:      row.Note,
	}
}

func toDomainContract(row *models.Contract) *contract.Contract {
	c := &contract.Contract{
		ID:             row.ID,
		Kind:           contract.Kind(row.Kind),
		Status:         contract.Status(row.Status),
		AssigneeUserID: row.AssigneeUserID,
		Version:        row.Version,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}
	if row.EngagementType != nil {
		c.EngagementType = contract.EngagementType(*row.EngagementType)
	}
	return c
}

func toDomainProposal(row *models.Proposal) (*proposal.Proposal, error) {
	p := &proposal.Proposal{
		ID:             row.ID,
		OpportunityID:  row.OpportunityID,
		ContactID:      row.ContactID,
		Title:          row.Title,
		Status:         proposal.Status(row.Status),
		IsCurrent:      row.IsCurrent,
		CreatedAt:      row.CreatedAt,
		ReviewerID:     row.ReviewerID,
		ClientFeedback: row.ClientFeedback,
		Legacy:         row.Legacy,
	}
	if len(row.Attachments) > 0 {
		if err := json.Unmarshal(row.Attachments, &p.Attachments); err != nil {
			return nil, fmt.Errorf("decode attachments for proposal %s: %w", row.ID, err)
		}
	}
	return p, nil
}
