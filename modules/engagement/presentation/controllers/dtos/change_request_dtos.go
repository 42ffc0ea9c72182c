package dtos

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stafflink/engage-sdk/modules/engagement/domain/changerequest"
	"github.com/stafflink/engage-sdk/modules/engagement/services"
	"github.com/stafflink/engage-sdk/pkg/constants"
)

type APIError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Meta    map[string]string `json:"meta,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type CreateChangeRequestDTO struct {
	ContractID       string       `json:"contract_id" validate:"required,uuid"`
	Title            string       `json:"title" validate:"required,max=255"`
	Type             string       `json:"type" validate:"required"`
	Description      string       `json:"description" validate:"omitempty,max=2000"`
	Reason           string       `json:"reason" validate:"omitempty,max=2000"`
	DesiredStartDate string       `json:"desired_start_date" validate:"required"`
	DesiredEndDate   string       `json:"desired_end_date" validate:"required"`
	ExpectedCost     string       `json:"expected_extra_cost" validate:"omitempty"`
	Attachments      []Attachment `json:"attachments" validate:"omitempty,dive"`
}

type UpdateChangeRequestDTO struct {
	Title            string       `json:"title" validate:"required,max=255"`
	Type             string       `json:"type" validate:"required"`
	Description      string       `json:"description" validate:"omitempty,max=2000"`
	Reason           string       `json:"reason" validate:"omitempty,max=2000"`
	DesiredStartDate string       `json:"desired_start_date" validate:"required"`
	DesiredEndDate   string       `json:"desired_end_date" validate:"required"`
	ExpectedCost     string       `json:"expected_extra_cost" validate:"omitempty"`
	Attachments      []Attachment `json:"attachments" validate:"omitempty,dive"`
}

type Attachment struct {
	FileName   string `json:"file_name" validate:"required"`
	StorageKey string `json:"storage_key" validate:"required"`
	SizeBytes  int64  `json:"size_bytes" validate:"gte=0"`
}

type RequestForChangeDTO struct {
	Message string `json:"message" validate:"required,max=2000"`
}

type TerminateDTO struct {
	Note *string `json:"note" validate:"omitempty,max=2000"`
}

type SubmitFeedbackDTO struct {
	Feedback string `json:"feedback" validate:"required,max=2000"`
}

func (dto *CreateChangeRequestDTO) Ok(ctx context.Context) (map[string]string, bool) {
	return validateStruct(dto)
}

func (dto *UpdateChangeRequestDTO) Ok(ctx context.Context) (map[string]string, bool) {
	return validateStruct(dto)
}

func (dto *RequestForChangeDTO) Ok(ctx context.Context) (map[string]string, bool) {
	return validateStruct(dto)
}

func (dto *TerminateDTO) Ok(ctx context.Context) (map[string]string, bool) {
	return validateStruct(dto)
}

func (dto *SubmitFeedbackDTO) Ok(ctx context.Context) (map[string]string, bool) {
	return validateStruct(dto)
}

func validateStruct(dto any) (map[string]string, bool) {
	errorMessages := map[string]string{}
	errs := constants.Validate.Struct(dto)
	if errs == nil {
		return errorMessages, true
	}
	for _, err := range errs.(validator.ValidationErrors) {
		errorMessages[err.Field()] = validationMessage(err)
	}
	return errorMessages, len(errorMessages) == 0
}

func validationMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", err.Field())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", err.Field(), err.Param())
	case "uuid":
		return fmt.Sprintf("%s must be a valid UUID", err.Field())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
	default:
		return fmt.Sprintf("%s is invalid", err.Field())
	}
}

func (dto *CreateChangeRequestDTO) ToParams() (services.CreateDraftParams, error) {
	base, err := toDraftFields(dto.Title, dto.Type, dto.Description, dto.Reason,
		dto.DesiredStartDate, dto.DesiredEndDate, dto.ExpectedCost, dto.Attachments)
	if err != nil {
		return services.CreateDraftParams{}, err
	}

	contractID, err := uuid.Parse(dto.ContractID)
	if err != nil {
		return services.CreateDraftParams{}, fmt.Errorf("contract_id is invalid: %w", err)
	}
	return services.CreateDraftParams{
		ContractID:       contractID,
		Title:            base.Title,
		Type:             base.Type,
		Description:      base.Description,
		Reason:           base.Reason,
		DesiredStartDate: base.DesiredStartDate,
		DesiredEndDate:   base.DesiredEndDate,
		ExpectedCost:     base.ExpectedCost,
		Attachments:      base.Attachments,
	}, nil
}

func (dto *UpdateChangeRequestDTO) ToParams() (services.UpdateDraftParams, error) {
	return toDraftFields(dto.Title, dto.Type, dto.Description, dto.Reason,
		dto.DesiredStartDate, dto.DesiredEndDate, dto.ExpectedCost, dto.Attachments)
}

func toDraftFields(title, reqType, description, reason, start, end, cost string, attachments []Attachment) (services.UpdateDraftParams, error) {
	startDate, err := ParseDate(start)
	if err != nil {
		return services.UpdateDraftParams{}, fmt.Errorf("desired_start_date is invalid: %w", err)
	}
	endDate, err := ParseDate(end)
	if err != nil {
		return services.UpdateDraftParams{}, fmt.Errorf("desired_end_date is invalid: %w", err)
	}

	expectedCost := decimal.Zero
	if strings.TrimSpace(cost) != "" {
		expectedCost, err = decimal.NewFromString(cost)
		if err != nil {
			return services.UpdateDraftParams{}, fmt.Errorf("expected_extra_cost is invalid: %w", err)
		}
	}

	out := services.UpdateDraftParams{
		Title:            title,
		Type:             changerequest.RequestType(reqType),
		Description:      description,
		Reason:           reason,
		DesiredStartDate: startDate,
		DesiredEndDate:   endDate,
		ExpectedCost:     expectedCost,
	}
	for _, a := range attachments {
		out.Attachments = append(out.Attachments, changerequest.Attachment{
			FileName:   a.FileName,
			StorageKey: a.StorageKey,
			SizeBytes:  a.SizeBytes,
		})
	}
	return out, nil
}

// ParseDate accepts a plain date or a full RFC 3339 timestamp.
func ParseDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
