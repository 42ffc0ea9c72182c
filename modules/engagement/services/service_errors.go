package services

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/stafflink/engage-sdk/modules/engagement/domain/changerequest"
	"github.com/stafflink/engage-sdk/modules/engagement/domain/contract"
	"github.com/stafflink/engage-sdk/modules/engagement/domain/proposal"
	"github.com/stafflink/engage-sdk/modules/engagement/permissions"
)

type ServiceError struct {
	Status  int
	Code    string
	Message string
	Cause   error
}

func (e *ServiceError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *ServiceError) Unwrap() error { return e.Cause }

func newServiceError(status int, code, message string, cause error) *ServiceError {
	return &ServiceError{Status: status, Code: code, Message: message, Cause: cause}
}

// ValidationError carries a field-keyed problem map so controllers can render
// per-field messages instead of one opaque string.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return "validation failed: " + strings.Join(keys, ", ")
}

func newValidationError(fields map[string]string) *ValidationError {
	return &ValidationError{Fields: fields}
}

func permissionDenied(d permissions.Decision) *ServiceError {
	return newServiceError(http.StatusForbidden, "ENG_PERMISSION_DENIED", string(d.Reason), nil)
}

// mapError normalizes everything a repository or guard can return into the
// stable error surface controllers rely on. ServiceError and ValidationError
// pass through untouched.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr
	}
	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return valErr
	}

	var ite *changerequest.InvalidTransitionError
	if errors.As(err, &ite) {
		recordTransition(ite.Action, "invalid")
		return newServiceError(http.StatusUnprocessableEntity, "ENG_INVALID_TRANSITION", ite.Error(), err)
	}

	switch {
	case errors.Is(err, changerequest.ErrStatusConflict):
		recordWriteConflict("status")
		return newServiceError(http.StatusConflict, "ENG_CONFLICT", "change request was modified concurrently, re-fetch and retry", err)
	case errors.Is(err, changerequest.ErrNotFound):
		return newServiceError(http.StatusNotFound, "ENG_NOT_FOUND", "change request not found", err)
	case errors.Is(err, contract.ErrNotFound):
		return newServiceError(http.StatusNotFound, "ENG_NOT_FOUND", "contract not found", err)
	case errors.Is(err, proposal.ErrNotFound):
		return newServiceError(http.StatusNotFound, "ENG_NOT_FOUND", "proposal not found", err)
	}

	return mapPgErrorToServiceError(err)
}
