package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	LeadsErrorBadInput          = "LEADS_BAD_INPUT"
	LeadsErrorUnauthorized      = "LEADS_UNAUTHORIZED"
	LeadsErrorNotFound          = "LEADS_NOT_FOUND"
	LeadsErrorConflict          = "LEADS_CONFLICT"
	LeadsErrorFetchFailed       = "LEADS_FETCH_FAILED"
	LeadsErrorNormalization     = "LEADS_NORMALIZATION_FAILED"
	LeadsErrorPersistenceFailed = "LEADS_PERSISTENCE_FAILED"
	LeadsErrorOperationFailed   = "LEADS_OPERATION_FAILED"
	LeadsErrorInternal          = "LEADS_INTERNAL_ERROR"
)

func pipelineErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensurePipelineErrorEnvelope(richErr)
	}

	// Domain sentinels classify ahead of the message heuristics, which only
	// cover errors that surface without a sentinel or rich envelope.
	switch {
	case errors.Is(err, ErrTenantNotFound), errors.Is(err, ErrAccountNotFound):
		return newPipelineError(err.Error(), goerrors.CategoryNotFound, LeadsErrorNotFound)
	case errors.Is(err, ErrInvalidRawLeadStateTransition):
		return newPipelineError(err.Error(), goerrors.CategoryConflict, LeadsErrorConflict)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "signature"), strings.Contains(msg, "verify token"):
		return newPipelineError(err.Error(), goerrors.CategoryAuth, LeadsErrorUnauthorized)
	case strings.Contains(msg, "not found"), strings.Contains(msg, "not registered"):
		return newPipelineError(err.Error(), goerrors.CategoryNotFound, LeadsErrorNotFound)
	case strings.Contains(msg, "fetch"), strings.Contains(msg, "unreachable"):
		return newPipelineError(err.Error(), goerrors.CategoryExternal, LeadsErrorFetchFailed)
	case strings.Contains(msg, "name or an email"), strings.Contains(msg, "normaliz"):
		return newPipelineError(err.Error(), goerrors.CategoryValidation, LeadsErrorNormalization)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "malformed"):
		return newPipelineError(err.Error(), goerrors.CategoryBadInput, LeadsErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensurePipelineErrorEnvelope(mapped)
}

func newPipelineError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensurePipelineErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensurePipelineErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = pipelineHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultPipelineTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultPipelineTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput:
		return LeadsErrorBadInput
	case goerrors.CategoryValidation:
		return LeadsErrorNormalization
	case goerrors.CategoryNotFound:
		return LeadsErrorNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return LeadsErrorUnauthorized
	case goerrors.CategoryConflict:
		return LeadsErrorConflict
	case goerrors.CategoryExternal:
		return LeadsErrorFetchFailed
	case goerrors.CategoryOperation:
		return LeadsErrorOperationFailed
	default:
		return LeadsErrorInternal
	}
}

func pipelineHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// MapError exposes the pipeline error mapper so packages outside core can
// produce consistent envelopes for caller-facing responses.
func MapError(err error) *goerrors.Error {
	return pipelineErrorMapper(err)
}
