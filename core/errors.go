package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorBadInput            = "BUILD_REQUEST_BAD_INPUT"
	ErrorNotFound            = "BUILD_REQUEST_NOT_FOUND"
	ErrorRecordCreation      = "BUILD_REQUEST_RECORD_CREATION_FAILED"
	ErrorPersistence         = "BUILD_REQUEST_PERSISTENCE_FAILED"
	ErrorInvalidTransition   = "BUILD_REQUEST_INVALID_TRANSITION"
	ErrorMatrixFailed        = "BUILD_REQUEST_MATRIX_FAILED"
	ErrorDuplicateDelivery   = "BUILD_REQUEST_DUPLICATE_DELIVERY"
	ErrorDependencyMissing   = "BUILD_REQUEST_DEPENDENCY_MISSING"
	ErrorInternal            = "BUILD_REQUEST_INTERNAL_ERROR"
	errorMetadataRequestID   = "request_id"
	errorMetadataTransition  = "transition"
	errorMetadataTargetState = "target_state"
)

// RecordCreationError reports that the record store rejected a payload.
func RecordCreationError(source error, metadata map[string]any) *goerrors.Error {
	err := goerrors.Wrap(
		fmt.Errorf("%w: %w", ErrRecordCreation, source),
		goerrors.CategoryOperation,
		"core: record store rejected payload",
	).
		WithCode(http.StatusUnprocessableEntity).
		WithTextCode(ErrorRecordCreation)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

// PersistenceError reports a failed save during a state transition. The
// transition it belongs to did not take effect.
func PersistenceError(source error, requestID string, transition string) *goerrors.Error {
	return goerrors.Wrap(
		fmt.Errorf("%w: %w", ErrPersistence, source),
		goerrors.CategoryOperation,
		fmt.Sprintf("core: persist %s transition", transition),
	).
		WithCode(http.StatusServiceUnavailable).
		WithTextCode(ErrorPersistence).
		WithMetadata(map[string]any{
			errorMetadataRequestID:  requestID,
			errorMetadataTransition: transition,
		})
}

func invalidTransitionError(requestID string, from RequestState, to RequestState) *goerrors.Error {
	return goerrors.Wrap(
		fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to),
		goerrors.CategoryConflict,
		fmt.Sprintf("core: request cannot move from %s to %s", from, to),
	).
		WithCode(http.StatusConflict).
		WithTextCode(ErrorInvalidTransition).
		WithMetadata(map[string]any{
			errorMetadataRequestID:   requestID,
			errorMetadataTargetState: string(to),
		})
}

func matrixError(source error, requestID string) *goerrors.Error {
	return goerrors.Wrap(
		fmt.Errorf("%w: %w", ErrMatrixInitialize, source),
		goerrors.CategoryExternal,
		"core: initialize build matrix",
	).
		WithCode(http.StatusBadGateway).
		WithTextCode(ErrorMatrixFailed).
		WithMetadata(map[string]any{errorMetadataRequestID: requestID})
}

func badInputError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(ErrorBadInput)
}

func dependencyError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(ErrorDependencyMissing)
}

func IsRecordCreationError(err error) bool {
	return hasTextCode(err, ErrorRecordCreation) || errors.Is(err, ErrRecordCreation)
}

func IsPersistenceError(err error) bool {
	return hasTextCode(err, ErrorPersistence) || errors.Is(err, ErrPersistence)
}

func IsInvalidTransitionError(err error) bool {
	return hasTextCode(err, ErrorInvalidTransition) || errors.Is(err, ErrInvalidTransition)
}

func IsMatrixError(err error) bool {
	return hasTextCode(err, ErrorMatrixFailed) || errors.Is(err, ErrMatrixInitialize)
}

func IsNotFoundError(err error) bool {
	return hasTextCode(err, ErrorNotFound) || errors.Is(err, ErrRequestNotFound)
}

func hasTextCode(err error, textCode string) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr == nil {
		return false
	}
	return richErr.TextCode == textCode
}

func requestErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureErrorEnvelope(richErr)
	}

	switch {
	case errors.Is(err, ErrRequestNotFound):
		return newRequestError(err.Error(), goerrors.CategoryNotFound, ErrorNotFound)
	case errors.Is(err, ErrInvalidTransition):
		return newRequestError(err.Error(), goerrors.CategoryConflict, ErrorInvalidTransition)
	case errors.Is(err, ErrRecordCreation):
		return newRequestError(err.Error(), goerrors.CategoryOperation, ErrorRecordCreation)
	case errors.Is(err, ErrPersistence):
		return newRequestError(err.Error(), goerrors.CategoryOperation, ErrorPersistence)
	case errors.Is(err, ErrMatrixInitialize):
		return newRequestError(err.Error(), goerrors.CategoryExternal, ErrorMatrixFailed)
	case errors.Is(err, ErrInvalidRequestState):
		return newRequestError(err.Error(), goerrors.CategoryBadInput, ErrorBadInput)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "not found"):
		return newRequestError(err.Error(), goerrors.CategoryNotFound, ErrorNotFound)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return newRequestError(err.Error(), goerrors.CategoryBadInput, ErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureErrorEnvelope(mapped)
}

func newRequestError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = requestHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorBadInput
	case goerrors.CategoryNotFound:
		return ErrorNotFound
	case goerrors.CategoryConflict:
		return ErrorInvalidTransition
	case goerrors.CategoryExternal:
		return ErrorMatrixFailed
	default:
		return ErrorInternal
	}
}

func requestHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
