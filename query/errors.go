package query

import (
	"net/http"

	"github.com/goliatone/go-buildrequests/core"
	goerrors "github.com/goliatone/go-errors"
)

func queryDependencyError(message string) error {
	return goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.ErrorDependencyMissing)
}

func queryValidationError(field string, message string) error {
	return goerrors.NewValidation("query: validation failed", goerrors.FieldError{
		Field:   field,
		Message: message,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ErrorBadInput).
		WithSeverity(goerrors.SeverityError)
}
