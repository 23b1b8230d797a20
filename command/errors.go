package command

import (
	"net/http"

	"github.com/goliatone/go-buildrequests/core"
	goerrors "github.com/goliatone/go-errors"
)

func commandDependencyError(message string) error {
	return goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.ErrorDependencyMissing)
}

func commandValidationError(field string, message string) error {
	return goerrors.NewValidation("command: validation failed", goerrors.FieldError{
		Field:   field,
		Message: message,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ErrorBadInput).
		WithSeverity(goerrors.SeverityError)
}
