package inbound

import (
	"net/http"

	"github.com/goliatone/go-buildrequests/core"
	goerrors "github.com/goliatone/go-errors"
)

func inboundError(
	message string,
	category goerrors.Category,
	code int,
	textCode string,
	metadata map[string]any,
) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func inboundWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	textCode string,
	metadata map[string]any,
) error {
	if source == nil {
		return inboundError(message, category, code, textCode, metadata)
	}
	var rich *goerrors.Error
	if goerrors.As(source, &rich) && rich != nil && rich.TextCode != "" {
		return source
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func inboundBadInput(message string, metadata map[string]any) error {
	return inboundError(
		message,
		goerrors.CategoryBadInput,
		http.StatusBadRequest,
		core.ErrorBadInput,
		metadata,
	)
}

func inboundInternal(message string, metadata map[string]any) error {
	return inboundError(
		message,
		goerrors.CategoryInternal,
		http.StatusInternalServerError,
		core.ErrorInternal,
		metadata,
	)
}
