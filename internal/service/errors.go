package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/stacklok/catalog-cache/internal/catalog"
)

// Code is a stable machine-readable error code.
type Code string

// Error codes returned by the command layer.
const (
	CodeProfileNotFound    Code = "profile_not_found"
	CodeCredentialsMissing Code = "credentials_missing"
	CodeAlreadyActive      Code = "sync_already_active"
	CodeNotActive          Code = "sync_not_active"
	CodeNetwork            Code = "network_error"
	CodeRemoteAuth         Code = "remote_auth_failed"
	CodeStorage            Code = "storage_error"
	CodeInvalidSettings    Code = "invalid_settings"
	CodeItemNotFound       Code = "item_not_found"
	CodeInvalidQuery       Code = "invalid_query"
	CodeInternal           Code = "internal"
)

// Error is a command failure. Message is safe to show to users; Err is the
// cause and is only logged.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

var messages = []struct {
	sentinel error
	code     Code
	message  string
}{
	{catalog.ErrProfileNotFound, CodeProfileNotFound, "Profile not found."},
	{catalog.ErrCredentialsMissing, CodeCredentialsMissing, "No credentials are stored for this profile."},
	{catalog.ErrAlreadyActive, CodeAlreadyActive, "A sync is already running for this profile."},
	{catalog.ErrNotActive, CodeNotActive, "No sync is running for this profile."},
	{catalog.ErrRemoteAuth, CodeRemoteAuth, "The provider rejected the credentials."},
	{catalog.ErrNetwork, CodeNetwork, "The provider could not be reached. Try again later."},
	{catalog.ErrItemNotFound, CodeItemNotFound, "Item not found."},
	{catalog.ErrStorage, CodeStorage, "The local catalog could not be read or written."},
}

// Translate converts err into an *Error. Errors that are already translated
// pass through unchanged.
func Translate(err error) error {
	if err == nil {
		return nil
	}
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr
	}

	// these carry details we wrote ourselves, so the text is shown
	switch {
	case errors.Is(err, catalog.ErrInvalidSettings):
		return &Error{Code: CodeInvalidSettings, Message: detail(err, catalog.ErrInvalidSettings), Err: err}
	case errors.Is(err, catalog.ErrInvalidQuery):
		return &Error{Code: CodeInvalidQuery, Message: detail(err, catalog.ErrInvalidQuery), Err: err}
	}

	for _, m := range messages {
		if errors.Is(err, m.sentinel) {
			return &Error{Code: m.code, Message: m.message, Err: err}
		}
	}
	return &Error{Code: CodeInternal, Message: "Something went wrong.", Err: err}
}

// CodeOf returns the code of a translated error, or CodeInternal.
func CodeOf(err error) Code {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Code
	}
	return CodeInternal
}

// detail turns "invalid query: unknown sort field" into "Invalid query: unknown sort field."
func detail(err, sentinel error) string {
	msg := err.Error()
	if !strings.HasPrefix(msg, sentinel.Error()) {
		msg = fmt.Sprintf("%s: %s", sentinel.Error(), msg)
	}
	msg = strings.ToUpper(msg[:1]) + msg[1:]
	if !strings.HasSuffix(msg, ".") {
		msg += "."
	}
	return msg
}
