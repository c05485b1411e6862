// Package common provides shared HTTP utility functions for API handlers.
package common

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/catalog-cache/internal/catalog"
)

// GetAndValidateURLParam extracts, decodes, and validates a URL parameter from the request.
// The value must not be empty and must not contain whitespace.
func GetAndValidateURLParam(r *http.Request, paramName string) (string, error) {
	encodedValue := chi.URLParam(r, paramName)

	decoded, err := url.PathUnescape(encodedValue)
	if err != nil {
		return "", invalid("invalid URL encoding in %s", paramName)
	}

	if strings.TrimSpace(decoded) == "" {
		return "", invalid("%s cannot be empty", paramName)
	}

	if strings.ContainsAny(decoded, " \t\n\r") {
		return "", invalid("%s cannot contain whitespace", paramName)
	}

	return decoded, nil
}

// QueryInt parses an optional integer query parameter. ok is false when it is absent.
func QueryInt(r *http.Request, name string) (n int, ok bool, err error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, false, nil
	}
	n, err = strconv.Atoi(raw)
	if err != nil {
		return 0, false, invalid("%s must be an integer, got %q", name, raw)
	}
	return n, true, nil
}

// QueryFloat parses an optional number query parameter.
func QueryFloat(r *http.Request, name string) (f float64, ok bool, err error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, false, nil
	}
	f, err = strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, invalid("%s must be a number, got %q", name, raw)
	}
	return f, true, nil
}

// QueryBool parses an optional boolean query parameter, defaulting to false.
func QueryBool(r *http.Request, name string) (bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, invalid("%s must be true or false, got %q", name, raw)
	}
	return b, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", catalog.ErrInvalidQuery, fmt.Sprintf(format, args...))
}
