package transport

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

// Kind classifies a transport failure.
type Kind string

const (
	KindTimeout Kind = "timeout"
	KindNetwork Kind = "network"
	KindHTTP    Kind = "http"
)

// Sentinel errors for HTTP statuses callers handle semantically.
var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrForbidden        = errors.New("forbidden")
	ErrNotFound         = errors.New("not found")
	ErrMethodNotAllowed = errors.New("method not allowed")
)

// Error is returned for every failed transport operation.
type Error struct {
	Kind       Kind
	Detail     string
	StatusCode int // set for KindHTTP
	Err        error
}

func (e *Error) Error() string {
	if e.Kind == KindHTTP {
		if e.Detail != "" {
			return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Detail)
		}
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// Unwrap maps HTTP statuses onto the package sentinels.
func (e *Error) Unwrap() error {
	if e.Kind != KindHTTP {
		return e.Err
	}
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusMethodNotAllowed:
		return ErrMethodNotAllowed
	}
	return nil
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindHTTP {
		return e.StatusCode
	}
	return 0
}

// IsKind reports whether err is a transport error of the given kind.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

func urlQueryEscape(s string) string {
	return url.QueryEscape(s)
}
