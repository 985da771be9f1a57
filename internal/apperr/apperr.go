// Package apperr defines the error kinds surfaced to API and chat callers.
// Codes are stable on the wire; causes stay internal.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for callers
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidInput
	KindUnauthorized
	KindNotFound
	KindUpstreamUnavailable
	KindNoStreamAvailable
	KindNoLanguageData
	KindParseFailure
	KindUnsupportedLanguage
	KindStoreInconsistency
	KindIncomplete
	KindStoreFailure
)

var kindInfo = map[Kind]struct {
	code    string
	status  int
	message string
}{
	KindInternal:            {"500", http.StatusInternalServerError, "internal error"},
	KindInvalidInput:        {"400", http.StatusBadRequest, "invalid input"},
	KindUnauthorized:        {"401", http.StatusUnauthorized, "unauthorized"},
	KindNotFound:            {"404", http.StatusNotFound, "not found"},
	KindUpstreamUnavailable: {"2000", http.StatusBadGateway, "talk page could not be fetched"},
	KindNoStreamAvailable:   {"2001", http.StatusUnprocessableEntity, "talk has no playable stream"},
	KindNoLanguageData:      {"2002", http.StatusUnprocessableEntity, "talk has no language data"},
	KindParseFailure:        {"2003", http.StatusUnprocessableEntity, "talk page could not be parsed"},
	KindUnsupportedLanguage: {"2004", http.StatusUnprocessableEntity, "talk is not available in your language"},
	KindStoreInconsistency:  {"2005", http.StatusInternalServerError, "catalog references missing talks"},
	KindIncomplete:          {"2006", http.StatusServiceUnavailable, "talk saved but not linked, resubmit to finish"},
	KindStoreFailure:        {"500", http.StatusInternalServerError, "storage error"},
}

// Code returns the stable wire code for the kind
func (k Kind) Code() string {
	return kindInfo[k].code
}

// HTTPStatus maps the kind to an HTTP status code
func (k Kind) HTTPStatus() int {
	if info, ok := kindInfo[k]; ok {
		return info.status
	}
	return http.StatusInternalServerError
}

// String returns a short name used in logs and metric labels
func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	case KindUpstreamUnavailable:
		return "upstream_unavailable"
	case KindNoStreamAvailable:
		return "no_stream_available"
	case KindNoLanguageData:
		return "no_language_data"
	case KindParseFailure:
		return "parse_failure"
	case KindUnsupportedLanguage:
		return "unsupported_language"
	case KindStoreInconsistency:
		return "store_inconsistency"
	case KindIncomplete:
		return "incomplete"
	case KindStoreFailure:
		return "store_failure"
	default:
		return "internal"
	}
}

// Error is a classified error. Message is safe to show to callers
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = kindInfo[e.Kind].message
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// PublicMessage returns the message without the wrapped cause
func (e *Error) PublicMessage() string {
	if e.Message != "" {
		return e.Message
	}
	return kindInfo[e.Kind].message
}

// New creates an error of the given kind with a public message
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap classifies err under kind. A nil err yields nil
func Wrap(kind Kind, err error, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf reports the kind of err, KindInternal when unclassified
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// Public converts any error into a classified one for the wire
func Public(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindInternal, Err: err}
}
