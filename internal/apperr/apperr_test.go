package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindCodesAreStable(t *testing.T) {
	tests := []struct {
		kind   Kind
		code   string
		status int
	}{
		{KindInvalidInput, "400", http.StatusBadRequest},
		{KindNotFound, "404", http.StatusNotFound},
		{KindUpstreamUnavailable, "2000", http.StatusBadGateway},
		{KindNoStreamAvailable, "2001", http.StatusUnprocessableEntity},
		{KindNoLanguageData, "2002", http.StatusUnprocessableEntity},
		{KindParseFailure, "2003", http.StatusUnprocessableEntity},
		{KindUnsupportedLanguage, "2004", http.StatusUnprocessableEntity},
		{KindStoreInconsistency, "2005", http.StatusInternalServerError},
		{KindIncomplete, "2006", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			if got := tt.kind.Code(); got != tt.code {
				t.Errorf("Code() = %q, want %q", got, tt.code)
			}
			if got := tt.kind.HTTPStatus(); got != tt.status {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.status)
			}
		})
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(KindUpstreamUnavailable, cause, "")
	wrapped := fmt.Errorf("submit: %w", err)

	if !errors.Is(wrapped, cause) {
		t.Error("expected wrapped error to match cause")
	}
	if KindOf(wrapped) != KindUpstreamUnavailable {
		t.Errorf("KindOf() = %v, want %v", KindOf(wrapped), KindUpstreamUnavailable)
	}
	if !Is(wrapped, KindUpstreamUnavailable) {
		t.Error("Is() = false, want true")
	}
}

func TestWrapNil(t *testing.T) {
	if err := Wrap(KindInternal, nil, "x"); err != nil {
		t.Errorf("Wrap(nil) = %v, want nil", err)
	}
}

func TestPublicHidesCause(t *testing.T) {
	err := Public(errors.New("SELECT * FROM videos failed"))
	if err.Kind != KindInternal {
		t.Errorf("Kind = %v, want internal", err.Kind)
	}
	if err.PublicMessage() != "internal error" {
		t.Errorf("PublicMessage() = %q", err.PublicMessage())
	}
}
