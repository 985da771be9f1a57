package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/user/tedshelf-go/internal/apperr"
)

// maxBodyBytes caps request bodies
const maxBodyBytes = 1 << 20

// envelope is the body of every API response. Warnings carry classified
// problems that did not fail the request.
type envelope struct {
	Success   bool        `json:"success"`
	Data      any         `json:"data,omitempty"`
	Error     *errorBody  `json:"error,omitempty"`
	Warnings  []errorBody `json:"warnings,omitempty"`
	RequestID string      `json:"requestId,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func respond(w http.ResponseWriter, r *http.Request, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data, RequestID: RequestID(r.Context())})
}

// respondWithWarnings writes a successful response carrying classified warnings
func respondWithWarnings(w http.ResponseWriter, r *http.Request, status int, data any, warnings ...error) {
	env := envelope{Success: true, Data: data, RequestID: RequestID(r.Context())}
	for _, werr := range warnings {
		e := apperr.Public(werr)
		env.Warnings = append(env.Warnings, errorBody{Code: e.Kind.Code(), Message: e.PublicMessage()})
	}
	writeJSON(w, status, env)
}

// respondError writes the classified error; causes stay in the log
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	e := apperr.Public(err)
	status := e.Kind.HTTPStatus()
	reqID := RequestID(r.Context())

	logEvent := log.Debug()
	if status >= http.StatusInternalServerError {
		logEvent = log.Error()
	}
	logEvent.Err(err).
		Str("requestId", reqID).
		Str("kind", e.Kind.String()).
		Str("path", r.URL.Path).
		Msg("Request failed")
	RecordError(e.Kind.String())

	writeJSON(w, status, envelope{
		Success:   false,
		Error:     &errorBody{Code: e.Kind.Code(), Message: e.PublicMessage()},
		RequestID: reqID,
	})
}

// requestIDMiddleware propagates X-Request-ID or assigns a new one
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// RequestID returns the id assigned to the request
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// requestLogger logs each request through zerolog
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		log.Debug().
			Str("requestId", RequestID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// recoverer turns panics into an Internal error envelope
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				respondError(w, r, fmt.Errorf("panic: %v", rec))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// newValidator reports fields by their json names
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// decodeJSON reads a single JSON object into dst and validates it
func (s *Server) decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.New(apperr.KindInvalidInput, "request body is required")
		}
		return apperr.Wrap(apperr.KindInvalidInput, err, "malformed JSON body")
	}
	if dec.More() {
		return apperr.New(apperr.KindInvalidInput, "request body must contain a single JSON object")
	}

	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return apperr.Wrap(apperr.KindInvalidInput, err,
				fmt.Sprintf("field %s failed validation %q", fe.Field(), fe.Tag()))
		}
		return apperr.Wrap(apperr.KindInvalidInput, err, "invalid request body")
	}
	return nil
}
