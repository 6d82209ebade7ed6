package service

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/handylife-debug/webwaka-main-sub008/breaker"
	"github.com/handylife-debug/webwaka-main-sub008/errors"
)

const maxBodyBytes = 16 << 20

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Field string `json:"field,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", "error", err)
	}
}

func (s *Server) writeJSONError(w http.ResponseWriter, message string, status int) {
	s.writeJSON(w, status, errorBody{Error: message})
}

// writeError maps err onto a status code and an error body.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := classify(err)
	if su := (*errors.ServiceUnavailableError)(nil); stderrors.As(err, &su) && su.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(su.RetryAfter.Seconds()))))
	}
	if status >= http.StatusInternalServerError {
		s.logger.Warn("Request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	s.writeJSON(w, status, body)
}

// classify picks the response status. A failed tissue step is reported as
// a gateway error even when the step's own error is a lookup or validation
// failure, since the request itself was well formed.
func classify(err error) (int, errorBody) {
	body := errorBody{Error: err.Error()}

	var (
		ve   *errors.ValidationError
		nf   *errors.NotFoundError
		step *errors.CompositionStepError
	)
	switch {
	case stderrors.As(err, &step):
		body.Kind = "step_failed"
		switch inner := step.Err; {
		case errors.IsServiceUnavailable(inner):
			return http.StatusServiceUnavailable, body
		case stderrors.Is(inner, breaker.ErrTimeout):
			return http.StatusGatewayTimeout, body
		default:
			return http.StatusBadGateway, body
		}
	case stderrors.As(err, &ve):
		body.Kind, body.Field = "validation", ve.Field
		return http.StatusBadRequest, body
	case stderrors.As(err, &nf):
		body.Kind = nf.Kind
		return http.StatusNotFound, body
	case errors.IsServiceUnavailable(err):
		body.Kind = "circuit_open"
		return http.StatusServiceUnavailable, body
	case errors.IsStorageUnavailable(err):
		body.Kind = "storage"
		return http.StatusServiceUnavailable, body
	case stderrors.Is(err, breaker.ErrTimeout):
		body.Kind = "timeout"
		return http.StatusGatewayTimeout, body
	case errors.IsRemoteCall(err):
		body.Kind = "remote"
		return http.StatusBadGateway, body
	case errors.IsInvalid(err):
		body.Kind = "validation"
		return http.StatusBadRequest, body
	}
	return http.StatusInternalServerError, body
}

// decode reads a JSON request body into v. An empty body leaves v untouched
// when allowEmpty is set.
func decode(r *http.Request, v any, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if allowEmpty && stderrors.Is(err, io.EOF) {
			return nil
		}
		return errors.NewValidationError("request", "body", fmt.Sprintf("invalid JSON: %v", err))
	}
	return nil
}
