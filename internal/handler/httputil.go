package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/matthewbaird/dirconsole/internal/cascade"
	"github.com/matthewbaird/dirconsole/internal/filter"
	"github.com/matthewbaird/dirconsole/internal/record"
	"github.com/matthewbaird/dirconsole/internal/schema"
)

// logger is the package-level logger used by response helpers.
var logger logrus.FieldLogger = logrus.StandardLogger()

// SetLogger replaces the package-level logger.
func SetLogger(l logrus.FieldLogger) {
	logger = l
}

// validate checks decoded request bodies.
var validate = validator.New(validator.WithRequiredStructEnabled())

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

// writeJSON marshals v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithError(err).Warn("handler: encoding response")
	}
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: message, Code: code})
}

func writeErrorDetails(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, errorBody{Error: message, Code: code, Details: details})
}

// decodeJSON decodes the request body into v and validates its struct tags.
func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return validate.Struct(v)
}

// writeDecodeError reports a body that failed decoding or tag validation.
func writeDecodeError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		details := make([]string, len(verrs))
		for i, fe := range verrs {
			details[i] = fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag())
		}
		writeErrorDetails(w, http.StatusBadRequest, "VALIDATION_ERROR", "request validation failed", details)
		return
	}
	writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
}

// domainErrorToHTTP maps errors of the directory, record and cascading
// layers to HTTP responses.
func domainErrorToHTTP(w http.ResponseWriter, err error) {
	var (
		recordErr  *record.ValidationError
		cascadeErr *cascade.ValidationError
		configErr  schema.ConfigErrors
		schemaErr  *filter.SchemaError
		applyErr   *filter.ApplyError
		transport  *record.TransportError
	)
	switch {
	case errors.Is(err, record.ErrNotFound),
		errors.Is(err, schema.ErrUnknownDirectory),
		errors.Is(err, cascade.ErrUnknownField):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.As(err, &recordErr):
		writeErrorDetails(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), recordErr.Errors)
	case errors.As(err, &cascadeErr):
		writeErrorDetails(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), cascadeErr.Results)
	case errors.As(err, &configErr):
		writeErrorDetails(w, http.StatusBadRequest, "CONFIG_ERROR", err.Error(), []schema.ConfigProblem(configErr))
	case errors.As(err, &schemaErr):
		writeErrorDetails(w, http.StatusBadRequest, "SCHEMA_ERROR", err.Error(), schemaErr)
	case errors.As(err, &applyErr):
		writeError(w, http.StatusBadRequest, "APPLY_ERROR", err.Error())
	case errors.As(err, &transport):
		logger.WithError(err).WithField("retryable", transport.Retryable()).Error("handler: record store unavailable")
		writeErrorDetails(w, http.StatusServiceUnavailable, "TRANSPORT_ERROR", "record store unavailable",
			map[string]bool{"retryable": transport.Retryable()})
	default:
		logger.WithError(err).Error("handler: internal error")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

// queryInt parses an integer query parameter, returning def when absent or
// malformed.
func queryInt(r *http.Request, name string, def int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
