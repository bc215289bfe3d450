// Tandem - Event Co-occurrence Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tandem

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/tandem/internal/collector"
	"github.com/tomtom215/tandem/internal/eventprocessor"
	"github.com/tomtom215/tandem/internal/logging"
	"github.com/tomtom215/tandem/internal/models"
	"github.com/tomtom215/tandem/internal/recommend"
	"github.com/tomtom215/tandem/internal/validation"
)

// Error codes returned in APIError.Code.
const (
	CodeValidation        = validation.CodeValidation
	CodeBadRequest        = "BAD_REQUEST"
	CodeStoreUnavailable  = "STORE_UNAVAILABLE"
	CodeStreamUnavailable = "STREAM_UNAVAILABLE"
	CodeRateLimited       = "RATE_LIMITED"
	CodeNotReady          = "NOT_READY"
	CodeInternal          = "INTERNAL_ERROR"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// sanitizeLogValue escapes control characters so request data cannot forge log lines.
func sanitizeLogValue(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			fmt.Fprintf(&b, "\\x%02x", r)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func respondJSON(w http.ResponseWriter, status int, response *models.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")

	data, err := json.Marshal(response)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

func respondData(w http.ResponseWriter, r *http.Request, status int, data interface{}, count int, start time.Time) {
	respondJSON(w, status, &models.APIResponse{
		Status: "success",
		Data:   data,
		Metadata: models.Metadata{
			Timestamp:   time.Now().UTC(),
			QueryTimeMS: time.Since(start).Milliseconds(),
			Count:       count,
			RequestID:   logging.RequestIDFromContext(r.Context()),
		},
	})
}

// respondError writes the error envelope. err is logged, never returned to
// the client.
func respondError(w http.ResponseWriter, r *http.Request, status int, apiErr *models.APIError, err error) {
	if err != nil {
		event := logging.Ctx(r.Context()).Warn()
		if status >= http.StatusInternalServerError {
			event = logging.Ctx(r.Context()).Error()
		}
		event.Str("code", apiErr.Code).Str("error", sanitizeLogValue(err.Error())).Msg("API error")
	}

	respondJSON(w, status, &models.APIResponse{
		Status: "error",
		Metadata: models.Metadata{
			Timestamp: time.Now().UTC(),
			RequestID: logging.RequestIDFromContext(r.Context()),
		},
		Error: apiErr,
	})
}

// respondServiceError maps a domain error to a status and code.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validation.RequestValidationError
	switch {
	case errors.As(err, &verr):
		respondError(w, r, http.StatusBadRequest, verr.ToAPIError(), nil)
	case errors.Is(err, collector.ErrInvalidAction):
		respondError(w, r, http.StatusBadRequest, &models.APIError{Code: CodeValidation, Message: err.Error()}, nil)
	case errors.Is(err, recommend.ErrStoreUnavailable):
		respondError(w, r, http.StatusServiceUnavailable, &models.APIError{Code: CodeStoreUnavailable, Message: "Recommendation store unavailable"}, err)
	case errors.Is(err, eventprocessor.ErrTransientStream), errors.Is(err, eventprocessor.ErrPublisherClosed),
		errors.Is(err, collector.ErrBufferUnavailable):
		respondError(w, r, http.StatusServiceUnavailable, &models.APIError{Code: CodeStreamUnavailable, Message: "Action stream unavailable"}, err)
	case errors.Is(err, context.Canceled):
		// Client went away; nobody reads the response.
	default:
		respondError(w, r, http.StatusInternalServerError, &models.APIError{Code: CodeInternal, Message: "Internal server error"}, err)
	}
}

// validateRequest validates v and returns the error envelope on failure.
func validateRequest(v interface{}) *models.APIError {
	if verr := validation.ValidateStruct(v); verr != nil {
		return verr.ToAPIError()
	}
	return nil
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) *models.APIError {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &models.APIError{Code: CodeBadRequest, Message: "Invalid JSON body"}
	}
	return nil
}

// parseInt64 parses a required integer path or query value.
func parseInt64(name, value string) (int64, *models.APIError) {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, &models.APIError{
			Code:    CodeValidation,
			Message: fmt.Sprintf("%s must be an integer", name),
			Details: map[string]interface{}{"field": name},
		}
	}
	return n, nil
}

// getIntParam returns an integer query parameter, or defaultValue when absent.
func getIntParam(r *http.Request, key string, defaultValue int) (int, *models.APIError) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, &models.APIError{
			Code:    CodeValidation,
			Message: fmt.Sprintf("%s must be an integer", key),
			Details: map[string]interface{}{"field": key},
		}
	}
	return n, nil
}
