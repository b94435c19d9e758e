package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"storefront/internal/model"
)

// errorBody covers the error shapes the storefront API has used:
// {"message": "..."}, {"error": "..."} and {"error": {"message": "..."}}.
type errorBody struct {
	Message string          `json:"message"`
	Error   json.RawMessage `json:"error"`
}

// errorMessage extracts the server's message, or "" if there is none.
func errorMessage(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return ""
	}
	if msg := strings.TrimSpace(eb.Message); msg != "" {
		return msg
	}
	if len(eb.Error) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(eb.Error, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var nested struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(eb.Error, &nested); err == nil {
		return strings.TrimSpace(nested.Message)
	}
	return ""
}

// parseErrorResponse converts a non-2xx response into a model.APIError.
// The server's message is used when present, otherwise a status-derived one.
func parseErrorResponse(statusCode int, body []byte) error {
	msg := errorMessage(body)
	if msg == "" {
		msg = model.StatusMessage(statusCode)
	}

	var apiErr *model.APIError
	switch {
	case statusCode == http.StatusUnauthorized, statusCode == http.StatusForbidden:
		apiErr = model.NewUnauthorizedError(msg)
	case statusCode == http.StatusNotFound:
		apiErr = model.NewNotFoundError("resource")
		apiErr.Message = msg
	case statusCode == http.StatusTooManyRequests:
		apiErr = model.NewRateLimitError("storefront API")
		apiErr.Message = msg
	case statusCode >= 500:
		apiErr = model.NewUpstreamError("storefront API", fmt.Errorf("status %d", statusCode))
		apiErr.Message = msg
	default:
		apiErr = model.NewRejectedError(statusCode, msg)
	}
	apiErr.StatusCode = statusCode
	return apiErr
}
