package hubspot

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"

	"github.com/johnwards/hubsync/internal/apperr"
)

// Error categories the client and its test server care about.
const (
	CategoryValidationError = "VALIDATION_ERROR"
	CategoryObjectNotFound  = "OBJECT_NOT_FOUND"
	CategoryConflict        = "CONFLICT"
	CategoryRateLimits      = "RATE_LIMITS"
)

// ErrNotFound matches any 404 response.
var ErrNotFound = errors.New("object not found")

// APIError is a HubSpot error response body plus the HTTP status it came
// with.
type APIError struct {
	StatusCode    int           `json:"-"`
	Status        string        `json:"status"`
	Message       string        `json:"message"`
	CorrelationID string        `json:"correlationId"`
	Category      string        `json:"category"`
	Errors        []ErrorDetail `json:"errors,omitempty"`
}

// ErrorDetail is one entry of a batch or validation error. Context carries
// the offending values, e.g. {"id": ["12"]}.
type ErrorDetail struct {
	Message string              `json:"message"`
	Code    string              `json:"code,omitempty"`
	Context map[string][]string `json:"context,omitempty"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Category != "" {
		return fmt.Sprintf("hubspot %d %s: %s", e.StatusCode, e.Category, msg)
	}
	return fmt.Sprintf("hubspot %d: %s", e.StatusCode, msg)
}

// Is makes a 404 APIError match ErrNotFound.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

func decodeAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, apiErr); err != nil {
			apiErr.Message = strings.TrimSpace(string(body))
		}
	}
	apiErr.StatusCode = status
	return apiErr
}

// isClientError reports whether err is a 4xx response that says nothing about
// the health of the API. Rate limiting counts as unhealthy.
func isClientError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 && apiErr.StatusCode != http.StatusTooManyRequests
}

var existingIDPattern = regexp.MustCompile(`Existing ID:\s*(\d+)`)

// ExistingID extracts the colliding record id from a conflict message.
func ExistingID(message string) string {
	if m := existingIDPattern.FindStringSubmatch(message); m != nil {
		return m[1]
	}
	return ""
}

// isConflict checks the status and category first and falls back to the
// message text.
func isConflict(apiErr *APIError) bool {
	if apiErr.StatusCode == http.StatusConflict || apiErr.Category == CategoryConflict {
		return true
	}
	return strings.Contains(strings.ToLower(apiErr.Message), "already exists")
}

// classify converts a raw request error into the apperr taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if isConflict(apiErr) {
			return &apperr.ConflictError{Message: apiErr.Message, ExistingID: ExistingID(apiErr.Message)}
		}
		return &apperr.TransportError{Op: op, StatusCode: apiErr.StatusCode, Err: apiErr}
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &apperr.TransportError{Op: op, Err: fmt.Errorf("hubspot unavailable: %w", err)}
	}
	return &apperr.TransportError{Op: op, Err: err}
}
