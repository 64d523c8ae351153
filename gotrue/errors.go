package gotrue

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// APIError is a non-2xx answer from the provider.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Code != "" {
		return fmt.Sprintf("gotrue: %d %s: %s", e.StatusCode, e.Code, msg)
	}
	return fmt.Sprintf("gotrue: %d: %s", e.StatusCode, msg)
}

// IsUnauthorized reports whether err is a provider 401/403.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden
}

// IsClientError reports whether the provider rejected the request itself
// (4xx) rather than failing.
func IsClientError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode >= 400 && apiErr.StatusCode < 500
}

// errorBody covers the error shapes the provider has used across versions.
type errorBody struct {
	Code             any    `json:"code"`
	ErrorCode        string `json:"error_code"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

func newAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var body errorBody
	if err := json.Unmarshal(data, &body); err != nil {
		apiErr.Message = strings.TrimSpace(string(data))
		return apiErr
	}
	apiErr.Code = firstNonEmpty(body.ErrorCode, body.Error)
	if s, ok := body.Code.(string); ok && apiErr.Code == "" {
		apiErr.Code = s
	}
	apiErr.Message = firstNonEmpty(body.Msg, body.Message, body.ErrorDescription)
	return apiErr
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
