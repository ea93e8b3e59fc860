package providers

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ProviderError is returned when an AI backend answers with a non-success
// status or an unusable payload.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	// RetryAfter is the parsed retry-after header, zero when absent.
	RetryAfter time.Duration
}

func (e *ProviderError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %s", e.Provider, e.Message)
	}
	return fmt.Sprintf("%s: API returned non-200 status: %d, body: %s", e.Provider, e.StatusCode, e.Message)
}

// HTTPStatus returns the upstream status code.
func (e *ProviderError) HTTPStatus() int {
	return e.StatusCode
}

// RetryHint returns the delay the upstream asked for.
func (e *ProviderError) RetryHint() time.Duration {
	return e.RetryAfter
}

// newStatusError builds a ProviderError from a non-2xx response and drains its body.
func newStatusError(provider string, resp *http.Response) *ProviderError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &ProviderError{
		Provider:   provider,
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(body)),
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
	}
}

// parseRetryAfter reads a retry-after header given in whole seconds.
func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}
