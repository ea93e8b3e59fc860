package resilience

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"storybook/fetch"
	"storybook/providers"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		status  int
		message string
		want    Class
	}{
		{429, "", RateLimited},
		{0, "Error 429 from upstream", RateLimited},
		{0, "Rate limit reached for gpt-4o-mini", RateLimited},
		{0, "Too Many Requests", RateLimited},
		{429, "You exceeded your current quota", Quota},
		{0, "Quota exceeded for metric", Quota},
		{400, "invalid image", Fatal},
		{500, "internal error", Fatal},
		{404, "model not found", Fatal},
	}
	for _, tt := range tests {
		if got := Classify(tt.status, tt.message); got != tt.want {
			t.Errorf("Classify(%d, %q) = %v, want %v", tt.status, tt.message, got, tt.want)
		}
	}
}

func TestClassifyErrorUnwraps(t *testing.T) {
	inner := &providers.ProviderError{Provider: "dalle", StatusCode: 429, Message: "busy"}
	err := fmt.Errorf("describe: %w", inner)
	if got := ClassifyError(err); got != RateLimited {
		t.Errorf("ClassifyError() = %v, want rate_limited", got)
	}
	if got := ClassifyError(nil); got != Fatal {
		t.Errorf("ClassifyError(nil) = %v, want fatal", got)
	}
}

func TestClassifyErrorFetchFailure(t *testing.T) {
	tests := []error{
		&fetch.FetchError{URL: "https://cdn.example/IMG_4290.jpg", StatusCode: 404, Reason: "Not Found"},
		&fetch.FetchError{URL: "https://cdn.example/quota.png", StatusCode: 404, Reason: "Not Found"},
		fmt.Errorf("subject image: %w", &fetch.FetchError{URL: "https://cdn.example/a.png", StatusCode: 429, Reason: "Too Many Requests"}),
	}
	for _, err := range tests {
		if got := ClassifyError(err); got != Fatal {
			t.Errorf("ClassifyError(%v) = %v, want fatal", err, got)
		}
		if got := UserMessage(err); got == QuotaExceededMessage {
			t.Errorf("UserMessage(%v) reported a quota error", err)
		}
	}
}

func TestUserMessage(t *testing.T) {
	if got := UserMessage(errors.New("quota exceeded")); got != QuotaExceededMessage {
		t.Errorf("UserMessage(quota) = %q", got)
	}
	if got := UserMessage(errors.New("failed to fetch subject image: 404")); got != "failed to fetch subject image: 404" {
		t.Errorf("UserMessage(generic) = %q", got)
	}
}

func TestRetryHint(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		want   time.Duration
		wantOK bool
	}{
		{"header", &providers.ProviderError{RetryAfter: 2 * time.Second}, 2 * time.Second, true},
		{"message seconds", errors.New("Please retry in 39.5s."), 39500 * time.Millisecond, true},
		{"message words", errors.New("retry after 12 seconds"), 12 * time.Second, true},
		{"json detail", errors.New(`{"retryDelay":"20s"}`), 20 * time.Second, true},
		{"none", errors.New("quota exceeded"), 0, false},
		{"nil", nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := RetryHint(tt.err)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("RetryHint() = %v, %v; want %v, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
