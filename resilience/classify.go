package resilience

import (
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"storybook/fetch"
)

// Class is the retry category of a provider failure.
type Class int

const (
	// Fatal errors are deterministic and never retried.
	Fatal Class = iota
	// RateLimited errors are transient capacity errors.
	RateLimited
	// Quota errors are rate limits reported as an exhausted quota.
	Quota
)

func (c Class) String() string {
	switch c {
	case RateLimited:
		return "rate_limited"
	case Quota:
		return "quota"
	default:
		return "fatal"
	}
}

// Retryable reports whether the class is worth another attempt.
func (c Class) Retryable() bool {
	return c == RateLimited || c == Quota
}

// QuotaExceededMessage is shown to users when a capacity error survives retries.
const QuotaExceededMessage = "API quota exceeded. Please try again later or upgrade your plan."

// Classify maps an upstream status code and error message to a Class.
func Classify(status int, message string) Class {
	msg := strings.ToLower(message)
	if strings.Contains(msg, "quota") {
		return Quota
	}
	if status == http.StatusTooManyRequests ||
		strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests") {
		return RateLimited
	}
	return Fatal
}

type statusCarrier interface {
	HTTPStatus() int
}

type hintCarrier interface {
	RetryHint() time.Duration
}

// ClassifyError classifies err, using its HTTP status when it carries one.
// Image download failures are always fatal: their text holds the image URL.
func ClassifyError(err error) Class {
	if err == nil {
		return Fatal
	}
	var fe *fetch.FetchError
	if errors.As(err, &fe) {
		return Fatal
	}
	status := 0
	var sc statusCarrier
	if errors.As(err, &sc) {
		status = sc.HTTPStatus()
	}
	return Classify(status, err.Error())
}

// UserMessage is the message recorded for a failed item.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if ClassifyError(err).Retryable() {
		return QuotaExceededMessage
	}
	msg := err.Error()
	if msg == "" {
		return "Unknown error"
	}
	return msg
}

var retryInMessage = regexp.MustCompile(`(?i)retry[^0-9]{0,24}?(\d+(?:\.\d+)?)\s*s(?:ec(?:ond)?s?)?\b`)

// RetryHint extracts a provider supplied delay: a parsed retry-after header
// first, then a "retry ... Ns" phrase in the message. Best effort.
func RetryHint(err error) (time.Duration, bool) {
	if err == nil {
		return 0, false
	}
	var hc hintCarrier
	if errors.As(err, &hc) {
		if d := hc.RetryHint(); d > 0 {
			return d, true
		}
	}
	m := retryInMessage.FindStringSubmatch(err.Error())
	if m == nil {
		return 0, false
	}
	secs, perr := strconv.ParseFloat(m[1], 64)
	if perr != nil || secs <= 0 {
		return 0, false
	}
	return time.Duration(secs * float64(time.Second)), true
}
