package ai

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/cohere-ai/cohere-go/v2/core"
)

type Kind int

const (
	// Transient errors are expected to resolve on a later run: network
	// blips, timeouts, rate limits. The posting stays in the queue.
	Transient Kind = iota
	// Permanent errors will recur on retry: the model replied, but the
	// reply is not valid structured data. The posting is quarantined.
	Permanent
)

// Error tags a model-call failure with the retry policy it implies.
// RawOutput carries the verbatim model reply for permanent failures so the
// record can be diagnosed offline.
type Error struct {
	Kind       Kind
	RetryAfter time.Duration
	RawOutput  string
	Err        error
}

func (e *Error) Error() string {
	kind := "transient"
	if e.Kind == Permanent {
		kind = "permanent"
	}
	return fmt.Sprintf("ai: %s: %v", kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func IsTransient(err error) bool {
	var aiErr *Error
	return errors.As(err, &aiErr) && aiErr.Kind == Transient
}

func IsPermanent(err error) bool {
	var aiErr *Error
	return errors.As(err, &aiErr) && aiErr.Kind == Permanent
}

var retrySecondsExpr = regexp.MustCompile(`retry.{0,20}?(\d+)\s*s`)

// classifyErr maps transport-level failures. Everything the API or the
// network throws at us is transient; only unparseable replies (handled by the
// callers) are permanent.
func classifyErr(err error) *Error {
	out := &Error{Kind: Transient, Err: err}

	var apiErr *core.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
		if m := retrySecondsExpr.FindStringSubmatch(err.Error()); m != nil {
			if secs, convErr := strconv.Atoi(m[1]); convErr == nil {
				out.RetryAfter = time.Duration(secs) * time.Second
			}
		}
	}

	return out
}
