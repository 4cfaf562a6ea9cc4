package verify

import (
	"strings"
	"time"
)

// Status is the terminal state of one endpoint's verification.
type Status string

const (
	StatusSuccess      Status = "success"
	StatusHTTPError    Status = "http-error"
	StatusNetworkError Status = "network-error"
	StatusAuthRequired Status = "auth-required"
	StatusSkipped      Status = "skipped"
)

// summaryLimit caps the retained response excerpt.
const summaryLimit = 200

// Outcome is the verification result for one endpoint descriptor.
type Outcome struct {
	Method       string        `json:"method"`
	PathTemplate string        `json:"path_template"`
	Category     string        `json:"category"`
	Priority     int           `json:"priority"`
	Status       Status        `json:"status"`
	StatusCode   int           `json:"status_code,omitempty"`
	Attempts     int           `json:"attempts"`
	Elapsed      time.Duration `json:"elapsed_ns"`
	// Summary is a truncated excerpt of the response body with its
	// content type, enough to eyeball what the endpoint returned.
	Summary string `json:"summary,omitempty"`
	// Error carries the failure message for non-success outcomes.
	Error string `json:"error,omitempty"`
}

// Succeeded reports whether the endpoint verified cleanly.
func (o *Outcome) Succeeded() bool {
	return o.Status == StatusSuccess
}

// summarize builds the response excerpt stored in an outcome.
func summarize(contentType, body string) string {
	body = strings.TrimSpace(body)
	if len(body) > summaryLimit {
		body = body[:summaryLimit] + "..."
	}
	if contentType == "" {
		return body
	}
	if body == "" {
		return contentType
	}
	return contentType + ": " + body
}
