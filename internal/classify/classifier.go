// Package classify assigns categories and verification priorities to endpoints.
package classify

import (
	"net/url"
	"sort"
	"strings"

	"github.com/Md-Abu-Bakkar/Universal-API-Testing/internal/endpoint"
)

// Priority bands. Auth endpoints must run first to establish the session,
// write endpoints last because they may have side effects. In-band signal
// bumps stay below the band width so categories never overlap.
const (
	basePriorityAuth    = 300
	basePriorityRead    = 200
	basePriorityUnknown = 150
	basePriorityWrite   = 100
)

var authKeywords = []string{
	"login", "signin", "sign-in", "signup", "sign-up", "auth",
	"authenticate", "oauth", "token", "session",
}

var writeKeywords = []string{
	"submit", "update", "delete", "remove", "create", "upload",
	"send", "modify", "register",
}

var readKeywords = []string{
	"list", "fetch", "data", "search", "query", "load", "info",
}

// credentialFields are body field names that mark a login-shaped request.
var credentialFields = []string{
	"password", "passwd", "pass", "pwd", "otp", "passcode",
}

// interestKeywords bump priority within a band (never across bands).
var interestKeywords = []string{
	"sms", "otp", "message", "api", "rest", "graphql",
}

// Classifier assigns a category and priority to each descriptor.
// Classification is a pure function of the descriptor: no I/O,
// deterministic, and idempotent.
type Classifier struct{}

// NewClassifier creates a classifier.
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify enriches every descriptor in place with category and priority,
// then returns the set ordered for verification: priority descending,
// first-seen order within equal priority.
func (c *Classifier) Classify(descriptors []*endpoint.Descriptor) []*endpoint.Descriptor {
	for _, d := range descriptors {
		d.Category = c.Categorize(d)
		d.Priority = c.Priority(d)
	}

	ordered := make([]*endpoint.Descriptor, len(descriptors))
	copy(ordered, descriptors)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority > ordered[j].Priority
		}
		return ordered[i].FirstSeen < ordered[j].FirstSeen
	})
	return ordered
}

// Categorize derives the category from path keywords, method, and
// credential-shaped body fields.
func (c *Classifier) Categorize(d *endpoint.Descriptor) endpoint.Category {
	path := templatePath(d.PathTemplate)

	if hasCredentialBody(d) || containsAny(path, authKeywords) {
		return endpoint.CategoryAuth
	}
	if containsAny(path, writeKeywords) {
		return endpoint.CategoryWrite
	}
	if containsAny(path, readKeywords) {
		return endpoint.CategoryRead
	}

	switch d.Method {
	case "GET", "HEAD", "OPTIONS":
		return endpoint.CategoryRead
	case "POST", "PUT", "PATCH", "DELETE":
		return endpoint.CategoryWrite
	default:
		return endpoint.CategoryUnknown
	}
}

// Priority computes the verification priority for a categorized descriptor.
// Auth scores strictly above every other band, write strictly below.
func (c *Classifier) Priority(d *endpoint.Descriptor) int {
	var base int
	switch d.Category {
	case endpoint.CategoryAuth:
		base = basePriorityAuth
	case endpoint.CategoryRead:
		base = basePriorityRead
	case endpoint.CategoryWrite:
		base = basePriorityWrite
	default:
		base = basePriorityUnknown
	}

	// Signal bumps inside the band: capped well under the 50-point
	// band separation.
	bump := 0
	path := templatePath(d.PathTemplate)
	for _, kw := range interestKeywords {
		if strings.Contains(path, kw) {
			bump += 10
			if bump >= 40 {
				break
			}
		}
	}

	return base + bump
}

// templatePath extracts the lowercase path portion of a template.
func templatePath(template string) string {
	u, err := url.Parse(template)
	if err != nil {
		return strings.ToLower(template)
	}
	return strings.ToLower(u.Path)
}

// hasCredentialBody reports whether the body carries credential-shaped fields.
func hasCredentialBody(d *endpoint.Descriptor) bool {
	for _, name := range d.Body.FieldNames() {
		lower := strings.ToLower(name)
		for _, cred := range credentialFields {
			if lower == cred || strings.Contains(lower, "password") {
				return true
			}
		}
	}
	return false
}

// containsAny reports whether s contains any of the keywords as a
// path-ish token.
func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
