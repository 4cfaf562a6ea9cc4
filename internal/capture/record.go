// Package capture parses raw browser network captures into request records.
package capture

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// recordNamespace is the UUID namespace for deterministic record IDs.
// Parsing the same capture twice must yield identical records.
var recordNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// BodyKind tags the shape of a request or response body.
type BodyKind int

const (
	// BodyEmpty means no body was captured.
	BodyEmpty BodyKind = iota
	// BodyJSON means the body parsed as a JSON document.
	BodyJSON
	// BodyForm means the body is urlencoded form data.
	BodyForm
	// BodyText means the body is opaque text.
	BodyText
)

// String returns the string representation of BodyKind.
func (k BodyKind) String() string {
	switch k {
	case BodyJSON:
		return "json"
	case BodyForm:
		return "form"
	case BodyText:
		return "text"
	default:
		return "empty"
	}
}

// Body is a tagged variant for captured bodies, resolved once at parse time.
type Body struct {
	Kind BodyKind `json:"kind"`
	Raw  string   `json:"raw,omitempty"`
}

// ClassifyBody resolves the body variant for raw content.
func ClassifyBody(raw, contentType string) Body {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Body{Kind: BodyEmpty}
	}

	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "application/json"):
		return Body{Kind: BodyJSON, Raw: raw}
	case strings.Contains(ct, "x-www-form-urlencoded"):
		return Body{Kind: BodyForm, Raw: raw}
	}

	// No usable content type, sniff the content itself.
	if json.Valid([]byte(raw)) && (strings.HasPrefix(raw, "{") || strings.HasPrefix(raw, "[")) {
		return Body{Kind: BodyJSON, Raw: raw}
	}
	if looksLikeForm(raw) {
		return Body{Kind: BodyForm, Raw: raw}
	}
	return Body{Kind: BodyText, Raw: raw}
}

// looksLikeForm reports whether raw resembles urlencoded form data.
func looksLikeForm(raw string) bool {
	if strings.ContainsAny(raw, " \n{}") {
		return false
	}
	vals, err := url.ParseQuery(raw)
	return err == nil && len(vals) > 0 && strings.Contains(raw, "=")
}

// FieldNames returns the top-level field names of a JSON or form body.
// Used by the classifier to spot credential-shaped fields.
func (b Body) FieldNames() []string {
	switch b.Kind {
	case BodyJSON:
		var obj map[string]json.RawMessage
		if err := json.Unmarshal([]byte(b.Raw), &obj); err != nil {
			return nil
		}
		names := make([]string, 0, len(obj))
		for k := range obj {
			names = append(names, k)
		}
		return names
	case BodyForm:
		vals, err := url.ParseQuery(b.Raw)
		if err != nil {
			return nil
		}
		names := make([]string, 0, len(vals))
		for k := range vals {
			names = append(names, k)
		}
		return names
	default:
		return nil
	}
}

// Header is one captured header line. Order and duplicates are preserved.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// RawRequestRecord is an immutable capture of one observed network call.
// Created once during parsing, never mutated.
type RawRequestRecord struct {
	ID         string            `json:"id"`
	Seq        int               `json:"seq"`
	Method     string            `json:"method"`
	URL        string            `json:"url"`
	Headers    []Header          `json:"headers,omitempty"`
	Cookies    map[string]string `json:"cookies,omitempty"`
	Body       Body              `json:"body"`
	CapturedAt time.Time         `json:"captured_at,omitempty"`
}

// newRecordID derives a deterministic ID from the record's identity.
func newRecordID(seq int, method, rawURL string) string {
	return uuid.NewSHA1(recordNamespace, []byte(method+" "+rawURL+" #"+strconv.Itoa(seq))).String()
}

// HeaderValues returns all values for a header name, case-insensitively.
func (r *RawRequestRecord) HeaderValues(name string) []string {
	var vals []string
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			vals = append(vals, h.Value)
		}
	}
	return vals
}

// HeaderValue returns the first value for a header name, or "".
func (r *RawRequestRecord) HeaderValue(name string) string {
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// Path returns the URL path of the record, or "" if the URL does not parse.
func (r *RawRequestRecord) Path() string {
	u, err := url.Parse(r.URL)
	if err != nil {
		return ""
	}
	return u.Path
}
