package endpoint

import (
	"testing"

	"github.com/Md-Abu-Bakkar/Universal-API-Testing/internal/capture"
)

func rec(seq int, method, url string) capture.RawRequestRecord {
	return capture.RawRequestRecord{
		ID:     "rec-" + method + "-" + url,
		Seq:    seq,
		Method: method,
		URL:    url,
	}
}

func TestTemplate(t *testing.T) {
	n := NewNormalizer(DefaultVolatileConfig(), nil)

	tests := []struct {
		name string
		url  string
		want string
	}{
		{
			name: "numeric segment",
			url:  "https://api.example.com/user/12345/profile",
			want: "https://api.example.com/user/{id}/profile",
		},
		{
			name: "uuid segment",
			url:  "https://api.example.com/orders/550e8400-e29b-41d4-a716-446655440000",
			want: "https://api.example.com/orders/{id}",
		},
		{
			name: "hex token segment",
			url:  "https://api.example.com/session/deadbeefdeadbeef01",
			want: "https://api.example.com/session/{id}",
		},
		{
			name: "query dropped",
			url:  "https://api.example.com/search?q=hello&page=2",
			want: "https://api.example.com/search",
		},
		{
			name: "stable segments untouched",
			url:  "https://api.example.com/v1/users/list",
			want: "https://api.example.com/v1/users/list",
		},
		{
			name: "root path",
			url:  "https://api.example.com/",
			want: "https://api.example.com/",
		},
		{
			name: "unparseable returned as-is",
			url:  "://not-a-url",
			want: "://not-a-url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := n.Template(tt.url); got != tt.want {
				t.Errorf("Template(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestNormalizeCollapsesVolatileSegments(t *testing.T) {
	cap := &capture.Capture{Records: []capture.RawRequestRecord{
		rec(0, "GET", "https://api.example.com/user/123"),
		rec(1, "GET", "https://api.example.com/user/456"),
		rec(2, "POST", "https://api.example.com/user/123"),
	}}

	out := NewNormalizer(DefaultVolatileConfig(), nil).Normalize(cap)

	if len(out) != 2 {
		t.Fatalf("got %d descriptors, want 2", len(out))
	}

	get := out[0]
	if get.Method != "GET" || get.PathTemplate != "https://api.example.com/user/{id}" {
		t.Errorf("first descriptor = %s, want GET .../user/{id}", get.Key())
	}
	if len(get.SourceRecordIDs) != 2 {
		t.Errorf("GET descriptor has %d source records, want 2", len(get.SourceRecordIDs))
	}
	// Latest record's URL becomes the live example.
	if get.ExampleURL != "https://api.example.com/user/456" {
		t.Errorf("ExampleURL = %s, want the later record's URL", get.ExampleURL)
	}

	if out[1].Method != "POST" {
		t.Errorf("second descriptor method = %s, want POST (same template, different method)", out[1].Method)
	}
}

func TestNormalizeUniqueKeys(t *testing.T) {
	cap := &capture.Capture{Records: []capture.RawRequestRecord{
		rec(0, "GET", "https://api.example.com/a/1"),
		rec(1, "GET", "https://api.example.com/a/2"),
		rec(2, "GET", "https://api.example.com/b"),
		rec(3, "POST", "https://api.example.com/b"),
		rec(4, "GET", "https://api.example.com/b"),
	}}

	out := NewNormalizer(DefaultVolatileConfig(), nil).Normalize(cap)

	seen := make(map[string]bool)
	for _, d := range out {
		if seen[d.Key()] {
			t.Errorf("duplicate descriptor key %q", d.Key())
		}
		seen[d.Key()] = true
	}
}

func TestNormalizeExactDuplicateMerged(t *testing.T) {
	cap := &capture.Capture{Records: []capture.RawRequestRecord{
		rec(0, "GET", "https://api.example.com/things"),
		rec(1, "GET", "https://api.example.com/things"),
	}}

	out := NewNormalizer(DefaultVolatileConfig(), nil).Normalize(cap)

	if len(out) != 1 {
		t.Fatalf("got %d descriptors, want 1", len(out))
	}
	if len(out[0].SourceRecordIDs) != 2 {
		t.Errorf("duplicate record not attributed: %d source IDs, want 2", len(out[0].SourceRecordIDs))
	}
}

func TestNormalizeSameURLDifferentShapeMerged(t *testing.T) {
	r1 := rec(0, "POST", "https://x.com/login")
	r1.Body = capture.ClassifyBody("user=a&pass=b", "application/x-www-form-urlencoded")
	r1.Headers = []capture.Header{{Name: "X-Token", Value: "t"}}
	r2 := rec(1, "POST", "https://x.com/login")
	r2.ID = "rec-POST-login-2"
	r2.Body = capture.ClassifyBody(`{"user":"a","pass":"b"}`, "application/json")

	out := NewNormalizer(DefaultVolatileConfig(), nil).Normalize(&capture.Capture{
		Records: []capture.RawRequestRecord{r1, r2},
	})

	if len(out) != 1 {
		t.Fatalf("got %d descriptors, want 1", len(out))
	}
	d := out[0]

	// Same URL twice, but the later record reshaped the body.
	if d.Body.Kind != capture.BodyJSON {
		t.Errorf("body kind = %s, want json (latest record's shape)", d.Body.Kind)
	}
	if len(d.SourceRecordIDs) != 2 {
		t.Errorf("got %d source records, want 2", len(d.SourceRecordIDs))
	}

	tok, ok := d.Headers["X-Token"]
	if !ok {
		t.Fatalf("X-Token header missing: %v", d.Headers)
	}
	if tok.Required {
		t.Error("X-Token absent from the later record but marked required")
	}
}

func TestNormalizeHeaderRequirements(t *testing.T) {
	r1 := rec(0, "GET", "https://api.example.com/user/1")
	r1.Headers = []capture.Header{
		{Name: "authorization", Value: "Bearer x"},
		{Name: "X-Trace", Value: "t1"},
	}
	r2 := rec(1, "GET", "https://api.example.com/user/2")
	r2.Headers = []capture.Header{
		{Name: "Authorization", Value: "Bearer y"},
	}

	out := NewNormalizer(DefaultVolatileConfig(), nil).Normalize(&capture.Capture{
		Records: []capture.RawRequestRecord{r1, r2},
	})

	if len(out) != 1 {
		t.Fatalf("got %d descriptors, want 1", len(out))
	}
	d := out[0]

	auth, ok := d.Headers["Authorization"]
	if !ok {
		t.Fatalf("Authorization header missing after case merge: %v", d.Headers)
	}
	if !auth.Required {
		t.Error("Authorization present in all records but not marked required")
	}

	trace, ok := d.Headers["X-Trace"]
	if !ok {
		t.Fatalf("X-Trace header missing: %v", d.Headers)
	}
	if trace.Required {
		t.Error("X-Trace present in one of two records but marked required")
	}

	req := d.RequiredHeaders()
	if _, ok := req["X-Trace"]; ok {
		t.Error("RequiredHeaders includes an optional header")
	}
}

func TestNormalizeLatestBodyWins(t *testing.T) {
	r1 := rec(0, "POST", "https://api.example.com/submit")
	r1.Body = capture.ClassifyBody(`{"v":1}`, "application/json")
	r2 := rec(1, "POST", "https://api.example.com/submit?x=1")
	r2.Body = capture.ClassifyBody(`{"v":2}`, "application/json")

	out := NewNormalizer(DefaultVolatileConfig(), nil).Normalize(&capture.Capture{
		Records: []capture.RawRequestRecord{r1, r2},
	})

	if len(out) != 1 {
		t.Fatalf("got %d descriptors, want 1", len(out))
	}
	if out[0].Body.Raw != `{"v":2}` {
		t.Errorf("body = %s, want the later record's body", out[0].Body.Raw)
	}
}

func TestCompilePatterns(t *testing.T) {
	cfg := CompilePatterns([]string{`^v\d+$`, `([`})
	if len(cfg.Patterns) != 1 {
		t.Fatalf("got %d patterns, want 1 (invalid pattern dropped)", len(cfg.Patterns))
	}

	n := NewNormalizer(cfg, nil)
	got := n.Template("https://api.example.com/v2/users")
	if got != "https://api.example.com/{id}/users" {
		t.Errorf("custom pattern not applied: %s", got)
	}

	// Empty input falls back to the defaults.
	fallback := CompilePatterns(nil)
	if len(fallback.Patterns) == 0 {
		t.Error("CompilePatterns(nil) returned no patterns")
	}
}
