package classify

import (
	"testing"

	"github.com/Md-Abu-Bakkar/Universal-API-Testing/internal/capture"
	"github.com/Md-Abu-Bakkar/Universal-API-Testing/internal/endpoint"
)

func desc(method, template string) *endpoint.Descriptor {
	return &endpoint.Descriptor{Method: method, PathTemplate: template}
}

func TestCategorize(t *testing.T) {
	c := NewClassifier()

	tests := []struct {
		name string
		d    *endpoint.Descriptor
		want endpoint.Category
	}{
		{"login path", desc("POST", "https://x.com/api/login"), endpoint.CategoryAuth},
		{"oauth path", desc("GET", "https://x.com/oauth/authorize"), endpoint.CategoryAuth},
		{"token path", desc("POST", "https://x.com/api/token"), endpoint.CategoryAuth},
		{"delete keyword", desc("GET", "https://x.com/api/delete-account"), endpoint.CategoryWrite},
		{"upload keyword", desc("POST", "https://x.com/files/upload"), endpoint.CategoryWrite},
		{"search keyword", desc("POST", "https://x.com/api/search"), endpoint.CategoryRead},
		{"plain get", desc("GET", "https://x.com/api/users/{id}"), endpoint.CategoryRead},
		{"plain post", desc("POST", "https://x.com/api/orders"), endpoint.CategoryWrite},
		{"plain put", desc("PUT", "https://x.com/api/orders/{id}"), endpoint.CategoryWrite},
		{"odd method", desc("TRACE", "https://x.com/api/thing"), endpoint.CategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Categorize(tt.d); got != tt.want {
				t.Errorf("Categorize(%s %s) = %s, want %s", tt.d.Method, tt.d.PathTemplate, got, tt.want)
			}
		})
	}
}

func TestCategorizeCredentialBody(t *testing.T) {
	d := desc("POST", "https://x.com/api/do-something")
	d.Body = capture.ClassifyBody("username=a&password=b", "application/x-www-form-urlencoded")

	if got := NewClassifier().Categorize(d); got != endpoint.CategoryAuth {
		t.Errorf("credential body categorized as %s, want auth", got)
	}
}

// Auth endpoints must always outrank everything else, and write endpoints
// must always rank last, regardless of in-band keyword bumps.
func TestPriorityBandsNeverOverlap(t *testing.T) {
	c := NewClassifier()

	// Endpoints stacked with interest keywords to maximize the bump.
	descriptors := []*endpoint.Descriptor{
		desc("POST", "https://x.com/api/login"),
		desc("GET", "https://x.com/api/rest/graphql/sms/data"),
		desc("POST", "https://x.com/api/rest/graphql/sms/otp/submit"),
		desc("TRACE", "https://x.com/api/rest/sms/thing"),
	}

	ordered := c.Classify(descriptors)

	byCategory := make(map[endpoint.Category][]int)
	for _, d := range ordered {
		byCategory[d.Category] = append(byCategory[d.Category], d.Priority)
	}

	minOf := func(cat endpoint.Category) int {
		min := 1 << 30
		for _, p := range byCategory[cat] {
			if p < min {
				min = p
			}
		}
		return min
	}
	maxOf := func(cat endpoint.Category) int {
		max := -1
		for _, p := range byCategory[cat] {
			if p > max {
				max = p
			}
		}
		return max
	}

	if minOf(endpoint.CategoryAuth) <= maxOf(endpoint.CategoryRead) {
		t.Errorf("auth band overlaps read: min auth %d, max read %d",
			minOf(endpoint.CategoryAuth), maxOf(endpoint.CategoryRead))
	}
	if minOf(endpoint.CategoryRead) <= maxOf(endpoint.CategoryUnknown) {
		t.Errorf("read band overlaps unknown: min read %d, max unknown %d",
			minOf(endpoint.CategoryRead), maxOf(endpoint.CategoryUnknown))
	}
	if minOf(endpoint.CategoryUnknown) <= maxOf(endpoint.CategoryWrite) {
		t.Errorf("unknown band overlaps write: min unknown %d, max write %d",
			minOf(endpoint.CategoryUnknown), maxOf(endpoint.CategoryWrite))
	}

	if ordered[0].Category != endpoint.CategoryAuth {
		t.Errorf("first ordered descriptor is %s, want auth", ordered[0].Category)
	}
	if ordered[len(ordered)-1].Category != endpoint.CategoryWrite {
		t.Errorf("last ordered descriptor is %s, want write", ordered[len(ordered)-1].Category)
	}
}

func TestClassifyDeterministicAndIdempotent(t *testing.T) {
	c := NewClassifier()

	build := func() []*endpoint.Descriptor {
		return []*endpoint.Descriptor{
			{Method: "GET", PathTemplate: "https://x.com/a", FirstSeen: 0},
			{Method: "GET", PathTemplate: "https://x.com/b", FirstSeen: 1},
			{Method: "POST", PathTemplate: "https://x.com/login", FirstSeen: 2},
		}
	}

	first := c.Classify(build())
	second := c.Classify(build())

	for i := range first {
		if first[i].Key() != second[i].Key() || first[i].Priority != second[i].Priority {
			t.Errorf("classification differs at %d: %s(%d) vs %s(%d)",
				i, first[i].Key(), first[i].Priority, second[i].Key(), second[i].Priority)
		}
	}

	// Classifying an already-classified set changes nothing.
	again := c.Classify(first)
	for i := range first {
		if again[i].Key() != first[i].Key() || again[i].Priority != first[i].Priority {
			t.Errorf("reclassification changed descriptor %d", i)
		}
	}
}

// Equal priorities preserve first-seen capture order.
func TestClassifyStableWithinPriority(t *testing.T) {
	descriptors := []*endpoint.Descriptor{
		{Method: "GET", PathTemplate: "https://x.com/later", FirstSeen: 5},
		{Method: "GET", PathTemplate: "https://x.com/earlier", FirstSeen: 1},
	}

	ordered := NewClassifier().Classify(descriptors)

	if ordered[0].PathTemplate != "https://x.com/earlier" {
		t.Errorf("equal-priority ordering not by first seen: %s first", ordered[0].PathTemplate)
	}
}
