// Package endpoint reconstructs canonical API endpoints from raw capture records.
package endpoint

import (
	"github.com/Md-Abu-Bakkar/Universal-API-Testing/internal/capture"
)

// Category is the classification vocabulary for descriptors.
type Category string

const (
	CategoryAuth    Category = "auth"
	CategoryRead    Category = "read"
	CategoryWrite   Category = "write"
	CategoryUnknown Category = "unknown"
)

// HeaderRequirement is a merged header across a descriptor's source records.
type HeaderRequirement struct {
	// Value is an example value taken from the captures.
	Value string `json:"value"`
	// Required is true only when the header appeared in every source record.
	Required bool `json:"required"`
}

// Descriptor is the canonical representation of one logical endpoint.
// Created by the Normalizer, enriched by the Classifier, then read-only.
type Descriptor struct {
	// Method is the HTTP method shared by all source records.
	Method string `json:"method"`
	// PathTemplate is the URL with volatile path segments abstracted.
	// (Method, PathTemplate) is unique across a run.
	PathTemplate string `json:"path_template"`
	// ExampleURL is a concrete URL from the most recent source record,
	// used when the endpoint is exercised against a live target.
	ExampleURL string `json:"example_url"`
	// Headers maps header name to its merged requirement.
	Headers map[string]HeaderRequirement `json:"headers,omitempty"`
	// Cookies holds cookies present in every source record.
	Cookies map[string]string `json:"cookies,omitempty"`
	// Body is the body shape of the most recently captured record.
	Body capture.Body `json:"body"`
	// Category is assigned by the classifier.
	Category Category `json:"category"`
	// Priority orders verification, higher first.
	Priority int `json:"priority"`
	// FirstSeen is the capture sequence index of the earliest source record.
	FirstSeen int `json:"first_seen"`
	// SourceRecordIDs references the raw records that produced this descriptor.
	SourceRecordIDs []string `json:"source_record_ids"`
}

// Key identifies a descriptor within a run.
func (d *Descriptor) Key() string {
	return d.Method + " " + d.PathTemplate
}

// RequiredHeaders returns only the headers present in every source record.
func (d *Descriptor) RequiredHeaders() map[string]string {
	out := make(map[string]string)
	for name, req := range d.Headers {
		if req.Required {
			out[name] = req.Value
		}
	}
	return out
}
