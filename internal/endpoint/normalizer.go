package endpoint

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/Md-Abu-Bakkar/Universal-API-Testing/internal/capture"
	"github.com/Md-Abu-Bakkar/Universal-API-Testing/internal/logger"
)

// Placeholder replaces volatile path segments in templates.
const Placeholder = "{id}"

// VolatileConfig configures which path segments are treated as volatile.
type VolatileConfig struct {
	Patterns []*regexp.Regexp
}

// DefaultVolatileConfig matches purely numeric, UUID-shaped, and
// token-shaped segments.
func DefaultVolatileConfig() VolatileConfig {
	return VolatileConfig{
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`^\d+$`),
			regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`),
			regexp.MustCompile(`^[0-9a-fA-F]{16,}$`),
			regexp.MustCompile(`^[A-Za-z0-9_-]{24,}$`),
		},
	}
}

// CompilePatterns compiles user-supplied volatile segment patterns,
// skipping ones that do not compile.
func CompilePatterns(exprs []string) VolatileConfig {
	cfg := VolatileConfig{}
	for _, expr := range exprs {
		if re, err := regexp.Compile(expr); err == nil {
			cfg.Patterns = append(cfg.Patterns, re)
		}
	}
	if len(cfg.Patterns) == 0 {
		return DefaultVolatileConfig()
	}
	return cfg
}

// isVolatile reports whether a path segment should be abstracted.
func (c VolatileConfig) isVolatile(segment string) bool {
	for _, re := range c.Patterns {
		if re.MatchString(segment) {
			return true
		}
	}
	return false
}

// Normalizer collapses raw records into deduplicated endpoint descriptors.
type Normalizer struct {
	cfg VolatileConfig
	log *logger.Logger
}

// NewNormalizer creates a normalizer with the given volatile config.
func NewNormalizer(cfg VolatileConfig, log *logger.Logger) *Normalizer {
	if len(cfg.Patterns) == 0 {
		cfg = DefaultVolatileConfig()
	}
	if log == nil {
		log = logger.Global()
	}
	return &Normalizer{cfg: cfg, log: log.WithComponent("normalizer")}
}

// group accumulates the records behind one (method, template) pair.
type group struct {
	descriptor *Descriptor
	// headerSeen counts how many records carried each header,
	// to decide required vs optional after the group is complete.
	headerSeen map[string]int
	cookieSeen map[string]int
	cookieVals map[string]string
	records    int
	// latestSeq tracks which record's body shape wins.
	latestSeq int
}

// Normalize consumes all records of a capture and produces the deduplicated
// descriptor set, ordered by first-seen capture index. The returned set
// holds no two descriptors with the same (method, path template).
func (n *Normalizer) Normalize(cap *capture.Capture) []*Descriptor {
	// Bloom filter fronting the exact set, sized for the capture.
	estimate := len(cap.Records)
	if estimate < 1000 {
		estimate = 1000
	}
	seenFilter := bloom.NewWithEstimates(uint(estimate), 0.001)
	seenExact := make(map[string]struct{})

	groups := make(map[string]*group)
	var order []string

	for i := range cap.Records {
		rec := &cap.Records[i]

		// Exact duplicates carry no new information, but only when the whole
		// shape matches: a later record with the same URL and a different
		// body or header set must still reshape its group.
		exactKey := recordFingerprint(rec)
		if seenFilter.TestString(exactKey) {
			if _, dup := seenExact[exactKey]; dup {
				n.mergeDuplicate(groups, rec)
				continue
			}
		}
		seenFilter.AddString(exactKey)
		seenExact[exactKey] = struct{}{}

		template := n.Template(rec.URL)
		key := rec.Method + " " + template

		g, ok := groups[key]
		if !ok {
			g = &group{
				descriptor: &Descriptor{
					Method:       rec.Method,
					PathTemplate: template,
					ExampleURL:   rec.URL,
					Headers:      make(map[string]HeaderRequirement),
					Cookies:      make(map[string]string),
					Category:     CategoryUnknown,
					FirstSeen:    rec.Seq,
					Body:         rec.Body,
				},
				headerSeen: make(map[string]int),
				cookieSeen: make(map[string]int),
				cookieVals: make(map[string]string),
				latestSeq:  rec.Seq,
			}
			groups[key] = g
			order = append(order, key)
		}

		n.merge(g, rec)
	}

	out := make([]*Descriptor, 0, len(order))
	for _, key := range order {
		g := groups[key]
		n.finalize(g)
		out = append(out, g.descriptor)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FirstSeen < out[j].FirstSeen
	})

	n.log.Infof("normalized %d records into %d endpoints", len(cap.Records), len(out))
	return out
}

// merge folds one record into its group.
func (n *Normalizer) merge(g *group, rec *capture.RawRequestRecord) {
	d := g.descriptor
	g.records++

	seenInRecord := make(map[string]bool)
	for _, h := range rec.Headers {
		name := http1CanonicalName(h.Name)
		if seenInRecord[name] {
			continue
		}
		seenInRecord[name] = true
		g.headerSeen[name]++
		if _, ok := d.Headers[name]; !ok {
			d.Headers[name] = HeaderRequirement{Value: h.Value}
		}
	}

	for name, value := range rec.Cookies {
		g.cookieSeen[name]++
		if _, ok := g.cookieVals[name]; !ok {
			g.cookieVals[name] = value
		}
	}

	// Most recently captured record's body shape wins, and its URL becomes
	// the example for live verification.
	if rec.Seq >= g.latestSeq {
		g.latestSeq = rec.Seq
		if rec.Body.Kind != capture.BodyEmpty || d.Body.Kind == capture.BodyEmpty {
			d.Body = rec.Body
		}
		d.ExampleURL = rec.URL
	}

	d.SourceRecordIDs = append(d.SourceRecordIDs, rec.ID)
}

// mergeDuplicate attaches a fingerprint-identical record's ID to its group.
// Counting it would change nothing: its body, header set, and cookie names
// match a record already merged, so every per-group ratio stays intact.
func (n *Normalizer) mergeDuplicate(groups map[string]*group, rec *capture.RawRequestRecord) {
	key := rec.Method + " " + n.Template(rec.URL)
	if g, ok := groups[key]; ok {
		g.descriptor.SourceRecordIDs = append(g.descriptor.SourceRecordIDs, rec.ID)
	}
}

// recordFingerprint keys exact-duplicate detection on everything merge
// reads from a record: method, URL, body, header names, and cookie names.
func recordFingerprint(rec *capture.RawRequestRecord) string {
	names := make([]string, 0, len(rec.Headers)+len(rec.Cookies))
	for _, h := range rec.Headers {
		names = append(names, "h:"+http1CanonicalName(h.Name))
	}
	for name := range rec.Cookies {
		names = append(names, "c:"+name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(rec.Method)
	b.WriteByte(' ')
	b.WriteString(rec.URL)
	b.WriteByte('\n')
	b.WriteString(rec.Body.Kind.String())
	b.WriteByte('\n')
	b.WriteString(rec.Body.Raw)
	b.WriteByte('\n')
	b.WriteString(strings.Join(names, ","))
	return b.String()
}

// finalize resolves required vs optional headers and cookies.
func (n *Normalizer) finalize(g *group) {
	d := g.descriptor
	for name, req := range d.Headers {
		req.Required = g.headerSeen[name] == g.records
		d.Headers[name] = req
	}
	for name, count := range g.cookieSeen {
		if count == g.records {
			d.Cookies[name] = g.cookieVals[name]
		}
	}
}

// Template derives the path template for a URL: volatile path segments are
// replaced with a placeholder and the query string is dropped. A URL that
// cannot be templated (no parseable path) is returned as-is, keeping the
// record as its own singleton descriptor.
func (n *Normalizer) Template(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}

	if u.Path == "" || u.Path == "/" {
		return u.Scheme + "://" + u.Host + u.Path
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, seg := range segments {
		if n.cfg.isVolatile(seg) {
			segments[i] = Placeholder
		}
	}

	return u.Scheme + "://" + u.Host + "/" + strings.Join(segments, "/")
}

// http1CanonicalName normalizes a header name for merging (Title-Case).
func http1CanonicalName(name string) string {
	parts := strings.Split(strings.ToLower(name), "-")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, "-")
}
