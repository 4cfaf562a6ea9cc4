package capture

import (
	"encoding/json"
	"io"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/Md-Abu-Bakkar/Universal-API-Testing/internal/logger"
)

// Capture is the parsed, re-iterable sequence of records for one run.
type Capture struct {
	Records []RawRequestRecord
	// Skipped counts entries dropped because method or URL was unrecoverable.
	Skipped int
}

// Parser turns raw DevTools-style capture text into request records.
// Parsing is pure and deterministic: the same input always yields the
// same record sequence, in order.
type Parser struct {
	log *logger.Logger
}

// NewParser creates a capture parser.
func NewParser(log *logger.Logger) *Parser {
	if log == nil {
		log = logger.Global()
	}
	return &Parser{log: log.WithComponent("parser")}
}

var httpMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

var (
	bareURLPattern = regexp.MustCompile(`https?://[^\s<>"'{}|\\^` + "`" + `\[\]]+`)
	curlURLQuoted  = regexp.MustCompile(`curl\s+(?:-[^\s]+\s+)*['"]([^'"]+)['"]`)
	curlHeader     = regexp.MustCompile(`(?:-H|--header)\s+['"]([^'"]+)['"]`)
	curlData       = regexp.MustCompile(`(?:-d|--data(?:-raw)?)\s+['"]([^'"]+)['"]`)
	curlCookie     = regexp.MustCompile(`(?:-b|--cookie)\s+['"]([^'"]+)['"]`)
	curlMethod     = regexp.MustCompile(`(?:-X|--request)\s+(\w+)`)
)

// staticAssetSuffixes are resource extensions that never represent API endpoints.
var staticAssetSuffixes = []string{
	".css", ".js", ".map", ".png", ".jpg", ".jpeg", ".gif", ".ico",
	".svg", ".woff", ".woff2", ".ttf", ".eot",
}

// staticAssetHosts are CDN/font hosts excluded from extraction.
var staticAssetHosts = []string{
	"fonts.googleapis.com", "fonts.gstatic.com", "gstatic.com",
}

// ParseReader reads all capture text from r and parses it.
func (p *Parser) ParseReader(r io.Reader) (*Capture, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return p.Parse(string(data)), nil
}

// Parse parses raw capture text. A malformed entry is skipped and counted,
// never aborting the whole parse. HAR exports are detected by shape.
func (p *Parser) Parse(text string) *Capture {
	trimmed := strings.TrimSpace(text)

	if strings.HasPrefix(trimmed, "{") {
		if cap, ok := p.parseHAR(trimmed); ok {
			return cap
		}
	}

	return p.parseText(text)
}

// harFile mirrors the subset of the HAR format the parser consumes.
type harFile struct {
	Log struct {
		Entries []struct {
			StartedDateTime string `json:"startedDateTime"`
			Request         struct {
				Method  string `json:"method"`
				URL     string `json:"url"`
				Headers []struct {
					Name  string `json:"name"`
					Value string `json:"value"`
				} `json:"headers"`
				Cookies []struct {
					Name  string `json:"name"`
					Value string `json:"value"`
				} `json:"cookies"`
				PostData *struct {
					MimeType string `json:"mimeType"`
					Text     string `json:"text"`
				} `json:"postData"`
			} `json:"request"`
		} `json:"entries"`
	} `json:"log"`
}

// parseHAR parses an HTTP Archive export. Returns ok=false when the JSON
// is not HAR-shaped so the caller can fall back to loose text parsing.
func (p *Parser) parseHAR(text string) (*Capture, bool) {
	var har harFile
	if err := json.Unmarshal([]byte(text), &har); err != nil {
		return nil, false
	}
	if len(har.Log.Entries) == 0 {
		return nil, false
	}

	cap := &Capture{}
	for i, entry := range har.Log.Entries {
		req := entry.Request
		if req.Method == "" || !isUsableURL(req.URL) {
			cap.Skipped++
			p.log.Warnf("skipping malformed HAR entry %d", i)
			continue
		}
		if isStaticAsset(req.URL) {
			continue
		}

		rec := RawRequestRecord{
			Seq:     len(cap.Records),
			Method:  strings.ToUpper(req.Method),
			URL:     req.URL,
			Cookies: map[string]string{},
		}
		rec.ID = newRecordID(rec.Seq, rec.Method, rec.URL)

		contentType := ""
		for _, h := range req.Headers {
			if strings.EqualFold(h.Name, "Cookie") {
				mergeCookieHeader(rec.Cookies, h.Value)
				continue
			}
			if strings.EqualFold(h.Name, "Content-Type") {
				contentType = h.Value
			}
			rec.Headers = append(rec.Headers, Header{Name: h.Name, Value: h.Value})
		}
		for _, c := range req.Cookies {
			rec.Cookies[c.Name] = c.Value
		}
		if req.PostData != nil {
			if contentType == "" {
				contentType = req.PostData.MimeType
			}
			rec.Body = ClassifyBody(req.PostData.Text, contentType)
		}
		if ts, err := time.Parse(time.RFC3339, entry.StartedDateTime); err == nil {
			rec.CapturedAt = ts
		}

		cap.Records = append(cap.Records, rec)
	}
	return cap, true
}

// parseText parses the loose block format: a request line "METHOD URL",
// header lines, a blank line, then an optional body. Lines holding cURL
// commands produce one record each, and any leftover text is scanned for
// bare URLs as a last resort.
func (p *Parser) parseText(text string) *Capture {
	cap := &Capture{}
	lines := strings.Split(text, "\n")

	var leftover []string

	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "curl ") || strings.HasPrefix(line, "curl\t") {
			p.parseCurlLine(line, i+1, cap)
			continue
		}

		if method, rawURL, ok := splitRequestLine(line); ok {
			if !isUsableURL(rawURL) {
				cap.Skipped++
				p.log.Warnf("skipping malformed entry at line %d: unparseable URL", i+1)
				// Consume the rest of the block so its headers are not
				// mistaken for free text.
				i = consumeBlock(lines, i)
				continue
			}
			rec, next := p.parseBlock(lines, i, method, rawURL, len(cap.Records))
			if isStaticAsset(rec.URL) {
				i = next
				continue
			}
			cap.Records = append(cap.Records, rec)
			i = next
			continue
		}

		leftover = append(leftover, line)
	}

	// Bare URL extraction over whatever did not form a block.
	for _, line := range leftover {
		for _, rawURL := range bareURLPattern.FindAllString(line, -1) {
			if !isUsableURL(rawURL) || isStaticAsset(rawURL) {
				continue
			}
			rec := RawRequestRecord{
				Seq:    len(cap.Records),
				Method: "GET",
				URL:    rawURL,
			}
			rec.ID = newRecordID(rec.Seq, rec.Method, rec.URL)
			cap.Records = append(cap.Records, rec)
		}
	}

	return cap
}

// parseBlock consumes one record block starting at the request line.
// Returns the record and the index of the block's last line.
func (p *Parser) parseBlock(lines []string, start int, method, rawURL string, seq int) (RawRequestRecord, int) {
	rec := RawRequestRecord{
		Seq:     seq,
		Method:  method,
		URL:     rawURL,
		Cookies: map[string]string{},
	}
	rec.ID = newRecordID(seq, method, rawURL)

	contentType := ""
	i := start + 1
	inBody := false
	var body []string

	for ; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)

		if !inBody {
			if trimmed == "" {
				inBody = true
				continue
			}
			if isBlockBoundary(trimmed) {
				i--
				break
			}
			if name, value, ok := splitHeaderLine(trimmed); ok {
				if strings.EqualFold(name, "Cookie") {
					mergeCookieHeader(rec.Cookies, value)
					continue
				}
				if strings.EqualFold(name, "Content-Type") {
					contentType = value
				}
				rec.Headers = append(rec.Headers, Header{Name: name, Value: value})
				continue
			}
			// Not a header and not a boundary: treat as start of body.
			inBody = true
		}

		if isBlockBoundary(trimmed) {
			i--
			break
		}
		if trimmed == "" && len(body) == 0 {
			continue
		}
		body = append(body, line)
	}
	if i >= len(lines) {
		i = len(lines) - 1
	}

	rec.Body = ClassifyBody(strings.Join(body, "\n"), contentType)
	return rec, i
}

// parseCurlLine parses a single cURL command into one record.
func (p *Parser) parseCurlLine(line string, lineNo int, cap *Capture) {
	var rawURL string
	if m := curlURLQuoted.FindStringSubmatch(line); m != nil {
		rawURL = m[1]
	} else {
		fields := strings.Fields(line)
		for _, f := range fields[1:] {
			if strings.HasPrefix(f, "http://") || strings.HasPrefix(f, "https://") {
				rawURL = f
				break
			}
		}
	}

	if !isUsableURL(rawURL) {
		cap.Skipped++
		p.log.Warnf("skipping malformed cURL entry at line %d", lineNo)
		return
	}
	if isStaticAsset(rawURL) {
		return
	}

	rec := RawRequestRecord{
		Seq:     len(cap.Records),
		Method:  "GET",
		URL:     rawURL,
		Cookies: map[string]string{},
	}

	if m := curlMethod.FindStringSubmatch(line); m != nil {
		rec.Method = strings.ToUpper(m[1])
	}

	contentType := ""
	for _, m := range curlHeader.FindAllStringSubmatch(line, -1) {
		if name, value, ok := splitHeaderLine(m[1]); ok {
			if strings.EqualFold(name, "Cookie") {
				mergeCookieHeader(rec.Cookies, value)
				continue
			}
			if strings.EqualFold(name, "Content-Type") {
				contentType = value
			}
			rec.Headers = append(rec.Headers, Header{Name: name, Value: value})
		}
	}
	if m := curlCookie.FindStringSubmatch(line); m != nil {
		mergeCookieHeader(rec.Cookies, m[1])
	}
	if m := curlData.FindStringSubmatch(line); m != nil {
		rec.Body = ClassifyBody(m[1], contentType)
		if rec.Method == "GET" {
			rec.Method = "POST"
		}
	}

	rec.ID = newRecordID(rec.Seq, rec.Method, rec.URL)
	cap.Records = append(cap.Records, rec)
}

// consumeBlock skips forward past the lines of a malformed block.
func consumeBlock(lines []string, start int) int {
	i := start + 1
	for ; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])
		if isBlockBoundary(trimmed) {
			return i - 1
		}
	}
	return len(lines) - 1
}

// isBlockBoundary reports whether a line starts a new record block.
func isBlockBoundary(line string) bool {
	if strings.HasPrefix(line, "curl ") {
		return true
	}
	_, _, ok := splitRequestLine(line)
	return ok
}

// splitRequestLine parses "METHOD URL [HTTP/x]".
func splitRequestLine(line string) (method, rawURL string, ok bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return "", "", false
	}
	method = strings.ToUpper(fields[0])
	if !httpMethods[method] {
		return "", "", false
	}
	return method, fields[1], true
}

// splitHeaderLine parses "Name: value".
func splitHeaderLine(line string) (name, value string, ok bool) {
	idx := strings.Index(line, ":")
	if idx <= 0 {
		return "", "", false
	}
	name = strings.TrimSpace(line[:idx])
	value = strings.TrimSpace(line[idx+1:])
	if name == "" || strings.ContainsAny(name, " \t") {
		return "", "", false
	}
	return name, value, true
}

// mergeCookieHeader parses "a=1; b=2" into the cookie map.
func mergeCookieHeader(cookies map[string]string, header string) {
	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		if idx := strings.Index(part, "="); idx > 0 {
			cookies[part[:idx]] = part[idx+1:]
		}
	}
}

// isUsableURL reports whether rawURL has a scheme and host.
func isUsableURL(rawURL string) bool {
	if rawURL == "" {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return false
	}
	return u.Host != ""
}

// isStaticAsset reports whether the URL points at a static resource.
func isStaticAsset(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := strings.ToLower(u.Path)
	for _, suffix := range staticAssetSuffixes {
		if strings.HasSuffix(path, suffix) {
			return true
		}
	}
	host := strings.ToLower(u.Host)
	for _, h := range staticAssetHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}
