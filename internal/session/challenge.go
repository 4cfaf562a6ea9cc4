package session

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Md-Abu-Bakkar/Universal-API-Testing/internal/errors"
	"github.com/Md-Abu-Bakkar/Universal-API-Testing/internal/transport"
)

// ChallengeKind discriminates the supported challenge families.
type ChallengeKind string

const (
	ChallengeMath      ChallengeKind = "math"
	ChallengeRecaptcha ChallengeKind = "recaptcha"
	ChallengeImage     ChallengeKind = "image"
	ChallengeGeneric   ChallengeKind = "generic"
)

// Challenge describes an anti-automation obstacle found in a login response.
type Challenge struct {
	Kind ChallengeKind
	// Prompt is the human-readable question for math and text challenges,
	// or the site key for recaptcha.
	Prompt string
	// Field is the form input name the answer must be submitted under.
	Field string
	// Hidden holds the challenge form's hidden inputs, which must travel
	// with the answer on the retried submission.
	Hidden map[string]string
	// PageURL is where the challenge was encountered.
	PageURL string
}

// challengeMarkers are body substrings that flag a challenge page.
var challengeMarkers = []string{
	"captcha", "recaptcha", "hcaptcha", "are you human",
	"security check", "verification required", "g-recaptcha",
}

// mathPrompt matches questions like "what is 3 + 4" or "7 - 2 = ?".
var mathPrompt = regexp.MustCompile(`(?i)(?:what is\s+)?(\d+)\s*([+\-*x])\s*(\d+)\s*(?:=|\?)`)

// captchaFieldHints order the preference for the answer field name.
var captchaFieldHints = []string{"captcha", "challenge", "answer", "verification"}

// DetectChallenge inspects a response for challenge markers. HTML bodies
// are parsed for the challenge form; non-HTML bodies only trip on marker
// substrings. Returns nil when no challenge is present.
func DetectChallenge(resp *transport.Response) *Challenge {
	if resp == nil || resp.Body.Raw == "" {
		return nil
	}

	lower := strings.ToLower(resp.Body.Raw)
	marked := false
	for _, marker := range challengeMarkers {
		if strings.Contains(lower, marker) {
			marked = true
			break
		}
	}
	if !marked && !mathPrompt.MatchString(resp.Body.Raw) {
		return nil
	}

	ch := &Challenge{Kind: ChallengeGeneric, PageURL: resp.FinalURL}

	if isHTML(resp.ContentType, resp.Body.Raw) {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.Body.Raw)); err == nil {
			inspectDocument(doc, ch)
		}
	}

	if ch.Kind == ChallengeGeneric {
		if m := mathPrompt.FindString(resp.Body.Raw); m != "" {
			ch.Kind = ChallengeMath
			ch.Prompt = m
		} else if strings.Contains(lower, "recaptcha") || strings.Contains(lower, "g-recaptcha") {
			ch.Kind = ChallengeRecaptcha
		}
	}
	if ch.Field == "" {
		ch.Field = "captcha"
	}
	return ch
}

// inspectDocument fills challenge details from the parsed page: the
// recaptcha site key, the math question text, and the answer field name.
func inspectDocument(doc *goquery.Document, ch *Challenge) {
	if sel := doc.Find(".g-recaptcha, [data-sitekey]").First(); sel.Length() > 0 {
		ch.Kind = ChallengeRecaptcha
		if key, ok := sel.Attr("data-sitekey"); ok {
			ch.Prompt = key
		}
	}

	doc.Find("label, p, span, div").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := strings.TrimSpace(s.Text())
		if len(text) > 200 {
			return true
		}
		if mathPrompt.MatchString(text) {
			ch.Kind = ChallengeMath
			ch.Prompt = mathPrompt.FindString(text)
			return false
		}
		return true
	})

	doc.Find("input[type='text'], input:not([type])").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		name, ok := s.Attr("name")
		if !ok {
			return true
		}
		lower := strings.ToLower(name)
		for _, hint := range captchaFieldHints {
			if strings.Contains(lower, hint) {
				ch.Field = name
				return false
			}
		}
		return true
	})

	if doc.Find("img[src*='captcha']").Length() > 0 && ch.Kind == ChallengeGeneric {
		ch.Kind = ChallengeImage
	}

	doc.Find("input[type='hidden']").Each(func(_ int, s *goquery.Selection) {
		name, ok := s.Attr("name")
		if !ok || name == "" {
			return
		}
		if ch.Hidden == nil {
			ch.Hidden = make(map[string]string)
		}
		ch.Hidden[name], _ = s.Attr("value")
	})
}

// isHTML reports whether a body should be parsed as a document.
func isHTML(contentType, body string) bool {
	if strings.Contains(strings.ToLower(contentType), "html") {
		return true
	}
	trimmed := strings.TrimSpace(body)
	return strings.HasPrefix(trimmed, "<!") || strings.HasPrefix(trimmed, "<html")
}

// MathResolver solves arithmetic challenges locally. Every other kind is
// reported as unsolvable so the caller can decide the session's fate.
type MathResolver struct{}

// NewMathResolver creates the built-in resolver.
func NewMathResolver() *MathResolver {
	return &MathResolver{}
}

// Resolve answers math challenges and rejects the rest.
func (r *MathResolver) Resolve(_ context.Context, ch *Challenge) (*Solution, error) {
	if ch.Kind != ChallengeMath {
		return nil, errors.NewChallengeUnsolvedError(ch.PageURL, "unsupported challenge kind: "+string(ch.Kind), nil)
	}

	m := mathPrompt.FindStringSubmatch(ch.Prompt)
	if m == nil {
		return nil, errors.NewChallengeUnsolvedError(ch.PageURL, "could not parse math prompt", nil)
	}

	a, err1 := strconv.Atoi(m[1])
	b, err2 := strconv.Atoi(m[3])
	if err1 != nil || err2 != nil {
		return nil, errors.NewChallengeUnsolvedError(ch.PageURL, "non-numeric operands", nil)
	}

	var answer int
	switch m[2] {
	case "+":
		answer = a + b
	case "-":
		answer = a - b
	case "*", "x":
		answer = a * b
	}

	return &Solution{Field: ch.Field, Value: strconv.Itoa(answer)}, nil
}
