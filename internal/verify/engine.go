// Package verify exercises reconstructed endpoints against a live target,
// sequentially and in priority order.
package verify

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/Md-Abu-Bakkar/Universal-API-Testing/internal/capture"
	"github.com/Md-Abu-Bakkar/Universal-API-Testing/internal/endpoint"
	"github.com/Md-Abu-Bakkar/Universal-API-Testing/internal/errors"
	"github.com/Md-Abu-Bakkar/Universal-API-Testing/internal/logger"
	"github.com/Md-Abu-Bakkar/Universal-API-Testing/internal/session"
	"github.com/Md-Abu-Bakkar/Universal-API-Testing/internal/transport"
)

// Config holds engine configuration.
type Config struct {
	// Retry governs network and timeout failures. HTTP error statuses are
	// never retried through this path.
	Retry errors.RetryConfig
	// PerCallTimeout bounds each individual request.
	PerCallTimeout time.Duration
	// RequestsPerSecond paces outbound calls. Zero means unpaced.
	RequestsPerSecond float64
	// MaxEndpoints caps how many descriptors one run exercises.
	// Descriptors beyond the cap are reported as skipped.
	MaxEndpoints int
	// ExtraHeaders are sent on every request, under captured headers.
	ExtraHeaders map[string]string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Retry:          errors.DefaultRetryConfig(),
		PerCallTimeout: 30 * time.Second,
		MaxEndpoints:   50,
	}
}

// Engine verifies descriptors one at a time. Strictly sequential: a
// descriptor's verification completes before the next begins, so session
// state established by auth endpoints is visible to everything after them.
type Engine struct {
	transport transport.Transport
	wsProber  *transport.WSProber
	session   *session.Manager
	retrier   *errors.Retrier
	limiter   *rate.Limiter
	cfg       Config
	log       *logger.Logger
}

// NewEngine creates a verification engine.
func NewEngine(t transport.Transport, ws *transport.WSProber, sess *session.Manager, cfg Config, log *logger.Logger) *Engine {
	if cfg.PerCallTimeout <= 0 {
		cfg.PerCallTimeout = DefaultConfig().PerCallTimeout
	}
	if cfg.MaxEndpoints <= 0 {
		cfg.MaxEndpoints = DefaultConfig().MaxEndpoints
	}
	if cfg.Retry.MaxAttempts < 1 {
		cfg.Retry = errors.DefaultRetryConfig()
	}
	if log == nil {
		log = logger.Global()
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Engine{
		transport: t,
		wsProber:  ws,
		session:   sess,
		retrier:   errors.NewRetrier(cfg.Retry),
		limiter:   limiter,
		cfg:       cfg,
		log:       log.WithComponent("verify"),
	}
}

// Run verifies the descriptors in the given order and returns one outcome
// per descriptor, in the same order. Cancellation is honored between
// descriptors: work in flight finishes, everything after is skipped.
func (e *Engine) Run(ctx context.Context, descriptors []*endpoint.Descriptor) []*Outcome {
	outcomes := make([]*Outcome, 0, len(descriptors))

	for i, d := range descriptors {
		if err := ctx.Err(); err != nil {
			e.log.Warnf("run cancelled, skipping %d remaining endpoints", len(descriptors)-i)
			for _, rest := range descriptors[i:] {
				outcomes = append(outcomes, skippedOutcome(rest, "run cancelled"))
			}
			break
		}

		if i >= e.cfg.MaxEndpoints {
			for _, rest := range descriptors[i:] {
				outcomes = append(outcomes, skippedOutcome(rest, "endpoint budget exhausted"))
			}
			break
		}

		if e.session.Mode() == session.ModeFailed {
			outcomes = append(outcomes, skippedOutcome(d, "session in failed state"))
			continue
		}

		outcome := e.verifyOne(ctx, d)
		outcomes = append(outcomes, outcome)
		e.log.VerifyEvent(d.Method, d.PathTemplate, string(outcome.Status), outcome.Attempts)
	}

	return outcomes
}

// verifyOne runs the full lifecycle for a single descriptor: build, pace,
// send with retries, observe, and handle auth and challenge follow-ups.
func (e *Engine) verifyOne(ctx context.Context, d *endpoint.Descriptor) *Outcome {
	start := time.Now()
	outcome := &Outcome{
		Method:       d.Method,
		PathTemplate: d.PathTemplate,
		Category:     string(d.Category),
		Priority:     d.Priority,
	}

	if d.Category == endpoint.CategoryAuth {
		e.session.BeginLogin()
	}

	resp, attempts, err := e.send(ctx, e.buildRequest(d))
	outcome.Attempts = attempts

	// An auth endpoint may surface a challenge; solve it and replay the
	// login once with the answer folded in.
	if err == nil && d.Category == endpoint.CategoryAuth && e.session.Mode() == session.ModeChallengeRequired {
		if _, cerr := e.session.ResolveChallenge(ctx); cerr == nil {
			req := e.buildRequest(d)
			e.injectSolution(req)
			var retryAttempts int
			resp, retryAttempts, err = e.send(ctx, req)
			outcome.Attempts += retryAttempts
		}
	}

	// A protected endpoint rejecting the session gets one replay after the
	// session manager has absorbed the re-auth signal.
	if err == nil && isAuthStatus(resp.StatusCode) && d.Category != endpoint.CategoryAuth {
		var retryAttempts int
		resp, retryAttempts, err = e.send(ctx, e.buildRequest(d))
		outcome.Attempts += retryAttempts
	}

	outcome.Elapsed = time.Since(start)

	if err != nil {
		if errors.GetErrorType(err) == errors.Cancelled {
			outcome.Status = StatusSkipped
		} else {
			outcome.Status = StatusNetworkError
		}
		outcome.Error = err.Error()
		return outcome
	}

	outcome.StatusCode = resp.StatusCode
	outcome.Summary = summarize(resp.ContentType, resp.Body.Raw)

	switch {
	case isAuthStatus(resp.StatusCode):
		outcome.Status = StatusAuthRequired
		outcome.Error = errors.NewAuthRequiredError(d.ExampleURL, resp.StatusCode).Error()
	case resp.StatusCode >= 400:
		outcome.Status = StatusHTTPError
		outcome.Error = errors.NewHttpError(d.ExampleURL, resp.StatusCode).Error()
	case session.DetectChallenge(resp) != nil:
		// A 2xx page still gated by a challenge is not a verified endpoint.
		outcome.Status = StatusAuthRequired
		outcome.Error = errors.NewChallengeUnsolvedError(d.ExampleURL, "challenge marker in response", nil).Error()
	default:
		outcome.Status = StatusSuccess
	}
	return outcome
}

// send paces, applies session state, and executes one request under the
// retry policy. Only network and timeout failures are retried; every
// received response is observed by the session manager.
func (e *Engine) send(ctx context.Context, req *transport.Request) (*transport.Response, int, error) {
	e.session.Apply(req)

	var resp *transport.Response
	result := e.retrier.Do(ctx, "verify", req.URL, func(ctx context.Context) error {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return errors.NewCancelledError(req.URL, "rate_wait")
			}
		}

		var err error
		if isWebSocketURL(req.URL) && e.wsProber != nil {
			resp, err = e.wsProber.Probe(ctx, req, e.cfg.PerCallTimeout)
		} else {
			resp, err = e.transport.Send(ctx, req, e.cfg.PerCallTimeout)
		}
		if err != nil {
			e.log.ErrorEvent(err, req.URL, "verify")
			return err
		}

		e.session.Observe(resp)
		e.log.RequestEvent(req.Method, req.URL, resp.StatusCode, resp.Duration)
		return nil
	})

	if !result.Success {
		return nil, result.Attempts, result.LastError
	}
	return resp, result.Attempts, nil
}

// buildRequest materializes a live request from a descriptor: its example
// URL, required headers, stable cookies, and captured body shape.
func (e *Engine) buildRequest(d *endpoint.Descriptor) *transport.Request {
	req := &transport.Request{
		Method:  d.Method,
		URL:     d.ExampleURL,
		Headers: d.RequiredHeaders(),
		Cookies: make(map[string]string, len(d.Cookies)),
	}
	for name, value := range e.cfg.ExtraHeaders {
		if _, ok := req.Headers[name]; !ok {
			req.Headers[name] = value
		}
	}
	for name, value := range d.Cookies {
		req.Cookies[name] = value
	}

	if d.Body.Kind != capture.BodyEmpty {
		req.Body = d.Body.Raw
		if _, ok := req.Headers["Content-Type"]; !ok {
			switch d.Body.Kind {
			case capture.BodyJSON:
				req.Headers["Content-Type"] = "application/json"
			case capture.BodyForm:
				req.Headers["Content-Type"] = "application/x-www-form-urlencoded"
			}
		}
	}
	return req
}

// injectSolution folds a solved challenge answer into a login request body.
func (e *Engine) injectSolution(req *transport.Request) {
	sol := e.session.TakeSolution()
	if sol == nil {
		return
	}

	if strings.HasPrefix(strings.TrimSpace(req.Body), "{") {
		var obj map[string]interface{}
		if err := json.Unmarshal([]byte(req.Body), &obj); err == nil {
			obj[sol.Field] = sol.Value
			for name, value := range sol.Extra {
				if _, ok := obj[name]; !ok {
					obj[name] = value
				}
			}
			if raw, err := json.Marshal(obj); err == nil {
				req.Body = string(raw)
			}
		}
		return
	}

	values, err := url.ParseQuery(req.Body)
	if err != nil {
		values = url.Values{}
	}
	values.Set(sol.Field, sol.Value)
	for name, value := range sol.Extra {
		if values.Get(name) == "" {
			values.Set(name, value)
		}
	}
	req.Body = values.Encode()
}

func skippedOutcome(d *endpoint.Descriptor, reason string) *Outcome {
	return &Outcome{
		Method:       d.Method,
		PathTemplate: d.PathTemplate,
		Category:     string(d.Category),
		Priority:     d.Priority,
		Status:       StatusSkipped,
		Error:        reason,
	}
}

func isAuthStatus(code int) bool {
	return code == 401 || code == 403
}

func isWebSocketURL(rawURL string) bool {
	return strings.HasPrefix(rawURL, "ws://") || strings.HasPrefix(rawURL, "wss://")
}
