package apitester

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/Md-Abu-Bakkar/Universal-API-Testing/internal/capture"
	"github.com/Md-Abu-Bakkar/Universal-API-Testing/internal/classify"
	"github.com/Md-Abu-Bakkar/Universal-API-Testing/internal/endpoint"
	"github.com/Md-Abu-Bakkar/Universal-API-Testing/internal/errors"
	"github.com/Md-Abu-Bakkar/Universal-API-Testing/internal/logger"
	"github.com/Md-Abu-Bakkar/Universal-API-Testing/internal/report"
	"github.com/Md-Abu-Bakkar/Universal-API-Testing/internal/session"
	"github.com/Md-Abu-Bakkar/Universal-API-Testing/internal/store"
	"github.com/Md-Abu-Bakkar/Universal-API-Testing/internal/transport"
	"github.com/Md-Abu-Bakkar/Universal-API-Testing/internal/verify"
)

// Option customizes a Runner.
type Option func(*Runner)

// WithConfig replaces the default configuration.
func WithConfig(cfg *Config) Option {
	return func(r *Runner) { r.cfg = cfg }
}

// WithTransport injects a custom transport, typically for testing.
func WithTransport(t transport.Transport) Option {
	return func(r *Runner) { r.transport = t }
}

// WithResolver injects the challenge-solving capability. The built-in
// resolver only handles arithmetic challenges.
func WithResolver(res session.Resolver) Option {
	return func(r *Runner) { r.resolver = res }
}

// WithLogger injects a logger.
func WithLogger(log *logger.Logger) Option {
	return func(r *Runner) { r.log = log }
}

// WithStore injects an already-open store, overriding StorePath.
func WithStore(st *store.Store) Option {
	return func(r *Runner) {
		r.store = st
		r.ownStore = false
	}
}

// Runner drives a full verification run: parse, normalize, classify,
// verify, aggregate, persist.
type Runner struct {
	cfg       *Config
	transport transport.Transport
	wsProber  *transport.WSProber
	resolver  session.Resolver
	store     *store.Store
	ownStore  bool
	log       *logger.Logger
}

// New creates a runner. A nil-option runner uses the default config, the
// pooled HTTP transport, the built-in math resolver, and the store at
// the configured path.
func New(opts ...Option) (*Runner, error) {
	r := &Runner{
		cfg:      DefaultConfig(),
		resolver: session.NewMathResolver(),
		ownStore: true,
	}
	for _, opt := range opts {
		opt(r)
	}

	if err := r.cfg.Validate(); err != nil {
		return nil, err
	}

	if r.log == nil {
		level, err := logger.ParseLevel(r.cfg.LogLevel)
		if err != nil {
			return nil, err
		}
		r.log = logger.New(logger.Config{Level: level, Pretty: r.cfg.PrettyLogs})
	}

	if r.transport == nil {
		clientCfg := transport.DefaultClientConfig()
		clientCfg.SkipTLSVerify = r.cfg.SkipTLSVerify
		if r.cfg.UserAgent != "" {
			clientCfg.UserAgent = r.cfg.UserAgent
		}
		r.transport = transport.NewClient(clientCfg)
	}
	r.wsProber = transport.NewWSProber(r.cfg.SkipTLSVerify)

	if r.store == nil && r.cfg.StorePath != "" {
		st, err := store.Open(r.cfg.StorePath)
		if err != nil {
			return nil, err
		}
		r.store = st
	}

	return r, nil
}

// Close releases the runner's resources.
func (r *Runner) Close() error {
	if c, ok := r.transport.(*transport.Client); ok {
		c.Close()
	}
	if r.store != nil && r.ownStore {
		return r.store.Close()
	}
	return nil
}

// Endpoints parses a capture and returns the classified descriptor set
// without touching the network. This is the dry-run path.
func (r *Runner) Endpoints(captureText string) ([]*endpoint.Descriptor, *capture.Capture, error) {
	parser := capture.NewParser(r.log)
	cap := parser.Parse(captureText)
	if len(cap.Records) == 0 {
		return nil, cap, errors.NewMalformedRecordError(0, "no usable request records in capture")
	}

	normalizer := endpoint.NewNormalizer(endpoint.CompilePatterns(r.cfg.VolatileSegmentPatterns), r.log)
	descriptors := normalizer.Normalize(cap)
	descriptors = classify.NewClassifier().Classify(descriptors)
	return descriptors, cap, nil
}

// Run executes the full pipeline over a raw capture and returns the
// immutable report. The context cancels verification between endpoints.
func (r *Runner) Run(ctx context.Context, captureText string) (*report.Report, error) {
	runID := uuid.NewString()
	log := r.log.WithRun(runID)
	started := time.Now()

	descriptors, cap, err := r.Endpoints(captureText)
	if err != nil {
		return nil, err
	}
	log.Infof("reconstructed %d endpoints from %d records", len(descriptors), len(cap.Records))

	sess := session.NewManager(r.resolver, session.Config{
		ChallengeTimeout:     r.cfg.ChallengeTimeout(),
		MaxChallengeAttempts: r.cfg.MaxChallengeAttempts,
	}, log)

	if r.cfg.ResumeSessionFrom != "" && r.store != nil {
		state, ok, err := r.store.LoadSession(r.cfg.ResumeSessionFrom)
		if err != nil {
			return nil, err
		}
		if ok {
			sess.Import(state)
			log.Infof("resumed session state from run %s", r.cfg.ResumeSessionFrom)
		}
	}

	engine := verify.NewEngine(r.transport, r.wsProber, sess, verify.Config{
		Retry: errors.RetryConfig{
			MaxAttempts:    r.cfg.MaxRetries,
			InitialDelay:   r.cfg.RetryBackoffBase(),
			MaxDelay:       30 * time.Second,
			Multiplier:     2.0,
			Jitter:         0.2,
			RetryableTypes: []errors.ErrorType{errors.Network, errors.Timeout},
		},
		PerCallTimeout:    r.cfg.PerCallTimeout(),
		RequestsPerSecond: r.cfg.RequestsPerSecond,
		MaxEndpoints:      r.cfg.MaxEndpointsPerRun,
		ExtraHeaders:      r.cfg.Headers,
	}, log)

	outcomes := engine.Run(ctx, descriptors)

	rep, err := report.NewAggregator().Aggregate(report.Input{
		RunID:            runID,
		Target:           targetHost(descriptors),
		StartedAt:        started,
		FinishedAt:       time.Now(),
		FinalSessionMode: string(sess.Mode()),
		TotalRecords:     len(cap.Records),
		SkippedRecords:   cap.Skipped,
		Descriptors:      descriptors,
		Outcomes:         outcomes,
	})
	if err != nil {
		return nil, fmt.Errorf("report aggregation failed: %w", err)
	}

	r.persist(rep, sess, log)
	return rep, nil
}

// persist saves the run artifacts, logging failures without failing the run.
func (r *Runner) persist(rep *report.Report, sess *session.Manager, log *logger.Logger) {
	if r.store == nil {
		return
	}
	if err := r.store.SaveReport(rep); err != nil {
		log.Errorf("failed to persist report: %v", err)
	}
	if err := r.store.SaveSession(rep.RunID, sess.Export()); err != nil {
		log.Errorf("failed to persist session state: %v", err)
	}
}

// targetHost derives the run's target label from the first descriptor.
func targetHost(descriptors []*endpoint.Descriptor) string {
	if len(descriptors) == 0 {
		return ""
	}
	u, err := url.Parse(descriptors[0].ExampleURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Host
}
