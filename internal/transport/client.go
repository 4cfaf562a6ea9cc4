// Package transport provides the HTTP transport capability used to
// exercise endpoints against a live target.
package transport

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/Md-Abu-Bakkar/Universal-API-Testing/internal/capture"
	"github.com/Md-Abu-Bakkar/Universal-API-Testing/internal/errors"
)

// maxBodyRead caps how much of a response body is retained (1MB).
const maxBodyRead = 1 << 20

// Request is one outbound call, fully decorated before sending.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Cookies map[string]string
	Body    string
}

// Response is the observed result of one call. The body is resolved into
// a tagged variant exactly once, here.
type Response struct {
	StatusCode  int
	Headers     http.Header
	ContentType string
	Body        capture.Body
	FinalURL    string
	Duration    time.Duration
}

// Transport is the external capability contract for sending requests.
type Transport interface {
	Send(ctx context.Context, req *Request, timeout time.Duration) (*Response, error)
}

// ClientConfig holds configuration for the default HTTP transport.
type ClientConfig struct {
	UserAgent           string
	SkipTLSVerify       bool
	MaxIdleConns        int
	MaxIdleConnsPerHost int
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		UserAgent:           "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36",
		SkipTLSVerify:       true,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
	}
}

// Client is the default Transport on net/http with pooled connections.
type Client struct {
	client    *http.Client
	userAgent string
}

// NewClient creates the default HTTP transport.
func NewClient(config ClientConfig) *Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          config.MaxIdleConns,
		MaxIdleConnsPerHost:   config.MaxIdleConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: config.SkipTLSVerify,
		},
	}

	return &Client{
		client: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		userAgent: config.UserAgent,
	}
}

// Send performs one request with the given per-call timeout.
// Network failures are categorized; HTTP error statuses are returned in
// the Response, not as an error, so the caller can classify them.
func (c *Client) Send(ctx context.Context, req *Request, timeout time.Duration) (*Response, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()

	var bodyReader io.Reader
	if req.Body != "" {
		bodyReader = strings.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bodyReader)
	if err != nil {
		return nil, errors.NewScanError(errors.MalformedRecord, req.URL, "request_creation", "failed to create request", err)
	}

	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set("Accept", "application/json, text/plain, */*")
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	for name, value := range req.Cookies {
		httpReq.AddCookie(&http.Cookie{Name: name, Value: value})
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, errors.Categorize(err, req.URL)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyRead))
	if err != nil {
		return nil, errors.NewNetworkError(req.URL, "body_read", err)
	}

	contentType := resp.Header.Get("Content-Type")
	return &Response{
		StatusCode:  resp.StatusCode,
		Headers:     resp.Header,
		ContentType: contentType,
		Body:        capture.ClassifyBody(string(body), contentType),
		FinalURL:    resp.Request.URL.String(),
		Duration:    time.Since(start),
	}, nil
}

// Close releases pooled connections.
func (c *Client) Close() {
	c.client.CloseIdleConnections()
}
