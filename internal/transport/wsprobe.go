package transport

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Md-Abu-Bakkar/Universal-API-Testing/internal/capture"
	"github.com/Md-Abu-Bakkar/Universal-API-Testing/internal/errors"
)

// WSProber verifies ws:// and wss:// endpoints with a handshake dial.
type WSProber struct {
	dialer *websocket.Dialer
}

// NewWSProber creates a WebSocket prober.
func NewWSProber(skipTLSVerify bool) *WSProber {
	return &WSProber{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: skipTLSVerify,
			},
		},
	}
}

// Probe dials the endpoint and immediately closes the connection.
// A completed handshake counts as a successful verification; a rejected
// upgrade surfaces the server's HTTP status.
func (p *WSProber) Probe(ctx context.Context, req *Request, timeout time.Duration) (*Response, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	header := http.Header{}
	for k, v := range req.Headers {
		header.Set(k, v)
	}
	for name, value := range req.Cookies {
		header.Add("Cookie", name+"="+value)
	}

	start := time.Now()
	conn, resp, err := p.dialer.DialContext(ctx, req.URL, header)
	duration := time.Since(start)

	if err != nil {
		if resp != nil {
			// Handshake reached the server but the upgrade was refused.
			resp.Body.Close()
			return &Response{
				StatusCode: resp.StatusCode,
				Headers:    resp.Header,
				Body:       capture.Body{Kind: capture.BodyEmpty},
				FinalURL:   req.URL,
				Duration:   duration,
			}, nil
		}
		return nil, errors.Categorize(err, req.URL)
	}
	conn.Close()

	out := &Response{
		StatusCode: http.StatusSwitchingProtocols,
		Body:       capture.Body{Kind: capture.BodyEmpty},
		FinalURL:   req.URL,
		Duration:   duration,
	}
	if resp != nil {
		out.StatusCode = resp.StatusCode
		out.Headers = resp.Header
	}
	return out, nil
}
