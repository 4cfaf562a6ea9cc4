package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Md-Abu-Bakkar/Universal-API-Testing/internal/capture"
	"github.com/Md-Abu-Bakkar/Universal-API-Testing/internal/errors"
)

func TestClientSendDecoratesRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "k1" {
			t.Errorf("X-Api-Key = %q, want k1", r.Header.Get("X-Api-Key"))
		}
		if r.Header.Get("User-Agent") == "" {
			t.Error("User-Agent not set")
		}
		if c, err := r.Cookie("sid"); err != nil || c.Value != "abc" {
			t.Errorf("sid cookie = %v, %v, want abc", c, err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewClient(DefaultClientConfig())
	defer c.Close()

	resp, err := c.Send(context.Background(), &Request{
		Method:  "GET",
		URL:     srv.URL + "/api/ping",
		Headers: map[string]string{"X-Api-Key": "k1"},
		Cookies: map[string]string{"sid": "abc"},
	}, 5*time.Second)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if resp.StatusCode != 200 {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if resp.Body.Kind != capture.BodyJSON {
		t.Errorf("body kind = %s, want json", resp.Body.Kind)
	}
	if !strings.HasSuffix(resp.FinalURL, "/api/ping") {
		t.Errorf("FinalURL = %s, want .../api/ping", resp.FinalURL)
	}
	if resp.Duration <= 0 {
		t.Error("Duration not recorded")
	}
}

func TestClientHTTPErrorReturnedInResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(DefaultClientConfig())
	defer c.Close()

	resp, err := c.Send(context.Background(), &Request{Method: "GET", URL: srv.URL}, 5*time.Second)
	if err != nil {
		t.Fatalf("HTTP error surfaced as transport error: %v", err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestClientRedirectCapReturnsLastResponse(t *testing.T) {
	var hops int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hops, 1)
		http.Redirect(w, r, "/next", http.StatusFound)
	}))
	defer srv.Close()

	c := NewClient(DefaultClientConfig())
	defer c.Close()

	resp, err := c.Send(context.Background(), &Request{Method: "GET", URL: srv.URL}, 5*time.Second)
	if err != nil {
		t.Fatalf("capped redirect chain surfaced as error: %v", err)
	}
	if resp.StatusCode != http.StatusFound {
		t.Errorf("status = %d, want 302 (last response of the chain)", resp.StatusCode)
	}
	// Initial request plus at most ten follows.
	if got := atomic.LoadInt32(&hops); got > 11 {
		t.Errorf("redirect loop made %d requests, want at most 11", got)
	}
}

func TestClientBodyCapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		chunk := strings.Repeat("a", 64*1024)
		for i := 0; i < 32; i++ {
			w.Write([]byte(chunk))
		}
	}))
	defer srv.Close()

	c := NewClient(DefaultClientConfig())
	defer c.Close()

	resp, err := c.Send(context.Background(), &Request{Method: "GET", URL: srv.URL}, 10*time.Second)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if len(resp.Body.Raw) != maxBodyRead {
		t.Errorf("retained body = %d bytes, want %d", len(resp.Body.Raw), maxBodyRead)
	}
}

func TestClientConnectionRefusedCategorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	dead := srv.URL
	srv.Close()

	c := NewClient(DefaultClientConfig())
	defer c.Close()

	_, err := c.Send(context.Background(), &Request{Method: "GET", URL: dead}, 2*time.Second)
	if err == nil {
		t.Fatal("expected error dialing a closed server")
	}
	if got := errors.GetErrorType(err); got != errors.Network {
		t.Errorf("error type = %s, want network", got)
	}
}

func TestClientTimeoutCategorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewClient(DefaultClientConfig())
	defer c.Close()

	_, err := c.Send(context.Background(), &Request{Method: "GET", URL: srv.URL}, 20*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if got := errors.GetErrorType(err); got != errors.Timeout {
		t.Errorf("error type = %s, want timeout", got)
	}
}

func TestClientRejectsUnbuildableRequest(t *testing.T) {
	c := NewClient(DefaultClientConfig())
	defer c.Close()

	_, err := c.Send(context.Background(), &Request{Method: "BAD METHOD", URL: "http://x"}, time.Second)
	if err == nil {
		t.Fatal("expected request creation error")
	}
	if got := errors.GetErrorType(err); got != errors.MalformedRecord {
		t.Errorf("error type = %s, want malformed-record", got)
	}
}
