package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/wolfman30/voice-booking-platform/internal/voice"
	"github.com/wolfman30/voice-booking-platform/pkg/logging"
)

const toolCallBody = `{"message":{"type":"tool-calls","toolCallList":[{"id":"tc-1","type":"function","function":{"name":"check_availability","arguments":{"dateTime":"2025-06-02T10:00:00"}}}]}}`

func testLogger() *logging.Logger {
	return logging.NewWithWriter(&bytes.Buffer{}, "error")
}

func event(method, path, body string) events.APIGatewayV2HTTPRequest {
	return events.APIGatewayV2HTTPRequest{
		RawPath: path,
		Body:    body,
		RequestContext: events.APIGatewayV2HTTPRequestContext{
			RequestID: "apigw-req-1",
			HTTP: events.APIGatewayV2HTTPRequestContextHTTPDescription{
				Method:   method,
				Path:     path,
				SourceIP: "198.51.100.7",
			},
		},
	}
}

func decodeFallback(t *testing.T, resp events.APIGatewayV2HTTPResponse) voice.Response {
	t.Helper()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	var out voice.Response
	if err := json.Unmarshal([]byte(resp.Body), &out); err != nil {
		t.Fatalf("decode fallback body: %v", err)
	}
	if len(out.Results) != 1 {
		t.Fatalf("expected one result, got %d", len(out.Results))
	}
	return out
}

func TestHandleHealth(t *testing.T) {
	cfg := config{upstreamBaseURL: "http://example.com", upstreamTimeout: time.Second}
	resp, err := handle(context.Background(), cfg, &http.Client{}, testLogger(), event(http.MethodGet, "/health", ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK || resp.Body != "ok" {
		t.Fatalf("unexpected health response %d %q", resp.StatusCode, resp.Body)
	}
}

func TestHandleRejectsNonPostAndUnknownPath(t *testing.T) {
	cfg := config{upstreamBaseURL: "http://example.com", upstreamTimeout: time.Second}

	resp, _ := handle(context.Background(), cfg, &http.Client{}, testLogger(), event(http.MethodGet, functionCallPath, ""))
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected status %d, got %d", http.StatusMethodNotAllowed, resp.StatusCode)
	}
	resp, _ = handle(context.Background(), cfg, &http.Client{}, testLogger(), event(http.MethodPost, "/webhooks/unknown", ""))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, resp.StatusCode)
	}
}

func TestHandleForwardsFunctionCall(t *testing.T) {
	type captured struct {
		path    string
		query   string
		headers http.Header
		body    string
	}
	reqCh := make(chan captured, 1)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		reqCh <- captured{path: r.URL.Path, query: r.URL.RawQuery, headers: r.Header.Clone(), body: string(body)}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[{"toolCallId":"tc-1","result":"That time is available."}]}`))
	}))
	defer upstream.Close()

	cfg := config{upstreamBaseURL: upstream.URL, upstreamTimeout: time.Second}
	evt := event(http.MethodPost, functionCallPath, base64.StdEncoding.EncodeToString([]byte(toolCallBody)))
	evt.IsBase64Encoded = true
	evt.RawQueryString = "assistant=a1"
	evt.Headers = map[string]string{"X-Vapi-Secret": "s3cret"}

	resp, err := handle(context.Background(), cfg, upstream.Client(), testLogger(), evt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK || !strings.Contains(resp.Body, "available") {
		t.Fatalf("unexpected response %d %q", resp.StatusCode, resp.Body)
	}
	if ct := resp.Headers["content-type"]; ct != "application/json" {
		t.Fatalf("expected content-type to be forwarded, got %q", ct)
	}

	select {
	case got := <-reqCh:
		if got.path != functionCallPath || got.query != "assistant=a1" {
			t.Fatalf("unexpected upstream target %s?%s", got.path, got.query)
		}
		if got.body != toolCallBody {
			t.Fatalf("expected decoded body, got %q", got.body)
		}
		if got.headers.Get("X-Vapi-Secret") != "s3cret" {
			t.Fatalf("expected secret header to be forwarded")
		}
		if got.headers.Get("X-Request-ID") != "apigw-req-1" {
			t.Fatalf("expected request id, got %q", got.headers.Get("X-Request-ID"))
		}
		if got.headers.Get("X-Real-IP") != "198.51.100.7" {
			t.Fatalf("expected source ip, got %q", got.headers.Get("X-Real-IP"))
		}
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for upstream request")
	}
}

func TestHandleFallsBackWhenUpstreamFails(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer upstream.Close()

	cfg := config{upstreamBaseURL: upstream.URL, upstreamTimeout: time.Second}
	resp, err := handle(context.Background(), cfg, upstream.Client(), testLogger(), event(http.MethodPost, functionCallPath, toolCallBody))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := decodeFallback(t, resp)
	if out.Results[0].ToolCallID != "tc-1" {
		t.Fatalf("expected tool call id to be echoed, got %q", out.Results[0].ToolCallID)
	}
	if !strings.Contains(out.Results[0].Error, "unavailable") {
		t.Fatalf("expected spoken apology, got %q", out.Results[0].Error)
	}

	upstream.Close()
	resp, _ = handle(context.Background(), cfg, &http.Client{Timeout: time.Second}, testLogger(), event(http.MethodPost, functionCallPath, toolCallBody))
	decodeFallback(t, resp)
}

func TestHandleInvalidBase64Body(t *testing.T) {
	cfg := config{upstreamBaseURL: "http://example.com", upstreamTimeout: time.Second}
	evt := event(http.MethodPost, functionCallPath, "not-base64!")
	evt.IsBase64Encoded = true

	resp, err := handle(context.Background(), cfg, &http.Client{}, testLogger(), evt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	decodeFallback(t, resp)
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("UPSTREAM_BASE_URL", "")
	if _, err := loadConfig(); err == nil {
		t.Fatalf("expected error without upstream url")
	}

	t.Setenv("UPSTREAM_BASE_URL", "https://api.example.com/")
	t.Setenv("UPSTREAM_TIMEOUT", "3s")
	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.upstreamBaseURL != "https://api.example.com" || cfg.upstreamTimeout != 3*time.Second {
		t.Fatalf("unexpected config %+v", cfg)
	}

	t.Setenv("UPSTREAM_TIMEOUT", "soon")
	if _, err := loadConfig(); err == nil {
		t.Fatalf("expected error for invalid timeout")
	}
}
