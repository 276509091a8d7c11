package github

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Joxtacy/auto-assign-reviewers/pkg/types"
)

var testNow = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

// mockDoer is a simple mock for HTTPDoer that records requests.
type mockDoer struct {
	handler  func(req *http.Request) (*http.Response, error)
	requests []*http.Request
	mu       sync.Mutex
}

func (m *mockDoer) Do(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	return m.handler(req)
}

func (m *mockDoer) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func response(status int, body string, headers ...string) *http.Response {
	h := make(http.Header)
	for i := 0; i+1 < len(headers); i += 2 {
		h.Set(headers[i], headers[i+1])
	}
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     h,
	}
}

func newTestClient(handler func(req *http.Request) (*http.Response, error)) (*Client, *mockDoer) {
	doer := &mockDoer{handler: handler}
	return &Client{
		httpClient: doer,
		auth:       staticToken("ghs_testtoken"),
		now:        func() time.Time { return testNow },
		apiURL:     "https://api.github.test",
	}, doer
}

func TestNew_TokenValidation(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{name: "workflow token", token: "ghs_" + strings.Repeat("a", 36)},
		{name: "classic hex", token: strings.Repeat("ab", 20)},
		{name: "malformed", token: strings.Repeat("z", 45), wantErr: true},
		{name: "too short", token: "ghp_abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(context.Background(), Config{Token: tt.token, HTTPClient: &mockDoer{}})
			if tt.wantErr {
				if !errors.Is(err, types.ErrConfiguration) {
					t.Errorf("New() error = %v, want ErrConfiguration", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got, err := c.Token(context.Background(), "acme", "widgets")
			if err != nil || got != tt.token {
				t.Errorf("Token() = %q, %v; want %q", got, err, tt.token)
			}
			if c.apiURL != defaultAPIURL {
				t.Errorf("apiURL = %q, want %q", c.apiURL, defaultAPIURL)
			}
		})
	}
}

func TestNew_EnterpriseAPIURL(t *testing.T) {
	c, err := New(context.Background(), Config{
		Token:      "ghs_" + strings.Repeat("a", 36),
		HTTPClient: &mockDoer{},
		APIURL:     "https://ghe.example.com/api/v3/",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.apiURL != "https://ghe.example.com/api/v3" {
		t.Errorf("apiURL = %q", c.apiURL)
	}
}

func TestClassifyResponse(t *testing.T) {
	tests := []struct {
		resp      *http.Response
		wantErr   error
		wantReset time.Time
		name      string
	}{
		{name: "ok", resp: response(http.StatusOK, "{}")},
		{name: "created", resp: response(http.StatusCreated, "{}")},
		{
			name:      "429 with retry-after",
			resp:      response(http.StatusTooManyRequests, "", "Retry-After", "30"),
			wantErr:   types.ErrRateLimited,
			wantReset: testNow.Add(30 * time.Second),
		},
		{
			name:      "403 quota exhausted",
			resp:      response(http.StatusForbidden, "", "X-RateLimit-Remaining", "0", "X-RateLimit-Reset", "1792065600"),
			wantErr:   types.ErrRateLimited,
			wantReset: time.Unix(1792065600, 0),
		},
		{
			name:    "403 secondary rate limit message",
			resp:    response(http.StatusForbidden, `{"message":"You have exceeded a secondary rate limit"}`),
			wantErr: types.ErrRateLimited,
		},
		{
			name:    "403 permission",
			resp:    response(http.StatusForbidden, `{"message":"Resource not accessible by integration"}`, "X-RateLimit-Remaining", "4000"),
			wantErr: types.ErrGatewayUnavailable,
		},
		{name: "401", resp: response(http.StatusUnauthorized, ""), wantErr: types.ErrGatewayUnavailable},
		{name: "404", resp: response(http.StatusNotFound, ""), wantErr: types.ErrNotFound},
		{name: "502", resp: response(http.StatusBadGateway, ""), wantErr: types.ErrGatewayUnavailable},
		{name: "422", resp: response(http.StatusUnprocessableEntity, `{"message":"Validation Failed"}`), wantErr: types.ErrGatewayUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyResponse(tt.resp, testNow)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("classifyResponse() = %v, want %v", err, tt.wantErr)
			}
			var rl *types.RateLimitError
			if errors.As(err, &rl) && !rl.Reset.Equal(tt.wantReset) {
				t.Errorf("Reset = %v, want %v", rl.Reset, tt.wantReset)
			}
		})
	}
}

func TestClassifyResponse_ServerErrorsAreRetryable(t *testing.T) {
	err := classifyResponse(response(http.StatusServiceUnavailable, ""), testNow)
	if !types.Retryable(err) {
		t.Errorf("expected 503 to be retryable, got %v", err)
	}
	err = classifyResponse(response(http.StatusUnauthorized, ""), testNow)
	if types.Retryable(err) {
		t.Errorf("expected 401 to be terminal, got %v", err)
	}
}

func TestRateLimitReset(t *testing.T) {
	tests := []struct {
		name    string
		headers http.Header
		want    time.Time
	}{
		{name: "none", headers: http.Header{}, want: time.Time{}},
		{name: "retry-after wins", headers: http.Header{"Retry-After": {"5"}, "X-Ratelimit-Reset": {"1792065600"}}, want: testNow.Add(5 * time.Second)},
		{name: "reset epoch", headers: http.Header{"X-Ratelimit-Reset": {"1792065600"}}, want: time.Unix(1792065600, 0)},
		{name: "garbage", headers: http.Header{"Retry-After": {"soon"}, "X-Ratelimit-Reset": {"later"}}, want: time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rateLimitReset(tt.headers, testNow); !got.Equal(tt.want) {
				t.Errorf("rateLimitReset() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClient_DoRequest_Headers(t *testing.T) {
	c, doer := newTestClient(func(*http.Request) (*http.Response, error) {
		return response(http.StatusOK, "{}"), nil
	})

	resp, err := c.doRequest(context.Background(), http.MethodPost, c.apiURL+"/x", "acme", "widgets", map[string]any{"a": 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	drainAndCloseBody(resp.Body)

	req := doer.requests[0]
	if got := req.Header.Get("Authorization"); got != "Bearer ghs_testtoken" {
		t.Errorf("Authorization = %q", got)
	}
	if got := req.Header.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := req.Header.Get("X-GitHub-Api-Version"); got != apiVersion {
		t.Errorf("X-GitHub-Api-Version = %q", got)
	}
}

func TestClient_DoRequest_TransportFailure(t *testing.T) {
	c, _ := newTestClient(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})

	_, err := c.doRequest(context.Background(), http.MethodGet, c.apiURL+"/x", "acme", "widgets", nil)
	if !errors.Is(err, types.ErrGatewayUnavailable) {
		t.Errorf("error = %v, want ErrGatewayUnavailable", err)
	}
}

func TestClient_DoRequest_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c, _ := newTestClient(func(*http.Request) (*http.Response, error) {
		cancel()
		return nil, context.Canceled
	})

	_, err := c.doRequest(ctx, http.MethodGet, c.apiURL+"/x", "acme", "widgets", nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if errors.Is(err, types.ErrGatewayUnavailable) {
		t.Error("cancellation should not be reported as an outage")
	}
}
