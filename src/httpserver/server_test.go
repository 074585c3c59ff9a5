package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"garnix-insights/src/credentials"
	"garnix-insights/src/dispatch"
	"garnix-insights/src/failure"
	"garnix-insights/src/garnix"
	"garnix-insights/src/garnix/garnixtest"
)

// newTestServer wires an HTTP server to a fake Garnix API. envToken is the
// process-level default token.
func newTestServer(t *testing.T, envToken string) (*httptest.Server, *garnixtest.Server) {
	t.Helper()
	fake := garnixtest.NewServer(t)
	d := dispatch.New(fake.Client(garnix.WithRetryPolicy(garnix.RetryPolicy{MaxAttempts: 1})), credentials.NewResolver(envToken))
	srv := httptest.NewServer(New(d, WithVersion("test")).Handler())
	t.Cleanup(srv.Close)
	return srv, fake
}

func decodeError(t *testing.T, resp *http.Response) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("error body is not JSON: %v", err)
	}
	return body
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, "")

	for _, path := range []string{"/health", "/api/v1/health"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		var body HealthResponse
		json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK || body.Status != "healthy" || body.Version != "test" {
			t.Errorf("GET %s = %d %+v", path, resp.StatusCode, body)
		}
	}
}

func TestPostBuildStatus(t *testing.T) {
	srv, _ := newTestServer(t, "")

	payload := `{"jwt_token": "` + garnixtest.Token + `", "commit_id": "` + garnixtest.CommitID + `"}`
	resp, err := http.Post(srv.URL+"/api/v1/build-status", "application/json", strings.NewReader(payload))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var body struct {
		Summary struct {
			Total, Passed, Failed, Pending int
		} `json:"summary"`
		Packages []struct {
			Name string `json:"name"`
		} `json:"packages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Summary.Total != 3 || body.Summary.Passed != 2 || body.Summary.Failed != 1 || len(body.Packages) != 3 {
		t.Errorf("body = %+v", body)
	}
}

func TestGetBuildStatus_TokenSources(t *testing.T) {
	srv, _ := newTestServer(t, "")
	url := srv.URL + "/api/v1/build-status/" + garnixtest.CommitID

	tests := []struct {
		name  string
		setup func(r *http.Request)
	}{
		{name: "bearer", setup: func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+garnixtest.Token) }},
		{name: "custom header", setup: func(r *http.Request) { r.Header.Set("X-Garnix-Token", garnixtest.Token) }},
		{name: "cookie", setup: func(r *http.Request) { r.AddCookie(&http.Cookie{Name: garnix.CookieName, Value: garnixtest.Token}) }},
		{name: "query", setup: func(r *http.Request) { r.URL.RawQuery = "token=" + garnixtest.Token }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, url, nil)
			tt.setup(req)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("GET: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Errorf("status = %d, want 200", resp.StatusCode)
			}
		})
	}
}

func TestGetBuildStatus_PlainWithLogs(t *testing.T) {
	srv, fake := newTestServer(t, garnixtest.Token)

	resp, err := http.Get(srv.URL + "/api/v1/build-status/" + garnixtest.CommitID + "?format=plain&logs=true")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain") {
		t.Errorf("Content-Type = %q", resp.Header.Get("Content-Type"))
	}
	if string(body) != "hello\tpassed\nworld\tpassed\nbroken\tfailed\n" {
		t.Errorf("body = %q", body)
	}
	if fake.Hits("/build-logs") != 1 {
		t.Errorf("log fetches = %d, want 1", fake.Hits("/build-logs"))
	}
}

func TestErrors(t *testing.T) {
	tests := []struct {
		name       string
		envToken   string
		method     string
		path       string
		body       string
		wantStatus int
		wantClass  failure.Class
		wantCode   string
	}{
		{
			name: "missing token", method: http.MethodGet,
			path:       "/api/v1/build-status/" + garnixtest.CommitID,
			wantStatus: http.StatusUnauthorized, wantClass: failure.MissingCredential, wantCode: "MISSING_TOKEN",
		},
		{
			name: "rejected token", method: http.MethodGet,
			path:       "/api/v1/build-status/" + garnixtest.CommitID + "?token=wrong",
			wantStatus: http.StatusUnauthorized, wantClass: failure.AuthRejected, wantCode: "AUTHENTICATION_FAILED",
		},
		{
			name: "unknown commit", envToken: garnixtest.Token, method: http.MethodGet,
			path:       "/api/v1/build-status/0000000",
			wantStatus: http.StatusNotFound, wantClass: failure.NotFound, wantCode: "NOT_FOUND",
		},
		{
			name: "unknown build", envToken: garnixtest.Token, method: http.MethodGet,
			path:       "/api/v1/logs/nope",
			wantStatus: http.StatusNotFound, wantClass: failure.NotFound, wantCode: "NOT_FOUND",
		},
		{
			name: "bad format", envToken: garnixtest.Token, method: http.MethodGet,
			path:       "/api/v1/build-status/abc?format=xml",
			wantStatus: http.StatusBadRequest, wantClass: failure.InvalidRequest, wantCode: "INVALID_REQUEST",
		},
		{
			name: "malformed body", envToken: garnixtest.Token, method: http.MethodPost,
			path: "/api/v1/build-status", body: `{"commit_id": `,
			wantStatus: http.StatusBadRequest, wantClass: failure.InvalidRequest, wantCode: "INVALID_REQUEST",
		},
		{
			name: "missing commit", envToken: garnixtest.Token, method: http.MethodPost,
			path: "/api/v1/build-status", body: `{}`,
			wantStatus: http.StatusBadRequest, wantClass: failure.InvalidRequest, wantCode: "INVALID_REQUEST",
		},
		{
			name: "unknown route", method: http.MethodGet,
			path:       "/api/v2/anything",
			wantStatus: http.StatusNotFound, wantClass: failure.NotFound, wantCode: "NOT_FOUND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, tt.envToken)

			req, _ := http.NewRequest(tt.method, srv.URL+tt.path, strings.NewReader(tt.body))
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			body := decodeError(t, resp)
			if body.Error.Class != tt.wantClass || body.Error.Code != tt.wantCode {
				t.Errorf("error = %+v, want class %s code %s", body.Error, tt.wantClass, tt.wantCode)
			}
			if body.RequestID == "" {
				t.Error("error response has no request_id")
			}
		})
	}
}

func TestUpstreamFailureIsBadGateway(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer upstream.Close()

	client := garnix.NewClient(
		garnix.WithBaseURL(upstream.URL),
		garnix.WithRetryPolicy(garnix.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}),
	)
	srv := httptest.NewServer(New(dispatch.New(client, credentials.NewResolver("t"))).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/build-status/abc")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", resp.StatusCode)
	}
	if body := decodeError(t, resp); body.Error.Class != failure.NetworkTransient {
		t.Errorf("class = %q, want network_transient", body.Error.Class)
	}
}

func TestValidateTokenEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, "")

	tests := []struct {
		body string
		want bool
	}{
		{body: `{"token": "` + garnixtest.Token + `"}`, want: true},
		{body: `{"token": "wrong"}`, want: false},
	}
	for _, tt := range tests {
		resp, err := http.Post(srv.URL+"/api/v1/validate-token", "application/json", strings.NewReader(tt.body))
		if err != nil {
			t.Fatalf("POST: %v", err)
		}
		var got struct {
			Valid bool `json:"valid"`
		}
		json.NewDecoder(resp.Body).Decode(&got)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK || got.Valid != tt.want {
			t.Errorf("validate %s = %d valid=%v, want 200 valid=%v", tt.body, resp.StatusCode, got.Valid, tt.want)
		}
	}
}

func TestIndex(t *testing.T) {
	srv, _ := newTestServer(t, "")
	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "POST /api/v1/build-status") {
		t.Errorf("index = %s", body)
	}
}

func TestConcurrentRequests(t *testing.T) {
	srv, fake := newTestServer(t, garnixtest.Token)
	fake.SetDelay(10 * time.Millisecond)

	var wg sync.WaitGroup
	errs := make(chan string, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := http.Get(srv.URL + "/api/v1/build-status/" + garnixtest.CommitID + "?format=plain")
			if err != nil {
				errs <- err.Error()
				return
			}
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK || strings.Count(string(body), "\n") != 3 {
				errs <- string(body)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Errorf("concurrent request failed: %s", e)
	}
}

func TestClientDisconnectCancelsUpstream(t *testing.T) {
	srv, fake := newTestServer(t, garnixtest.Token)
	fake.SetDelay(5 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/build-status/"+garnixtest.CommitID, nil)

	start := time.Now()
	if _, err := http.DefaultClient.Do(req); err == nil {
		t.Fatal("expected the client request to time out")
	}
	// Closing the test server waits for handlers; it must not take the full upstream delay.
	srv.Close()
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("handler kept running for %v after the client left", elapsed)
	}
}

func TestStatusCode(t *testing.T) {
	tests := map[failure.Class]int{
		failure.InvalidRequest:    400,
		failure.MissingCredential: 401,
		failure.AuthRejected:      401,
		failure.NotFound:          404,
		failure.NetworkTransient:  502,
		failure.ParseError:        500,
		failure.Internal:          500,
	}
	for class, want := range tests {
		if got := StatusCode(class); got != want {
			t.Errorf("StatusCode(%s) = %d, want %d", class, got, want)
		}
	}
}
