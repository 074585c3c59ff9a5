// Package garnixtest provides an in-process fake of the Garnix API for tests.
package garnixtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"garnix-insights/src/garnix"
)

// Token is the only token the fake accepts.
const Token = "test-token"

// Fixture commit and build ids.
const (
	CommitID      = "abc1234def5678"
	FailedBuildID = "build-3"
)

// BuildStatusBody is a commit with two passed packages and one failed one.
const BuildStatusBody = `{
  "summary": {
    "repo_owner": "garnix-io",
    "repo_name": "garnix",
    "git_commit": "abc1234def5678",
    "branch": "main",
    "succeeded": 2,
    "failed": 1,
    "pending": 0,
    "cancelled": 0
  },
  "builds": [
    {"id": "build-1", "package": "hello", "system": "x86_64-linux", "status": "Success",
     "start_time": "2025-01-01T10:00:00Z", "end_time": "2025-01-01T10:00:30Z", "drv_path": "/nix/store/aaa-hello.drv"},
    {"id": "build-2", "package": "world", "system": "aarch64-darwin", "status": "Success",
     "start_time": "2025-01-01T10:00:00Z", "end_time": "2025-01-01T10:01:00Z"},
    {"id": "build-3", "package": "broken", "system": "x86_64-linux", "status": "Failed",
     "start_time": "2025-01-01T10:00:00Z", "end_time": "2025-01-01T10:00:05Z"}
  ],
  "runs": []
}`

// FailedLogBody is the log of FailedBuildID.
const FailedLogBody = `{
  "finished": true,
  "logs": [
    {"timestamp": "2025-01-01T10:00:01Z", "log_message": "building broken"},
    {"timestamp": "2025-01-01T10:00:04Z", "log_message": "\u001b[31merror:\u001b[0m builder failed with exit code 1"}
  ]
}`

// Server is a fake Garnix API. Unknown commits and builds answer 404, a
// wrong token answers 401.
type Server struct {
	*httptest.Server

	mu      sync.Mutex
	commits map[string]string
	logs    map[string]string
	hits    map[string]int
	delay   time.Duration
}

// NewServer starts a fake preloaded with the fixture commit and log. It is
// closed when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		commits: map[string]string{CommitID: BuildStatusBody},
		logs:    map[string]string{FailedBuildID: FailedLogBody},
		hits:    map[string]int{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /build-status", s.handleBuildStatus)
	mux.HandleFunc("POST /build-logs", s.handleBuildLogs)
	mux.HandleFunc("GET /user", s.handleUser)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// AddCommit registers a raw build-status body for commitID.
func (s *Server) AddCommit(commitID, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commits[commitID] = body
}

// AddLog registers a raw build-logs body for buildID.
func (s *Server) AddLog(buildID, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[buildID] = body
}

// SetDelay makes every response wait d before being written.
func (s *Server) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// Hits returns how many requests reached path, e.g. "/build-status".
func (s *Server) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// Client returns a garnix client pointed at the fake.
func (s *Server) Client(opts ...garnix.Option) *garnix.Client {
	return garnix.NewClient(append([]garnix.Option{garnix.WithBaseURL(s.URL)}, opts...)...)
}

func (s *Server) begin(w http.ResponseWriter, r *http.Request) bool {
	s.mu.Lock()
	s.hits[r.URL.Path]++
	delay := s.delay
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return false
		}
	}

	if strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ") != Token {
		writeJSON(w, http.StatusUnauthorized, `{"error": "invalid token"}`)
		return false
	}
	return true
}

func (s *Server) handleBuildStatus(w http.ResponseWriter, r *http.Request) {
	if !s.begin(w, r) {
		return
	}
	var req struct {
		CommitID string `json:"commit_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, `{"error": "bad request"}`)
		return
	}
	s.mu.Lock()
	body, ok := s.commits[req.CommitID]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, `{"error": "commit not found"}`)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleBuildLogs(w http.ResponseWriter, r *http.Request) {
	if !s.begin(w, r) {
		return
	}
	var req struct {
		BuildID string `json:"build_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, `{"error": "bad request"}`)
		return
	}
	s.mu.Lock()
	body, ok := s.logs[req.BuildID]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, `{"error": "build not found"}`)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	if !s.begin(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, `{"login": "tester"}`)
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(body))
}
