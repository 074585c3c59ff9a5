package dispatch

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"garnix-insights/src/credentials"
	"garnix-insights/src/failure"
	"garnix-insights/src/garnix/garnixtest"
	"garnix-insights/src/logger"
	"garnix-insights/src/render"
	"garnix-insights/src/report"
)

// fakeRemote records the tokens it was called with and serves canned data.
type fakeRemote struct {
	mu        sync.Mutex
	tokens    []string
	report    *report.BuildReport
	logs      map[string]*report.LogEntry
	statusErr error
	logErr    error
	valid     bool
}

func (f *fakeRemote) record(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, token)
}

func (f *fakeRemote) FetchBuildStatus(ctx context.Context, commitID, token string) (*report.BuildReport, error) {
	f.record(token)
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	// Hand out a copy so tests can reuse the fixture.
	r := *f.report
	r.Packages = append([]report.PackageBuild(nil), f.report.Packages...)
	return &r, nil
}

func (f *fakeRemote) FetchLog(ctx context.Context, buildID, token string) (*report.LogEntry, error) {
	f.record(token)
	if f.logErr != nil {
		return nil, f.logErr
	}
	entry, ok := f.logs[buildID]
	if !ok {
		return nil, failure.New(failure.NotFound, "no such build")
	}
	return entry, nil
}

func (f *fakeRemote) ValidateToken(ctx context.Context, token string) (bool, error) {
	f.record(token)
	return f.valid, nil
}

func newFake() *fakeRemote {
	return &fakeRemote{
		report: report.New("abc", []report.PackageBuild{
			{Name: "a", Status: report.Passed, BuildID: "1"},
			{Name: "b", Status: report.Failed, BuildID: "2"},
			{Name: "c", Status: report.Failed, BuildID: "3"},
			{Name: "d", Status: report.Failed},
		}),
		logs: map[string]*report.LogEntry{
			"1": {BuildID: "1", Lines: []string{"ok"}},
			"2": {BuildID: "2", Lines: []string{"boom"}},
		},
		valid: true,
	}
}

func TestBuildStatus_CredentialPrecedence(t *testing.T) {
	tests := []struct {
		name     string
		env      string
		explicit string
		payload  string
		want     string
	}{
		{name: "explicit", env: "env", explicit: "flag", payload: "body", want: "flag"},
		{name: "payload", env: "env", payload: "body", want: "body"},
		{name: "env", env: "env", want: "env"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFake()
			d := New(fake, credentials.NewResolver(tt.env))

			_, err := d.BuildStatus(context.Background(), Request{
				CommitID: "abc", ExplicitToken: tt.explicit, PayloadToken: tt.payload,
			})
			if err != nil {
				t.Fatalf("BuildStatus() unexpected error: %v", err)
			}
			if len(fake.tokens) != 1 || fake.tokens[0] != tt.want {
				t.Errorf("remote called with %v, want [%s]", fake.tokens, tt.want)
			}
		})
	}
}

func TestBuildStatus_MissingCredential(t *testing.T) {
	fake := newFake()
	d := New(fake, credentials.NewResolver(""))

	_, err := d.BuildStatus(context.Background(), Request{CommitID: "abc"})
	if !errors.Is(err, failure.ErrMissingCredential) {
		t.Errorf("error = %v, want missing credential", err)
	}
	if len(fake.tokens) != 0 {
		t.Error("remote should not be called without a credential")
	}
}

func TestBuildStatus_EmptyCommit(t *testing.T) {
	d := New(newFake(), credentials.NewResolver("env"))
	_, err := d.BuildStatus(context.Background(), Request{CommitID: "  "})
	if failure.ClassOf(err) != failure.InvalidRequest {
		t.Errorf("class = %q, want invalid_request", failure.ClassOf(err))
	}
}

func TestBuildStatus_AttachesFailedLogs(t *testing.T) {
	fake := newFake()
	d := New(fake, credentials.NewResolver("env"))

	res, err := d.BuildStatus(context.Background(), Request{CommitID: "abc", IncludeLogs: true, Format: render.Structured})
	if err != nil {
		t.Fatalf("BuildStatus() unexpected error: %v", err)
	}

	pkgs := res.Report.Packages
	if pkgs[0].Log != nil {
		t.Error("passed package should not get a log")
	}
	if pkgs[1].Log == nil || pkgs[1].Log.Lines[0] != "boom" {
		t.Errorf("failed package b log = %+v", pkgs[1].Log)
	}
	if pkgs[2].Log != nil {
		t.Error("package whose log is gone upstream should have no log")
	}
	if !strings.Contains(res.Output, `"boom"`) {
		t.Errorf("output missing log line:\n%s", res.Output)
	}
}

func TestBuildStatus_WithoutLogs(t *testing.T) {
	fake := newFake()
	d := New(fake, credentials.NewResolver("env"))

	res, err := d.BuildStatus(context.Background(), Request{CommitID: "abc", Format: render.Plain})
	if err != nil {
		t.Fatalf("BuildStatus() unexpected error: %v", err)
	}
	if len(fake.tokens) != 1 {
		t.Errorf("remote calls = %d, want 1 (no log fetches)", len(fake.tokens))
	}
	if res.Output != "a\tpassed\nb\tfailed\nc\tfailed\nd\tfailed\n" {
		t.Errorf("Output = %q", res.Output)
	}
}

func TestBuildStatus_PropagatesClassifiedErrors(t *testing.T) {
	for _, class := range []failure.Class{failure.NotFound, failure.AuthRejected, failure.NetworkTransient, failure.ParseError} {
		t.Run(string(class), func(t *testing.T) {
			fake := newFake()
			fake.statusErr = failure.New(class, "upstream said no")
			d := New(fake, credentials.NewResolver("env"))

			_, err := d.BuildStatus(context.Background(), Request{CommitID: "abc"})
			if failure.ClassOf(err) != class {
				t.Errorf("class = %q, want %q", failure.ClassOf(err), class)
			}
		})
	}
}

func TestBuildStatus_LogFailureAbortsRequest(t *testing.T) {
	fake := newFake()
	fake.logErr = failure.New(failure.NetworkTransient, "flaky")
	d := New(fake, credentials.NewResolver("env"))

	_, err := d.BuildStatus(context.Background(), Request{CommitID: "abc", IncludeLogs: true})
	if failure.ClassOf(err) != failure.NetworkTransient {
		t.Errorf("class = %q, want network_transient", failure.ClassOf(err))
	}
}

func TestBuildStatus_InconsistentReportIsInternal(t *testing.T) {
	fake := newFake()
	fake.report.Summary.Passed = 7
	d := New(fake, credentials.NewResolver("env"))

	_, err := d.BuildStatus(context.Background(), Request{CommitID: "abc"})
	if failure.ClassOf(err) != failure.Internal {
		t.Errorf("class = %q, want internal_error", failure.ClassOf(err))
	}
}

func TestLogs(t *testing.T) {
	fake := newFake()
	d := New(fake, credentials.NewResolver("env"))

	res, err := d.Logs(context.Background(), Request{BuildID: "2", Format: render.Plain})
	if err != nil {
		t.Fatalf("Logs(build) unexpected error: %v", err)
	}
	if res.Log == nil || res.Output != "boom\n" {
		t.Errorf("Logs(build) = %+v", res)
	}

	res, err = d.Logs(context.Background(), Request{CommitID: "abc", Format: render.Plain})
	if err != nil {
		t.Fatalf("Logs(commit) unexpected error: %v", err)
	}
	if res.Output != "b\tboom\n" {
		t.Errorf("Logs(commit) output = %q", res.Output)
	}

	res, err = d.Logs(context.Background(), Request{CommitID: "abc", AllLogs: true, Format: render.Plain})
	if err != nil {
		t.Fatalf("Logs(all) unexpected error: %v", err)
	}
	if res.Output != "a\tok\nb\tboom\n" {
		t.Errorf("Logs(all) output = %q", res.Output)
	}

	if _, err := d.Logs(context.Background(), Request{}); failure.ClassOf(err) != failure.InvalidRequest {
		t.Errorf("Logs() without ids class = %q, want invalid_request", failure.ClassOf(err))
	}
	if _, err := d.Logs(context.Background(), Request{BuildID: "nope"}); !errors.Is(err, failure.ErrNotFound) {
		t.Errorf("Logs(unknown build) error = %v, want not found", err)
	}
}

func TestValidateToken(t *testing.T) {
	fake := newFake()
	d := New(fake, credentials.NewResolver(""))

	res, err := d.ValidateToken(context.Background(), Request{ExplicitToken: "t", Format: render.Structured})
	if err != nil {
		t.Fatalf("ValidateToken() unexpected error: %v", err)
	}
	if !res.Valid || res.Output != "{\"valid\":true}\n" {
		t.Errorf("ValidateToken() = %+v", res)
	}

	fake.valid = false
	res, err = d.ValidateToken(context.Background(), Request{ExplicitToken: "t"})
	if err != nil || res.Valid || !strings.Contains(res.Output, "rejected") {
		t.Errorf("ValidateToken(rejected) = %+v, %v", res, err)
	}

	if _, err := d.ValidateToken(context.Background(), Request{}); failure.ClassOf(err) != failure.MissingCredential {
		t.Errorf("ValidateToken() without token class = %q", failure.ClassOf(err))
	}
}

func TestRequestIDIsLogged(t *testing.T) {
	var buf bytes.Buffer
	d := New(newFake(), credentials.NewResolver("s3cr3t"), WithLogger(logger.New(&buf, slog.LevelDebug)))

	if _, err := d.BuildStatus(context.Background(), Request{CommitID: "abc", RequestID: "req-42"}); err != nil {
		t.Fatalf("BuildStatus() unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "request_id=req-42") {
		t.Errorf("log output missing request id:\n%s", buf.String())
	}
	if strings.Contains(buf.String(), "s3cr3t") {
		t.Errorf("token leaked into logs:\n%s", buf.String())
	}
}

func TestDispatcher_AgainstFakeGarnix(t *testing.T) {
	fake := garnixtest.NewServer(t)
	d := New(fake.Client(), credentials.NewResolver(garnixtest.Token))

	res, err := d.BuildStatus(context.Background(), Request{CommitID: garnixtest.CommitID, IncludeLogs: true})
	if err != nil {
		t.Fatalf("BuildStatus() unexpected error: %v", err)
	}
	if !strings.Contains(res.Output, "error: builder failed with exit code 1") {
		t.Errorf("human output missing failed log excerpt:\n%s", res.Output)
	}
	if fake.Hits("/build-logs") != 1 {
		t.Errorf("log fetches = %d, want 1", fake.Hits("/build-logs"))
	}

	_, err = d.BuildStatus(context.Background(), Request{CommitID: "unknown"})
	if !errors.Is(err, failure.ErrNotFound) {
		t.Errorf("unknown commit error = %v, want not found", err)
	}
}
