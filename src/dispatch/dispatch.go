// Package dispatch is the state machine every transport runs: resolve the
// credential, call the remote client, attach logs, check the report and
// render it. Transports only translate their protocol to a Request and the
// Result (or classified error) back.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"garnix-insights/src/credentials"
	"garnix-insights/src/failure"
	"garnix-insights/src/logger"
	"garnix-insights/src/render"
	"garnix-insights/src/report"
)

// logFanOut bounds concurrent log fetches for one report.
const logFanOut = 4

// Remote is the subset of the Garnix client the dispatcher needs.
type Remote interface {
	FetchBuildStatus(ctx context.Context, commitID, token string) (*report.BuildReport, error)
	FetchLog(ctx context.Context, buildID, token string) (*report.LogEntry, error)
	ValidateToken(ctx context.Context, token string) (bool, error)
}

// Request is a transport-neutral description of what the caller wants.
type Request struct {
	CommitID string
	BuildID  string
	Format   render.Format

	// ExplicitToken comes from a flag or argument, PayloadToken from the
	// request body or headers. The environment default lives in the Resolver.
	ExplicitToken string
	PayloadToken  string

	// IncludeLogs attaches logs of failed packages to a build status report.
	IncludeLogs bool
	// AllLogs makes Logs fetch every package's log, not only failed ones.
	AllLogs bool

	// RequestID correlates log records; one is generated when empty.
	RequestID string
}

// Result is the outcome of a successful dispatch.
type Result struct {
	Report *report.BuildReport
	Log    *report.LogEntry
	// Valid is the answer of a token validation.
	Valid  bool
	Output string
}

// Dispatcher serves requests against one remote client.
type Dispatcher struct {
	remote Remote
	creds  *credentials.Resolver
	opts   render.Options
	logger *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithRenderOptions sets the options used for human output.
func WithRenderOptions(opts render.Options) Option {
	return func(d *Dispatcher) {
		d.opts = opts
	}
}

// WithLogger sets the dispatcher's logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger.OrSilent(l)
	}
}

// New returns a dispatcher. creds carries the environment default token.
func New(remote Remote, creds *credentials.Resolver, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		remote: remote,
		creds:  creds,
		opts:   render.DefaultOptions(),
		logger: logger.NewSilent(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) begin(op string, req *Request) (*slog.Logger, string, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	log := d.logger.With("request_id", req.RequestID, "op", op)

	token, err := d.creds.Resolve(req.ExplicitToken, req.PayloadToken)
	if err != nil {
		log.Info("request rejected", "class", failure.ClassOf(err))
		return log, "", err
	}
	return log, token, nil
}

// BuildStatus fetches and renders the build report for req.CommitID.
func (d *Dispatcher) BuildStatus(ctx context.Context, req Request) (*Result, error) {
	log, token, err := d.begin("build_status", &req)
	if err != nil {
		return nil, err
	}
	commit := strings.TrimSpace(req.CommitID)
	if commit == "" {
		return nil, failure.New(failure.InvalidRequest, "commit id is required")
	}

	log.Debug("fetching build status", "commit", commit)
	r, err := d.remote.FetchBuildStatus(ctx, commit, token)
	if err != nil {
		log.Info("build status failed", "commit", commit, "class", failure.ClassOf(err))
		return nil, err
	}

	if req.IncludeLogs {
		if err := d.attachLogs(ctx, log, token, withBuildID(r.FailedPackages())); err != nil {
			return nil, err
		}
	}

	if err := r.Validate(); err != nil {
		log.Error("build report failed validation", "error", err)
		return nil, err
	}

	log.Info("build status served",
		"commit", r.Summary.CommitID,
		"total", r.Summary.Total,
		"failed", r.Summary.Failed,
		"pending", r.Summary.Pending,
		"format", req.Format.String(),
	)
	return &Result{Report: r, Output: render.Render(r, req.Format, d.opts)}, nil
}

// Logs fetches a single build log when req.BuildID is set, otherwise the
// logs of req.CommitID's failed packages (or every package with AllLogs).
func (d *Dispatcher) Logs(ctx context.Context, req Request) (*Result, error) {
	log, token, err := d.begin("logs", &req)
	if err != nil {
		return nil, err
	}

	if build := strings.TrimSpace(req.BuildID); build != "" {
		entry, err := d.remote.FetchLog(ctx, build, token)
		if err != nil {
			log.Info("log fetch failed", "build", build, "class", failure.ClassOf(err))
			return nil, err
		}
		log.Info("build log served", "build", build, "lines", len(entry.Lines))
		return &Result{Log: entry, Output: render.RenderLog(entry, req.Format, d.opts)}, nil
	}

	commit := strings.TrimSpace(req.CommitID)
	if commit == "" {
		return nil, failure.New(failure.InvalidRequest, "either a build id or a commit id is required")
	}

	r, err := d.remote.FetchBuildStatus(ctx, commit, token)
	if err != nil {
		log.Info("build status failed", "commit", commit, "class", failure.ClassOf(err))
		return nil, err
	}

	targets := withBuildID(r.FailedPackages())
	if req.AllLogs {
		targets = r.PackagesWithBuildID()
	}
	if err := d.attachLogs(ctx, log, token, targets); err != nil {
		return nil, err
	}
	if err := r.Validate(); err != nil {
		log.Error("build report failed validation", "error", err)
		return nil, err
	}

	log.Info("commit logs served", "commit", r.Summary.CommitID, "packages", len(targets))
	return &Result{Report: r, Output: render.RenderLogs(r, req.Format, d.opts)}, nil
}

// ValidateToken asks the remote whether the resolved token is accepted.
func (d *Dispatcher) ValidateToken(ctx context.Context, req Request) (*Result, error) {
	log, token, err := d.begin("validate_token", &req)
	if err != nil {
		return nil, err
	}

	valid, err := d.remote.ValidateToken(ctx, token)
	if err != nil {
		log.Info("token validation failed", "class", failure.ClassOf(err))
		return nil, err
	}
	log.Info("token validated", "valid", valid)
	return &Result{Valid: valid, Output: renderValidity(valid, req.Format)}, nil
}

// attachLogs fetches logs for pkgs concurrently and stores each on its
// package. A log that no longer exists upstream is skipped; any other
// failure aborts the whole request.
func (d *Dispatcher) attachLogs(ctx context.Context, log *slog.Logger, token string, pkgs []*report.PackageBuild) error {
	if len(pkgs) == 0 {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(logFanOut)
	for _, p := range pkgs {
		g.Go(func() error {
			entry, err := d.remote.FetchLog(ctx, p.BuildID, token)
			if errors.Is(err, failure.ErrNotFound) {
				log.Warn("build log not available", "package", p.Name, "build", p.BuildID)
				return nil
			}
			if err != nil {
				return err
			}
			p.Log = entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Info("log fetch failed", "class", failure.ClassOf(err))
		return err
	}
	return nil
}

func withBuildID(pkgs []*report.PackageBuild) []*report.PackageBuild {
	out := pkgs[:0:0]
	for _, p := range pkgs {
		if p.BuildID != "" {
			out = append(out, p)
		}
	}
	return out
}
