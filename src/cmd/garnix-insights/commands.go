package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"garnix-insights/src/dispatch"
	"garnix-insights/src/failure"
	"garnix-insights/src/httpserver"
	"garnix-insights/src/mcp"
)

func newFetchCmd(flags *globalFlags) *cobra.Command {
	var (
		commitID string
		noLogs   bool
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Show the build status of a commit",
		Long: `Fetch the Garnix build results for a commit and print one line per
package. Logs of failed packages are included unless --no-logs is given.

Exits 1 when any package failed or is still pending.`,
		Example: `  garnix-insights fetch --commit-id 3c4a1f0
  garnix-insights fetch --commit-id 3c4a1f0 --format json --no-logs`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFetch(cmd, flags, commitID, noLogs)
		},
	}

	cmd.Flags().StringVarP(&commitID, "commit-id", "c", "", "Commit to look up (required)")
	cmd.Flags().BoolVar(&noLogs, "no-logs", false, "Do not fetch logs of failed packages")
	_ = cmd.MarkFlagRequired("commit-id")
	return cmd
}

// runFetch prints the build status of commitID and reports a non-zero exit
// status unless every package passed.
func runFetch(cmd *cobra.Command, flags *globalFlags, commitID string, noLogs bool) error {
	a, err := flags.setup(cmd, false)
	if err != nil {
		return err
	}
	res, err := a.dispatcher.BuildStatus(cmd.Context(), dispatch.Request{
		CommitID:      commitID,
		Format:        a.format,
		ExplicitToken: a.token,
		IncludeLogs:   !noLogs,
	})
	if err != nil {
		return err
	}
	if err := writeOutput(cmd.OutOrStdout(), res.Output); err != nil {
		return err
	}
	if !res.Report.Summary.AllPassed {
		return exitCodeError{code: exitUnhealthy}
	}
	return nil
}

func newLogsCmd(flags *globalFlags) *cobra.Command {
	var (
		commitID string
		buildID  string
		all      bool
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print build logs for a commit or a single build",
		Long: `Print full build logs. With --build-id, print that one build's log.
With --commit-id, print the logs of the commit's failed packages, or of
every package with --all.`,
		Example: `  garnix-insights logs --commit-id 3c4a1f0
  garnix-insights logs --commit-id 3c4a1f0 --all --format plain
  garnix-insights logs --build-id 8f2e`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if all && buildID != "" {
				return failure.New(failure.InvalidRequest, "--all only applies to --commit-id")
			}
			a, err := flags.setup(cmd, false)
			if err != nil {
				return err
			}
			res, err := a.dispatcher.Logs(cmd.Context(), dispatch.Request{
				CommitID:      commitID,
				BuildID:       buildID,
				Format:        a.format,
				ExplicitToken: a.token,
				AllLogs:       all,
			})
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), res.Output)
		},
	}

	cmd.Flags().StringVarP(&commitID, "commit-id", "c", "", "Commit whose package logs to print")
	cmd.Flags().StringVarP(&buildID, "build-id", "b", "", "Single build whose log to print")
	cmd.Flags().BoolVar(&all, "all", false, "Include logs of every package, not only failed ones")
	cmd.MarkFlagsMutuallyExclusive("commit-id", "build-id")
	cmd.MarkFlagsOneRequired("commit-id", "build-id")
	return cmd
}

func newValidateTokenCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate-token",
		Short: "Check that the Garnix token is accepted",
		Long:  "Ask the Garnix API whether the token is valid. Exits 1 when it is rejected.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := flags.setup(cmd, false)
			if err != nil {
				return err
			}
			res, err := a.dispatcher.ValidateToken(cmd.Context(), dispatch.Request{
				Format:        a.format,
				ExplicitToken: a.token,
			})
			if err != nil {
				return err
			}
			if err := writeOutput(cmd.OutOrStdout(), res.Output); err != nil {
				return err
			}
			if !res.Valid {
				return exitCodeError{code: exitUnhealthy}
			}
			return nil
		},
	}
}

func newServerCmd(flags *globalFlags) *cobra.Command {
	var (
		bindAddress string
		port        int
	)

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Serve build status over HTTP",
		Long: `Run an HTTP server exposing build status, logs and token validation
under /api/v1. Stops gracefully on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := flags.setup(cmd, true)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("bind-address") {
				a.cfg.BindAddress = strings.TrimSpace(bindAddress)
			}
			if cmd.Flags().Changed("port") {
				a.cfg.Port = port
			}
			if err := a.cfg.Validate(); err != nil {
				return failure.Wrap(failure.InvalidRequest, err, "invalid server address")
			}

			srv := httpserver.New(a.dispatcher,
				httpserver.WithLogger(a.logger),
				httpserver.WithVersion(version),
			)
			if err := srv.ListenAndServe(cmd.Context(), a.cfg.Addr()); err != nil {
				return failure.Wrap(failure.Internal, err, "HTTP server stopped")
			}
			a.logger.Info("HTTP server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&bindAddress, "bind-address", "127.0.0.1", "Address to listen on (env: GARNIX_BIND_ADDRESS)")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "Port to listen on (env: GARNIX_PORT)")
	return cmd
}

func newMCPCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve MCP tools over stdio",
		Long: `Run a Model Context Protocol server on stdin and stdout, one JSON-RPC
message per line. Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := flags.setup(cmd, true)
			if err != nil {
				return err
			}
			srv := mcp.NewServer(a.dispatcher,
				mcp.WithLogger(a.logger),
				mcp.WithVersion(version),
			)
			if err := serveUntilDone(cmd.Context(), func(ctx context.Context) error {
				return srv.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
			}); err != nil {
				return failure.Wrap(failure.Internal, err, "MCP server stopped")
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "garnix-insights %s\n", version)
			return err
		},
	}
}

// serveUntilDone runs serve until it returns or ctx is cancelled, which
// counts as a clean stop. A blocked stdin read cannot observe ctx, so the
// serving goroutine is abandoned on cancellation.
func serveUntilDone(ctx context.Context, serve func(context.Context) error) error {
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return nil
	}
}

func writeOutput(w io.Writer, s string) error {
	if s != "" && !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	if _, err := io.WriteString(w, s); err != nil {
		return failure.Wrap(failure.Internal, err, "failed to write output")
	}
	return nil
}
