package main

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"garnix-insights/src/config"
	"garnix-insights/src/credentials"
	"garnix-insights/src/dispatch"
	"garnix-insights/src/failure"
	"garnix-insights/src/garnix"
	"garnix-insights/src/logger"
	"garnix-insights/src/render"
)

// globalFlags holds the persistent flags shared by every subcommand.
type globalFlags struct {
	token   string
	format  string
	verbose bool
	apiURL  string
	color   string
}

// app is what a subcommand needs once flags and environment are resolved.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	format     render.Format
	dispatcher *dispatch.Dispatcher
	token      string
}

func newRootCmd() *cobra.Command {
	var (
		flags    = &globalFlags{}
		commitID string
		noLogs   bool
	)

	rootCmd := &cobra.Command{
		Use:   "garnix-insights",
		Short: "Garnix CI build status from the command line, over HTTP, or as an MCP server",
		Long: `garnix-insights fetches build results for a commit from the Garnix CI
API and renders them for people, scripts and AI assistants.

The Garnix JWT is taken from --token, then the request payload (server modes),
then GARNIX_JWT_TOKEN.

Exit codes:
  0  all packages passed, or token is valid
  1  build has failed or pending packages, or token is invalid
  2  usage error or invalid request
  3  missing or rejected credentials
  4  commit or build not found
  5  network failure after retries
  6  unexpected response from the Garnix API
  7  internal error
  130  interrupted

Given --commit-id and no subcommand, it behaves like fetch.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if commitID == "" {
				return cmd.Help()
			}
			return runFetch(cmd, flags, commitID, noLogs)
		},
	}
	rootCmd.SetVersionTemplate("garnix-insights {{.Version}}\n")
	rootCmd.Version = version
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return failure.Wrap(failure.InvalidRequest, err, "invalid flags")
	})

	rootCmd.Flags().StringVarP(&commitID, "commit-id", "c", "", "Commit to look up, as with fetch")
	rootCmd.Flags().BoolVar(&noLogs, "no-logs", false, "Do not fetch logs of failed packages")

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.token, "token", "", "Garnix JWT token (env: GARNIX_JWT_TOKEN)")
	pf.StringVarP(&flags.format, "format", "f", "human", "Output format: json, human or plain")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "Log debug output to stderr")
	pf.StringVar(&flags.apiURL, "api-url", "", "Garnix API base URL (env: GARNIX_API_URL)")
	pf.StringVar(&flags.color, "color", "auto", "Colour human output: auto, always or never")

	rootCmd.AddCommand(
		newFetchCmd(flags),
		newLogsCmd(flags),
		newValidateTokenCmd(flags),
		newServerCmd(flags),
		newMCPCmd(flags),
		newVersionCmd(),
	)
	return rootCmd
}

// setup loads configuration, applies flag overrides and wires the client
// and dispatcher. Long-running modes log at info by default; one-shot
// commands stay quiet unless asked.
func (f *globalFlags) setup(cmd *cobra.Command, longRunning bool) (*app, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, failure.Wrap(failure.InvalidRequest, err, "invalid configuration")
	}
	if cmd.Flags().Changed("api-url") {
		cfg.APIURL = strings.TrimSpace(f.apiURL)
		if err := cfg.Validate(); err != nil {
			return nil, failure.Wrap(failure.InvalidRequest, err, "invalid --api-url")
		}
	}

	format, err := render.ParseFormat(f.format, render.Human)
	if err != nil {
		return nil, err
	}

	level, err := f.logLevel(cfg, longRunning)
	if err != nil {
		return nil, failure.Wrap(failure.InvalidRequest, err, "invalid GARNIX_LOG_LEVEL")
	}
	log := logger.New(cmd.ErrOrStderr(), level)

	color, err := f.useColor(cmd.OutOrStdout())
	if err != nil {
		return nil, err
	}
	if longRunning {
		// Server responses never carry terminal escapes.
		color = false
	}

	client := garnix.NewClient(
		garnix.WithBaseURL(cfg.APIURL),
		garnix.WithTimeout(cfg.RequestTimeout),
		garnix.WithMaxConcurrent(cfg.MaxConcurrentRequests),
		garnix.WithLogger(log),
	)
	d := dispatch.New(client, credentials.NewResolver(cfg.Token),
		dispatch.WithRenderOptions(render.Options{LogLines: cfg.LogExcerptLines, Color: color}),
		dispatch.WithLogger(log),
	)

	log.Debug("configuration loaded", "api_url", cfg.APIURL, "format", format.String(), "color", color)

	return &app{
		cfg:        cfg,
		logger:     log,
		format:     format,
		dispatcher: d,
		token:      f.token,
	}, nil
}

func (f *globalFlags) logLevel(cfg *config.Config, longRunning bool) (slog.Level, error) {
	if f.verbose {
		return slog.LevelDebug, nil
	}
	if _, set := os.LookupEnv("GARNIX_LOG_LEVEL"); set || longRunning {
		return logger.ParseLevel(cfg.LogLevel)
	}
	return slog.LevelWarn, nil
}

func (f *globalFlags) useColor(out io.Writer) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(f.color)) {
	case "always":
		return true, nil
	case "never":
		return false, nil
	case "", "auto":
		if _, noColor := os.LookupEnv("NO_COLOR"); noColor {
			return false, nil
		}
		file, ok := out.(*os.File)
		return ok && term.IsTerminal(int(file.Fd())), nil
	default:
		return false, failure.Newf(failure.InvalidRequest, "unknown --color value %q (want auto, always or never)", f.color)
	}
}
