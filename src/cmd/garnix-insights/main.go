// Package main provides the garnix-insights command: a CLI, HTTP server and
// MCP stdio server for Garnix CI build status.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"garnix-insights/src/failure"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

// Exit codes.
const (
	exitOK          = 0
	exitUnhealthy   = 1
	exitUsage       = 2
	exitCredentials = 3
	exitNotFound    = 4
	exitNetwork     = 5
	exitParse       = 6
	exitInternal    = 7
	exitInterrupted = 130
)

// exitCodeError carries a non-zero exit status that is not an error to
// report, such as a build with failed packages.
type exitCodeError struct {
	code int
}

func (e exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return execute(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
}

// execute runs the command line and returns the process exit code.
func execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cmd := newRootCmd()
	// A nil slice would make cobra fall back to os.Args.
	cmd.SetArgs(append([]string{}, args...))
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}

	var codeErr exitCodeError
	if errors.As(err, &codeErr) {
		return codeErr.code
	}
	if ctx.Err() != nil {
		fmt.Fprintln(stderr, "interrupted")
		return exitInterrupted
	}

	var fe *failure.Error
	if !errors.As(err, &fe) {
		// Flag and argument errors come from cobra unclassified.
		fmt.Fprintf(stderr, "error: %v\nRun 'garnix-insights --help' for usage.\n", err)
		return exitUsage
	}
	reportError(stderr, fe)
	return exitCode(fe)
}

// reportError prints a classified error and its hint.
func reportError(w io.Writer, fe *failure.Error) {
	fmt.Fprintf(w, "error [%s]: %s\n", fe.Class, fe.Error())
	if hint := failure.Hint(fe.Class); hint != "" {
		fmt.Fprintf(w, "  hint: %s\n", hint)
	}
}

func exitCode(err error) int {
	switch failure.ClassOf(err) {
	case failure.InvalidRequest:
		return exitUsage
	case failure.MissingCredential, failure.AuthRejected:
		return exitCredentials
	case failure.NotFound:
		return exitNotFound
	case failure.NetworkTransient:
		return exitNetwork
	case failure.ParseError:
		return exitParse
	default:
		return exitInternal
	}
}
