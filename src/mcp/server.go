package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"garnix-insights/src/dispatch"
	"garnix-insights/src/logger"
)

// Server is the MCP server for garnix-insights.
type Server struct {
	mcpServer  *server.MCPServer
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
	version    string
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server's logger. It must not write to stdout.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger.OrSilent(l)
	}
}

// WithVersion sets the version announced during initialization.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// NewServer creates a new MCP server backed by d.
func NewServer(d *dispatch.Dispatcher, opts ...Option) *Server {
	srv := &Server{
		dispatcher: d,
		logger:     logger.NewSilent(),
		version:    "dev",
	}
	for _, opt := range opts {
		opt(srv)
	}

	srv.mcpServer = server.NewMCPServer(
		"garnix-insights",
		srv.version,
		server.WithToolCapabilities(false),
	)
	srv.registerTools()
	return srv
}

// Serve reads one JSON-RPC message per line from in and writes each
// response as one line to out. Messages are handled strictly one at a time:
// the response to a request is written before the next line is read.
// Notifications produce no output.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)
	writer := bufio.NewWriter(out)

	s.logger.Info("MCP server listening on stdio", "version", s.version)

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		line, readErr := reader.ReadBytes('\n')
		if msg := bytes.TrimSpace(line); len(msg) > 0 {
			if err := s.handleLine(ctx, msg, writer); err != nil {
				return err
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				s.logger.Info("stdin closed, MCP server exiting")
				return nil
			}
			return fmt.Errorf("reading stdin: %w", readErr)
		}
	}
}

func (s *Server) handleLine(ctx context.Context, msg []byte, w *bufio.Writer) error {
	resp := s.mcpServer.HandleMessage(ctx, json.RawMessage(msg))
	if resp == nil {
		return nil
	}

	encoded, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encoding response: %w", err)
	}
	encoded = append(encoded, '\n')
	if _, err := w.Write(encoded); err != nil {
		return fmt.Errorf("writing response: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("writing response: %w", err)
	}
	return nil
}
