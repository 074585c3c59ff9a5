package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"garnix-insights/src/dispatch"
	"garnix-insights/src/failure"
	"garnix-insights/src/garnix"
	"garnix-insights/src/render"
)

// maxRequestBody bounds JSON request bodies.
const maxRequestBody = 1 << 20

var endpoints = []string{
	"GET /",
	"GET /health",
	"GET /api/v1/health",
	"POST /api/v1/build-status",
	"GET /api/v1/build-status/{commit}",
	"GET /api/v1/logs/{build}",
	"POST /api/v1/validate-token",
}

// HealthResponse is the body of the health endpoints.
type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Version   string `json:"version"`
	Uptime    string `json:"uptime"`
	Timestamp string `json:"timestamp"`
}

// BuildStatusRequest is the body of POST /api/v1/build-status. jwt_token is
// accepted as an alias of token.
type BuildStatusRequest struct {
	Token       string `json:"token"`
	JWTToken    string `json:"jwt_token"`
	CommitID    string `json:"commit_id"`
	Format      string `json:"format"`
	IncludeLogs bool   `json:"include_logs"`
}

// ValidateTokenRequest is the body of POST /api/v1/validate-token.
type ValidateTokenRequest struct {
	Token    string `json:"token"`
	JWTToken string `json:"jwt_token"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Service:   "garnix-insights",
		Version:   s.version,
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	var sb strings.Builder
	sb.WriteString("garnix-insights " + s.version + "\n\n")
	sb.WriteString("Fetch Garnix CI build status and logs.\n\nEndpoints:\n")
	for _, e := range endpoints {
		sb.WriteString("  " + e + "\n")
	}
	sb.WriteString("\nAuthenticate with 'Authorization: Bearer <jwt>', the X-Garnix-Token header,\n")
	sb.WriteString("the " + garnix.CookieName + " cookie, a 'token' query parameter or a 'token' field in the JSON body.\n")
	sb.WriteString("Choose the output with format=json|human|plain (default json).\n")
	io.WriteString(w, sb.String())
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusNotFound, struct {
		ErrorResponse
		Endpoints []string `json:"available_endpoints"`
	}{
		ErrorResponse: NewErrorResponse(
			failure.Newf(failure.NotFound, "no route for %s %s", r.Method, r.URL.Path),
			chimiddleware.GetReqID(r.Context()),
		),
		Endpoints: endpoints,
	})
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	resp := NewErrorResponse(
		failure.Newf(failure.InvalidRequest, "method %s not allowed on %s", r.Method, r.URL.Path),
		chimiddleware.GetReqID(r.Context()),
	)
	WriteJSON(w, http.StatusMethodNotAllowed, resp)
}

func (s *Server) postBuildStatus(w http.ResponseWriter, r *http.Request) {
	requestID := chimiddleware.GetReqID(r.Context())

	var body BuildStatusRequest
	if err := decodeBody(w, r, &body); err != nil {
		WriteError(w, err, requestID)
		return
	}
	format, err := render.ParseFormat(body.Format, render.Structured)
	if err != nil {
		WriteError(w, err, requestID)
		return
	}

	res, err := s.dispatcher.BuildStatus(r.Context(), dispatch.Request{
		CommitID:     body.CommitID,
		Format:       format,
		PayloadToken: firstNonBlank(body.Token, body.JWTToken, headerToken(r)),
		IncludeLogs:  body.IncludeLogs,
		RequestID:    requestID,
	})
	if err != nil {
		WriteError(w, err, requestID)
		return
	}
	writeOutput(w, format, res.Output)
}

func (s *Server) getBuildStatus(w http.ResponseWriter, r *http.Request) {
	requestID := chimiddleware.GetReqID(r.Context())
	q := r.URL.Query()

	format, err := render.ParseFormat(q.Get("format"), render.Structured)
	if err != nil {
		WriteError(w, err, requestID)
		return
	}
	logs, err := parseBool(q.Get("logs"))
	if err != nil {
		WriteError(w, err, requestID)
		return
	}

	res, err := s.dispatcher.BuildStatus(r.Context(), dispatch.Request{
		CommitID:     chi.URLParam(r, "commit"),
		Format:       format,
		PayloadToken: headerToken(r),
		IncludeLogs:  logs,
		RequestID:    requestID,
	})
	if err != nil {
		WriteError(w, err, requestID)
		return
	}
	writeOutput(w, format, res.Output)
}

func (s *Server) getBuildLog(w http.ResponseWriter, r *http.Request) {
	requestID := chimiddleware.GetReqID(r.Context())

	format, err := render.ParseFormat(r.URL.Query().Get("format"), render.Structured)
	if err != nil {
		WriteError(w, err, requestID)
		return
	}

	res, err := s.dispatcher.Logs(r.Context(), dispatch.Request{
		BuildID:      chi.URLParam(r, "build"),
		Format:       format,
		PayloadToken: headerToken(r),
		RequestID:    requestID,
	})
	if err != nil {
		WriteError(w, err, requestID)
		return
	}
	writeOutput(w, format, res.Output)
}

func (s *Server) validateToken(w http.ResponseWriter, r *http.Request) {
	requestID := chimiddleware.GetReqID(r.Context())

	var body ValidateTokenRequest
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, &body); err != nil {
			WriteError(w, err, requestID)
			return
		}
	}

	res, err := s.dispatcher.ValidateToken(r.Context(), dispatch.Request{
		Format:       render.Structured,
		PayloadToken: firstNonBlank(body.Token, body.JWTToken, headerToken(r)),
		RequestID:    requestID,
	})
	if err != nil {
		WriteError(w, err, requestID)
		return
	}
	writeOutput(w, render.Structured, res.Output)
}

func writeOutput(w http.ResponseWriter, f render.Format, output string) {
	w.Header().Set("Content-Type", f.ContentType())
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, output)
}

// decodeBody reads a JSON body into v, classifying any problem as an invalid request.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return failure.Newf(failure.InvalidRequest, "request body exceeds %d bytes", maxErr.Limit)
		case errors.Is(err, io.EOF):
			return failure.New(failure.InvalidRequest, "request body is empty")
		default:
			return failure.Wrap(failure.InvalidRequest, err, "request body is not valid JSON")
		}
	}
	return nil
}

// headerToken extracts a token from the Authorization header, the
// X-Garnix-Token header, the JWT cookie or the token query parameter.
func headerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if token := r.Header.Get("X-Garnix-Token"); token != "" {
		return token
	}
	if c, err := r.Cookie(garnix.CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return r.URL.Query().Get("token")
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func parseBool(s string) (bool, error) {
	if s == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, failure.Newf(failure.InvalidRequest, "invalid boolean %q", s)
	}
	return b, nil
}
