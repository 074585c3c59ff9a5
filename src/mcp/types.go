// Package mcp serves the dispatcher as Model Context Protocol tools over a
// line-delimited JSON-RPC stream on stdio.
package mcp

import (
	"encoding/json"

	"garnix-insights/src/failure"
)

// Tool names.
const (
	ToolBuildStatus   = "garnix_build_status"
	ToolBuildLogs     = "garnix_build_logs"
	ToolValidateToken = "garnix_validate_token"
	ToolHealth        = "garnix_health"
)

// ToolError is the content of a tool result flagged isError.
type ToolError struct {
	Class   failure.Class `json:"class"`
	Code    string        `json:"code"`
	Message string        `json:"message"`
	Field   string        `json:"field,omitempty"`
	Hint    string        `json:"hint,omitempty"`
}

type toolErrorEnvelope struct {
	Error ToolError `json:"error"`
}

// HealthInfo is returned by the health tool.
type HealthInfo struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

// TokenValidity is returned by the token validation tool.
type TokenValidity struct {
	Valid bool `json:"valid"`
}

func encodeToolError(err error) string {
	fe := failure.As(err)
	b, _ := json.Marshal(toolErrorEnvelope{Error: ToolError{
		Class:   fe.Class,
		Code:    failure.Code(fe.Class),
		Message: fe.Error(),
		Field:   fe.Field,
		Hint:    failure.Hint(fe.Class),
	}})
	return string(b)
}
