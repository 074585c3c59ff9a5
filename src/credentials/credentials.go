// Package credentials picks the Garnix token a request should use.
package credentials

import (
	"strings"

	"garnix-insights/src/failure"
)

// Resolve returns the first non-blank token in precedence order: explicit
// argument, then request payload, then environment default.
func Resolve(explicit, payload, env string) (string, error) {
	for _, candidate := range []string{explicit, payload, env} {
		if token := strings.TrimSpace(candidate); token != "" {
			return token, nil
		}
	}
	return "", failure.New(failure.MissingCredential, "no Garnix token provided")
}

// Resolver carries the environment default captured at startup so that
// transports never read the process environment per request.
type Resolver struct {
	envToken string
}

// NewResolver returns a Resolver falling back to envToken.
func NewResolver(envToken string) *Resolver {
	return &Resolver{envToken: strings.TrimSpace(envToken)}
}

// Resolve applies the precedence rules using the captured default.
func (r *Resolver) Resolve(explicit, payload string) (string, error) {
	if r == nil {
		return Resolve(explicit, payload, "")
	}
	return Resolve(explicit, payload, r.envToken)
}

// HasDefault reports whether an environment token is configured.
func (r *Resolver) HasDefault() bool {
	return r != nil && r.envToken != ""
}
