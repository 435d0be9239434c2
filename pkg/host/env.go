package host

import (
	"os"

	pypeserrors "github.com/pypes-run/pypes/pkg/errors"
)

// Environment implements the trusted side of wasi:cli/environment,
// exposing only variable names on a fixed allowlist.
type Environment struct {
	allowlist map[string]struct{}
}

// NewEnvironment creates an Environment gated by cfg.EnvAllowlist.
func NewEnvironment(cfg Config) *Environment {
	allow := make(map[string]struct{}, len(cfg.EnvAllowlist))
	for _, name := range cfg.EnvAllowlist {
		allow[name] = struct{}{}
	}
	return &Environment{allowlist: allow}
}

// Get returns the named environment variable's value, or an error if
// the name is not allowlisted.
func (e *Environment) Get(name string) (string, error) {
	if _, ok := e.allowlist[name]; !ok {
		return "", pypeserrors.New(pypeserrors.ErrCodeInstantiationFailed, "environment variable not allowlisted").
			WithDetail("name", name)
	}
	return os.Getenv(name), nil
}
