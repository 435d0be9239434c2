// Package config binds the run command's non-blueprint runtime
// configuration: where the registry cache lives, what the host
// capability surfaces are allowed to touch, and the limits the value
// proxy and executor enforce. Blueprint parsing itself is a separate,
// purely syntactic concern (pkg/blueprint) and isn't bound here.
package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config is the fully resolved runtime configuration for one `run`
// invocation: flags given on the command line override PYPES_-prefixed
// environment variables, which override the flags' own defaults.
type Config struct {
	// BlueprintPath is the --config flag: the blueprint file to run.
	BlueprintPath string
	// VerifyOnly is --verify-only: analyse and report, never instantiate.
	VerifyOnly bool
	// AllowUnsafe is --allow-unsafe: bypass the Trifecta/Duo policy
	// checks only.
	AllowUnsafe bool
	// Entrypoint is --entrypoint: when set, skip the declared workflow
	// and invoke this component's "run" export directly.
	Entrypoint string

	// CacheDir is where resolved component artifacts and the registry
	// index are cached. Defaults to ~/.pypes/cache.
	CacheDir string
	// FilesystemRoot roots the wasi:filesystem/types host surface.
	FilesystemRoot string
	// FilesystemWriteAllowed permits wasi:filesystem/types writes.
	FilesystemWriteAllowed bool
	// HTTPAllowlist restricts wasi:http/outgoing-handler to these hosts.
	HTTPAllowlist []string
	// EnvAllowlist restricts wasi:cli/environment reads to these names.
	EnvAllowlist []string
	// MaxPayloadSize bounds every value proxy call/return, in bytes.
	// Zero means unbounded.
	MaxPayloadSize int
	// Timeout bounds the whole workflow run. Zero means unbounded.
	Timeout time.Duration
}

// Load reads the bound viper instance into a Config. Call after
// cobra has parsed flags and viper.BindPFlag/AutomaticEnv have run.
func Load(v *viper.Viper) *Config {
	return &Config{
		BlueprintPath:          v.GetString("config"),
		VerifyOnly:             v.GetBool("verify-only"),
		AllowUnsafe:            v.GetBool("allow-unsafe"),
		Entrypoint:             v.GetString("entrypoint"),
		CacheDir:               v.GetString("cache-dir"),
		FilesystemRoot:         v.GetString("filesystem-root"),
		FilesystemWriteAllowed: v.GetBool("filesystem-write"),
		HTTPAllowlist:          v.GetStringSlice("allow-host"),
		EnvAllowlist:           v.GetStringSlice("allow-env"),
		MaxPayloadSize:         v.GetInt("max-payload-size"),
		Timeout:                v.GetDuration("timeout"),
	}
}
