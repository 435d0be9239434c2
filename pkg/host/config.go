// Package host implements the trusted side of the host.* interfaces a
// wiring table may bind a component's import to directly, bypassing
// the Value Proxy. Every operation here is narrow and defensive: it is
// the one place in the runtime that is allowed to touch the real
// filesystem, network, or environment on the caller's behalf.
package host

// Config configures the allowlists and limits the Host Capability
// Provider enforces across all four surfaces.
type Config struct {
	// FilesystemRoot is the directory wasi:filesystem/types is rooted
	// at. No path may resolve (including through symlinks) outside it.
	FilesystemRoot string
	// FilesystemWriteAllowed permits write operations; when false, the
	// filesystem surface is read-only and never carries DestructiveAction.
	FilesystemWriteAllowed bool

	// HTTPAllowlist restricts wasi:http/outgoing-handler to these exact
	// hostnames. An empty list denies all outgoing requests.
	HTTPAllowlist []string

	// EnvAllowlist restricts wasi:cli/environment reads to these exact
	// variable names.
	EnvAllowlist []string

	// MaxPayloadSize is the per-call payload ceiling the filesystem and
	// HTTP surfaces enforce (the environment and random surfaces do not
	// check it). Zero means no limit.
	MaxPayloadSize int
}
