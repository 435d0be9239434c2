package host

// Provider bundles the four enumerated host.* surfaces the linker
// binds a wiring edge's import to when its provider is the host
// sentinel, instead of another component through the Value Proxy.
type Provider struct {
	Filesystem      *Filesystem
	OutgoingHandler *OutgoingHandler
	Environment     *Environment
	Random          *Random
}

// NewProvider builds the full Host Capability Provider from a single
// Config shared by all four surfaces.
func NewProvider(cfg Config) *Provider {
	return &Provider{
		Filesystem:      NewFilesystem(cfg),
		OutgoingHandler: NewOutgoingHandler(cfg),
		Environment:     NewEnvironment(cfg),
		Random:          NewRandom(),
	}
}

// AdvertisedExports is the fixed set of host.* interfaces the Host
// Capability Provider satisfies, independent of any allowlist or write
// permission — a wiring edge naming one of these as its provider export
// passes provider-validity regardless of whether the allowlist would
// later refuse the call at runtime.
func AdvertisedExports() map[string]bool {
	return map[string]bool{
		"wasi:filesystem/types":      true,
		"wasi:http/outgoing-handler": true,
		"wasi:cli/environment":       true,
		"wasi:random/random":         true,
	}
}

// WriteAllowed reports whether this provider's filesystem surface
// grants writes, the input to the conditional DestructiveAction
// classification of wasi:filesystem/types.
func (p *Provider) WriteAllowed() bool {
	return p.Filesystem.writeAllowed
}
