package component

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	pypeserrors "github.com/pypes-run/pypes/pkg/errors"
	"github.com/pypes-run/pypes/pkg/resolver"
)

// worldManifest is the sidecar "<component>.world.json" file a compiled
// artifact carries alongside its bytecode, declaring the interfaces it
// imports and exports. Parsing a component's actual WIT custom section
// is out of scope for the loader; the manifest is the loader's stable,
// structurally-typed substitute for it.
type worldManifest struct {
	Imports []manifestInterface `json:"imports"`
	Exports []manifestInterface `json:"exports"`
	Digest  string              `json:"digest,omitempty"`
}

type manifestInterface struct {
	Name      string               `json:"name"`
	Functions []manifestSignature  `json:"functions"`
}

type manifestSignature struct {
	Name    string          `json:"name"`
	Params  []manifestValue `json:"params"`
	Returns []manifestValue `json:"returns"`
}

type manifestValue struct {
	Kind   string          `json:"kind"`
	Name   string          `json:"name,omitempty"`
	Of     *manifestValue  `json:"of,omitempty"`
	Fields []manifestValue `json:"fields,omitempty"`
}

func (v manifestValue) toValueType() ValueType {
	out := ValueType{Kind: Kind(v.Kind), Name: v.Name}
	if v.Of != nil {
		of := v.Of.toValueType()
		out.Of = &of
	}
	for _, f := range v.Fields {
		out.Fields = append(out.Fields, f.toValueType())
	}
	return out
}

func (i manifestInterface) toInterface() Interface {
	out := Interface{QualifiedName: i.Name}
	for _, fn := range i.Functions {
		sig := FunctionSignature{Name: fn.Name}
		for _, p := range fn.Params {
			sig.Params = append(sig.Params, p.toValueType())
		}
		for _, r := range fn.Returns {
			sig.Returns = append(sig.Returns, r.toValueType())
		}
		out.Functions = append(out.Functions, sig)
	}
	return out
}

// Loader resolves a ComponentRef's location to a loaded Artifact,
// caching artifacts by canonical location for the run's duration so a
// component wired to multiple consumers is only read and parsed once.
type Loader struct {
	resolver *resolver.Resolver

	mu    sync.Mutex
	cache map[string]*Artifact
}

// NewLoader creates a Loader backed by the given location resolver.
func NewLoader(r *resolver.Resolver) *Loader {
	return &Loader{resolver: r, cache: make(map[string]*Artifact)}
}

// Load resolves location to a local path, reads its bytecode and world
// manifest, and verifies the digest declared by the manifest (if any)
// against the bytes actually read. Results are memoized by canonical
// location.
func (l *Loader) Load(ctx context.Context, location string) (*Artifact, error) {
	l.mu.Lock()
	if cached, ok := l.cache[location]; ok {
		l.mu.Unlock()
		return cached, nil
	}
	l.mu.Unlock()

	resolved, err := l.resolver.Resolve(ctx, location)
	if err != nil {
		return nil, err
	}

	bytecode, err := os.ReadFile(resolved.Path)
	if err != nil {
		return nil, pypeserrors.ArtifactNotFound(location, err)
	}

	sum := sha256.Sum256(bytecode)
	digest := "sha256:" + hex.EncodeToString(sum[:])

	manifestPath := manifestPathFor(resolved.Path)
	world := World{}
	if data, err := os.ReadFile(manifestPath); err == nil {
		var m worldManifest
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, pypeserrors.MalformedConfig(manifestPath, err)
		}
		for _, i := range m.Imports {
			world.Imports = append(world.Imports, i.toInterface())
		}
		for _, e := range m.Exports {
			world.Exports = append(world.Exports, e.toInterface())
		}
		if m.Digest != "" && m.Digest != digest {
			return nil, pypeserrors.IntegrityFailure(location, m.Digest, digest)
		}
	}

	artifact := &Artifact{
		Location: location,
		Digest:   digest,
		Bytecode: bytecode,
		World:    world,
	}

	l.mu.Lock()
	l.cache[location] = artifact
	l.mu.Unlock()

	return artifact, nil
}

// LoadAll resolves every given location sequentially and returns the
// artifacts keyed by location. LoadBlueprintComponents is the parallel,
// name-keyed counterpart; it calls Load directly rather than this
// method. LoadAll is safe to call from several goroutines at once.
func (l *Loader) LoadAll(ctx context.Context, locations []string) (map[string]*Artifact, error) {
	out := make(map[string]*Artifact, len(locations))
	for _, loc := range locations {
		artifact, err := l.Load(ctx, loc)
		if err != nil {
			return nil, err
		}
		out[loc] = artifact
	}
	return out, nil
}

func manifestPathFor(bytecodePath string) string {
	ext := filepath.Ext(bytecodePath)
	base := strings.TrimSuffix(bytecodePath, ext)
	return fmt.Sprintf("%s.world.json", base)
}
