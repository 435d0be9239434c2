// Package resolver detects a ComponentRef.Location's form and resolves
// it to a local filesystem path holding the component's compiled
// bytecode, ready for pkg/component to parse into an Artifact.
package resolver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	pypeserrors "github.com/pypes-run/pypes/pkg/errors"
)

// LocationKind enumerates the three location forms a ComponentRef may use.
type LocationKind string

const (
	// KindLocal is a bare or relative filesystem path to a .wasm file.
	KindLocal LocationKind = "local"

	// KindRemote is "remote://<host>/<name>@<version>", resolved through
	// the registry collaborator (pkg/fetcher).
	KindRemote LocationKind = "remote"

	// KindGit is the additive "git::<url>//<path>?ref=<ref>" form.
	KindGit LocationKind = "git"
)

// Resolved is a location that has been reduced to a concrete, readable
// local path.
type Resolved struct {
	Location string
	Kind     LocationKind
	Path     string
	// Host/Name/Version are populated for KindRemote so the fetcher can
	// be consulted; empty otherwise.
	Host, Name, Version string
}

// Fetcher is the remote registry collaborator: it turns a resolved
// remote location into a local path, manifest, and content digest. The
// concrete implementation lives in pkg/fetcher.
type Fetcher interface {
	Fetch(ctx context.Context, host, name, version string) (path string, digest string, err error)
}

// Resolver detects and resolves a ComponentRef.Location.
type Resolver struct {
	gitCacheDir string
	fetcher     Fetcher
}

// New creates a Resolver. fetcher may be nil if no blueprint in this
// run declares a remote:// location; resolving one without a fetcher
// configured is an ArtifactNotFound error.
func New(gitCacheDir string, fetcher Fetcher) *Resolver {
	return &Resolver{gitCacheDir: gitCacheDir, fetcher: fetcher}
}

// DetectKind classifies a location string without touching the
// filesystem or network.
func DetectKind(location string) LocationKind {
	switch {
	case strings.HasPrefix(location, "git::"):
		return KindGit
	case strings.HasPrefix(location, "remote://"):
		return KindRemote
	default:
		return KindLocal
	}
}

// Resolve reduces a single location to a local path.
func (r *Resolver) Resolve(ctx context.Context, location string) (Resolved, error) {
	switch DetectKind(location) {
	case KindLocal:
		return r.resolveLocal(location)
	case KindRemote:
		return r.resolveRemote(ctx, location)
	case KindGit:
		return r.resolveGit(ctx, location)
	default:
		return Resolved{}, pypeserrors.ArtifactNotFound(location, fmt.Errorf("unrecognized location form"))
	}
}

func (r *Resolver) resolveLocal(location string) (Resolved, error) {
	abs, err := filepath.Abs(location)
	if err != nil {
		return Resolved{}, pypeserrors.ArtifactNotFound(location, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return Resolved{}, pypeserrors.ArtifactNotFound(location, err)
	}
	return Resolved{Location: location, Kind: KindLocal, Path: abs}, nil
}

// resolveRemote parses "remote://<host>/<name>@<version>" and delegates
// the actual fetch to the configured Fetcher collaborator.
func (r *Resolver) resolveRemote(ctx context.Context, location string) (Resolved, error) {
	rest := strings.TrimPrefix(location, "remote://")
	slash := strings.Index(rest, "/")
	if slash <= 0 || slash == len(rest)-1 {
		return Resolved{}, pypeserrors.MalformedConfig(location, fmt.Errorf("expected remote://<host>/<name>@<version>"))
	}
	host := rest[:slash]
	nameVersion := rest[slash+1:]

	at := strings.LastIndex(nameVersion, "@")
	if at <= 0 || at == len(nameVersion)-1 {
		return Resolved{}, pypeserrors.MalformedConfig(location, fmt.Errorf("remote location missing @<version>"))
	}
	name := nameVersion[:at]
	version := nameVersion[at+1:]

	if r.fetcher == nil {
		return Resolved{}, pypeserrors.ArtifactNotFound(location, fmt.Errorf("no remote fetcher configured"))
	}

	path, _, err := r.fetcher.Fetch(ctx, host, name, version)
	if err != nil {
		return Resolved{}, pypeserrors.Wrap(pypeserrors.ErrCodeArtifactNotFound, "failed to fetch remote component", err).
			WithDetail("location", location)
	}

	return Resolved{
		Location: location, Kind: KindRemote, Path: path,
		Host: host, Name: name, Version: version,
	}, nil
}

// resolveGit parses "git::<url>//<path>?ref=<ref>" and shallow-clones
// the referenced branch or tag into a stable cache directory, so
// repeated resolutions of the same location within a run are free.
func (r *Resolver) resolveGit(ctx context.Context, location string) (Resolved, error) {
	rest := strings.TrimPrefix(location, "git::")

	url := rest
	subPath := ""
	ref := "main"

	if idx := strings.Index(rest, "//"); idx != -1 {
		url = rest[:idx]
		tail := rest[idx+2:]
		if q := strings.Index(tail, "?"); q != -1 {
			subPath = tail[:q]
			for _, param := range strings.Split(tail[q+1:], "&") {
				kv := strings.SplitN(param, "=", 2)
				if len(kv) == 2 && kv[0] == "ref" {
					ref = kv[1]
				}
			}
		} else {
			subPath = tail
		}
	}

	cacheKey := sanitizeCacheKey(url) + "_" + sanitizeCacheKey(ref)
	repoDir := filepath.Join(r.gitCacheDir, "git", cacheKey)

	if _, err := os.Stat(repoDir); os.IsNotExist(err) {
		if err := cloneShallow(ctx, url, ref, repoDir); err != nil {
			return Resolved{}, pypeserrors.Wrap(pypeserrors.ErrCodeArtifactNotFound, "git clone failed", err).
				WithDetail("location", location)
		}
	}

	target := repoDir
	if subPath != "" {
		target = filepath.Join(repoDir, subPath)
	}
	if _, err := os.Stat(target); err != nil {
		return Resolved{}, pypeserrors.ArtifactNotFound(location, err)
	}

	return Resolved{
		Location: location, Kind: KindGit, Path: target, Version: ref,
	}, nil
}

func cloneShallow(ctx context.Context, url, ref, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	opts := &git.CloneOptions{
		URL:           url,
		Depth:         1,
		SingleBranch:  true,
		ReferenceName: plumbing.NewBranchReferenceName(ref),
	}
	if _, err := git.PlainCloneContext(ctx, dest, false, opts); err != nil {
		opts.ReferenceName = plumbing.NewTagReferenceName(ref)
		if _, err := git.PlainCloneContext(ctx, dest, false, opts); err != nil {
			return fmt.Errorf("git clone %s@%s failed: %w", url, ref, err)
		}
	}
	return nil
}

func sanitizeCacheKey(s string) string {
	r := strings.NewReplacer("/", "_", ":", "_", ".", "_", "?", "_", "&", "_")
	return r.Replace(s)
}
