// Package fetcher implements the single concrete "remote registry
// fetcher" external collaborator: given a remote:// location's parsed
// host/name/version, it produces a local path to the component's
// bytecode plus the pulled image's digest. Fetch itself compares no
// digests; VerifyDigest is the helper for that comparison.
package fetcher

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"

	pypeserrors "github.com/pypes-run/pypes/pkg/errors"
	"github.com/pypes-run/pypes/pkg/registry"
)

// OCIFetcher resolves a remote:// component location against an
// OCI-compatible registry, caching the extracted bytecode under the
// local artifact cache so a repeat run skips the network entirely.
type OCIFetcher struct {
	cacheDir string
	reg      registry.Registry
	auth     authn.Keychain
}

// New creates an OCIFetcher rooted at cacheDir, backed by reg for
// cross-run memoization.
func New(cacheDir string, reg registry.Registry) *OCIFetcher {
	return &OCIFetcher{cacheDir: cacheDir, reg: reg, auth: authn.DefaultKeychain}
}

// Fetch satisfies pkg/resolver.Fetcher. host and name combine into the
// OCI repository path "<host>/<name>", tagged at version.
func (f *OCIFetcher) Fetch(ctx context.Context, host, componentName, version string) (string, string, error) {
	location := fmt.Sprintf("remote://%s/%s@%s", host, componentName, version)

	if cached, ok, err := f.reg.Get(location); err == nil && ok {
		if _, statErr := os.Stat(cached.BytecodePath); statErr == nil {
			return cached.BytecodePath, cached.Digest, nil
		}
	}

	ref, err := name.ParseReference(fmt.Sprintf("%s/%s:%s", host, componentName, version))
	if err != nil {
		return "", "", pypeserrors.MalformedConfig(location, err)
	}

	img, err := remote.Image(ref, remote.WithAuthFromKeychain(f.auth), remote.WithContext(ctx))
	if err != nil {
		return "", "", pypeserrors.Wrap(pypeserrors.ErrCodeArtifactNotFound, "remote registry pull failed", err).
			WithDetail("location", location)
	}

	digest, err := img.Digest()
	if err != nil {
		return "", "", pypeserrors.Wrap(pypeserrors.ErrCodeArtifactNotFound, "failed to read artifact digest", err)
	}

	destDir := filepath.Join(f.cacheDir, registry.CacheKey(location))
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", "", fmt.Errorf("failed to create cache directory: %w", err)
	}

	layers, err := img.Layers()
	if err != nil {
		return "", "", pypeserrors.Wrap(pypeserrors.ErrCodeArtifactNotFound, "failed to read artifact layers", err)
	}
	for _, layer := range layers {
		rc, err := layer.Uncompressed()
		if err != nil {
			return "", "", pypeserrors.Wrap(pypeserrors.ErrCodeArtifactNotFound, "failed to decompress layer", err)
		}
		err = extractTar(rc, destDir)
		rc.Close()
		if err != nil {
			return "", "", pypeserrors.Wrap(pypeserrors.ErrCodeArtifactNotFound, "failed to extract layer", err)
		}
	}

	bytecodePath := filepath.Join(destDir, "component.wasm")
	if _, err := os.Stat(bytecodePath); err != nil {
		return "", "", pypeserrors.ArtifactNotFound(location, fmt.Errorf("no component.wasm in pulled artifact"))
	}

	digestStr := digest.String()
	if f.reg != nil {
		_ = f.reg.Put(registry.CachedArtifact{
			Location:     location,
			Digest:       digestStr,
			BytecodePath: bytecodePath,
		})
	}

	return bytecodePath, digestStr, nil
}

// VerifyDigest raises IntegrityFailure if want is non-empty and
// doesn't match got, matching the Component Loader's requirement that
// a digest-pinned location never loads mismatched bytecode.
func VerifyDigest(location, want, got string) error {
	if want == "" || want == got {
		return nil
	}
	return pypeserrors.IntegrityFailure(location, want, got)
}

func extractTar(r io.Reader, destDir string) error {
	gr, err := gzip.NewReader(r)
	var tr *tar.Reader
	if err == nil {
		tr = tar.NewReader(gr)
	} else {
		tr = tar.NewReader(r)
	}

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		target := filepath.Join(destDir, hdr.Name)
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			out.Close()
		}
	}
}
