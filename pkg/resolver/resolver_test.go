package resolver

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectKind(t *testing.T) {
	assert.Equal(t, KindLocal, DetectKind("./components/reader.wasm"))
	assert.Equal(t, KindLocal, DetectKind("/abs/path/reader.wasm"))
	assert.Equal(t, KindRemote, DetectKind("remote://registry.example.com/calendar_reader@1.2.0"))
	assert.Equal(t, KindGit, DetectKind("git::https://example.com/org/repo.git//components/reader?ref=main"))
}

func TestResolveLocal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reader.wasm")
	require.NoError(t, os.WriteFile(path, []byte("\x00asm"), 0o644))

	r := New(dir, nil)
	resolved, err := r.Resolve(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, KindLocal, resolved.Kind)
	assert.Equal(t, path, resolved.Path)
}

func TestResolveLocal_MissingFile(t *testing.T) {
	r := New(t.TempDir(), nil)
	_, err := r.Resolve(context.Background(), "./does/not/exist.wasm")
	assert.Error(t, err)
}

type fakeFetcher struct {
	path, digest string
	err          error
}

func (f fakeFetcher) Fetch(ctx context.Context, host, name, version string) (string, string, error) {
	return f.path, f.digest, f.err
}

func TestResolveRemote(t *testing.T) {
	r := New(t.TempDir(), fakeFetcher{path: "/cache/calendar_reader.wasm", digest: "sha256:abc"})
	resolved, err := r.Resolve(context.Background(), "remote://registry.example.com/calendar_reader@1.2.0")
	require.NoError(t, err)
	assert.Equal(t, KindRemote, resolved.Kind)
	assert.Equal(t, "/cache/calendar_reader.wasm", resolved.Path)
	assert.Equal(t, "registry.example.com", resolved.Host)
	assert.Equal(t, "calendar_reader", resolved.Name)
	assert.Equal(t, "1.2.0", resolved.Version)
}

func TestResolveRemote_NoFetcherConfigured(t *testing.T) {
	r := New(t.TempDir(), nil)
	_, err := r.Resolve(context.Background(), "remote://registry.example.com/calendar_reader@1.2.0")
	assert.Error(t, err)
}

func TestResolveRemote_MalformedLocation(t *testing.T) {
	r := New(t.TempDir(), fakeFetcher{})
	_, err := r.Resolve(context.Background(), "remote://registry.example.com/calendar_reader")
	assert.Error(t, err)
}
