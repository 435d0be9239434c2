package host

import (
	"os"
	"path/filepath"
	"strings"

	pypeserrors "github.com/pypes-run/pypes/pkg/errors"
)

// Filesystem implements the trusted side of wasi:filesystem/types,
// rooted at a configured directory. Every path is resolved and checked
// to still live under the root after symlink evaluation before any
// operation touches disk.
type Filesystem struct {
	root         string
	writeAllowed bool
	maxPayload   int
}

// NewFilesystem creates a Filesystem rooted at cfg.FilesystemRoot.
func NewFilesystem(cfg Config) *Filesystem {
	return &Filesystem{
		root:         cfg.FilesystemRoot,
		writeAllowed: cfg.FilesystemWriteAllowed,
		maxPayload:   cfg.MaxPayloadSize,
	}
}

// Read returns the contents of the file at the given path, relative to
// the filesystem root.
func (f *Filesystem) Read(path string) ([]byte, error) {
	resolved, err := f.resolve(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, pypeserrors.New(pypeserrors.ErrCodeInstantiationFailed, "filesystem read failed").
			WithDetail("path", path).WithDetail("cause", err.Error())
	}
	if f.maxPayload > 0 && len(data) > f.maxPayload {
		return nil, pypeserrors.PayloadTooLarge("wasi:filesystem/types.read", len(data), f.maxPayload)
	}
	return data, nil
}

// Write writes data to the file at path, relative to the filesystem
// root. Fails closed if writes were not granted.
func (f *Filesystem) Write(path string, data []byte) error {
	if !f.writeAllowed {
		return pypeserrors.New(pypeserrors.ErrCodeInstantiationFailed, "filesystem write not permitted").
			WithDetail("path", path)
	}
	if f.maxPayload > 0 && len(data) > f.maxPayload {
		return pypeserrors.PayloadTooLarge("wasi:filesystem/types.write", len(data), f.maxPayload)
	}

	resolved, err := f.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return pypeserrors.New(pypeserrors.ErrCodeInstantiationFailed, "filesystem write failed").
			WithDetail("path", path).WithDetail("cause", err.Error())
	}
	if err := os.WriteFile(resolved, data, 0o644); err != nil {
		return pypeserrors.New(pypeserrors.ErrCodeInstantiationFailed, "filesystem write failed").
			WithDetail("path", path).WithDetail("cause", err.Error())
	}
	return nil
}

// withinRoot reports whether the cleaned path p is the configured root
// or a descendant of it. A plain HasPrefix string comparison would
// also accept a sibling directory whose name merely starts with the
// root's name (root /x/sandbox, path /x/sandbox-evil/secret), so this
// requires an exact match or a prefix that ends on a path separator.
func (f *Filesystem) withinRoot(p string) bool {
	root := filepath.Clean(f.root)
	p = filepath.Clean(p)
	return p == root || strings.HasPrefix(p, root+string(filepath.Separator))
}

// resolve joins path onto the root and rejects any result that
// escapes it, including via a symlink that resolves outside the root.
func (f *Filesystem) resolve(path string) (string, error) {
	joined := filepath.Join(f.root, path)
	if !f.withinRoot(joined) {
		return "", pypeserrors.New(pypeserrors.ErrCodeInstantiationFailed, "path escapes filesystem root").
			WithDetail("path", path)
	}

	real, err := filepath.EvalSymlinks(joined)
	if err != nil {
		if os.IsNotExist(err) {
			// Permit writes to not-yet-existing paths; check the parent
			// directory's real location instead.
			parentReal, perr := filepath.EvalSymlinks(filepath.Dir(joined))
			if perr != nil {
				return joined, nil
			}
			if !f.withinRoot(parentReal) {
				return "", pypeserrors.New(pypeserrors.ErrCodeInstantiationFailed, "path escapes filesystem root via symlink").
					WithDetail("path", path)
			}
			return joined, nil
		}
		return "", pypeserrors.New(pypeserrors.ErrCodeInstantiationFailed, "failed to resolve path").
			WithDetail("path", path).WithDetail("cause", err.Error())
	}

	if !f.withinRoot(real) {
		return "", pypeserrors.New(pypeserrors.ErrCodeInstantiationFailed, "path escapes filesystem root via symlink").
			WithDetail("path", path)
	}
	return real, nil
}
