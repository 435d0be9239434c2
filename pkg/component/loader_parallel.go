package component

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/pypes-run/pypes/pkg/blueprint"
)

// LoadBlueprintComponents resolves every declared component ref in
// parallel and returns the loaded artifacts keyed by component name.
// This only affects latency: the analyser and linker stages downstream
// still process the result in a fixed, deterministic order.
func (l *Loader) LoadBlueprintComponents(ctx context.Context, refs []blueprint.ComponentRef) (map[string]*Artifact, error) {
	results := make(map[string]*Artifact, len(refs))
	resultsCh := make(chan struct {
		name     string
		artifact *Artifact
	}, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	for _, ref := range refs {
		ref := ref
		g.Go(func() error {
			artifact, err := l.Load(gctx, ref.Location)
			if err != nil {
				return err
			}
			resultsCh <- struct {
				name     string
				artifact *Artifact
			}{ref.Name, artifact}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	close(resultsCh)

	for r := range resultsCh {
		results[r.name] = r.artifact
	}
	return results, nil
}
