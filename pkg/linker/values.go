package linker

import (
	"sync"
	"sync/atomic"
)

// valueTable is the host-side indirection that lets a Go host function
// or bridge function exchange tagged values with a wasm export through
// wazero's flat numeric stack convention: rather than re-implementing
// canonical-ABI memory lifting, each value crossing the boundary is
// stored here once and referenced by an opaque uint64 handle for the
// duration of one call. This is the boundary the runtime's own
// component-model lifting is assumed to sit behind; the handle table
// stands in for it so the rest of the linker can be written and tested
// without that machinery.
type valueTable struct {
	mu     sync.Mutex
	next   uint64
	values map[uint64]interface{}
}

func newValueTable() *valueTable {
	return &valueTable{values: make(map[uint64]interface{})}
}

func (t *valueTable) store(v interface{}) uint64 {
	h := atomic.AddUint64(&t.next, 1)
	t.mu.Lock()
	t.values[h] = v
	t.mu.Unlock()
	return h
}

func (t *valueTable) load(h uint64) (interface{}, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.values[h]
	return v, ok
}

func (t *valueTable) release(h uint64) {
	t.mu.Lock()
	delete(t.values, h)
	t.mu.Unlock()
}
