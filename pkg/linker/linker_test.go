package linker

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pypes-run/pypes/pkg/blueprint"
)

func TestExportFuncName(t *testing.T) {
	assert.Equal(t, "example:calendar/events#find", exportFuncName("example:calendar/events", "find"))
}

func TestImportsFor_FiltersAndSortsByConsumer(t *testing.T) {
	wiring := []blueprint.WiringEdge{
		{Consumer: "matcher", ConsumerImport: "wasi:http/outgoing-handler", Provider: blueprint.HostProvider, ProviderExport: "wasi:http/outgoing-handler"},
		{Consumer: "matcher", ConsumerImport: "example:calendar/events", Provider: "calendar_reader", ProviderExport: "example:calendar/events"},
		{Consumer: "calendar_reader", ConsumerImport: "wasi:filesystem/types", Provider: blueprint.HostProvider, ProviderExport: "wasi:filesystem/types"},
	}

	out := importsFor(wiring, "matcher")
	assert.Len(t, out, 2)
	assert.Equal(t, "example:calendar/events", out[0].ConsumerImport)
	assert.Equal(t, "wasi:http/outgoing-handler", out[1].ConsumerImport)
}

func TestValueTable_StoreLoadRelease(t *testing.T) {
	table := newValueTable()
	h := table.store("hello")

	v, ok := table.load(h)
	assert.True(t, ok)
	assert.Equal(t, "hello", v)

	table.release(h)
	_, ok = table.load(h)
	assert.False(t, ok)
}
