package blueprint

import (
	"testing"

	pypeserrors "github.com/pypes-run/pypes/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleBlueprint = `
[components]
calendar_reader = "./components/calendar_reader.wasm"
matcher = "./components/matcher.wasm"

[wiring]
"calendar_reader.wasi:filesystem/types" = "host.wasi:filesystem/types"
"matcher.example:calendar/events" = "calendar_reader.example:calendar/events"

[[workflow.steps]]
id = "find"
component = "matcher"
function = "example:calendar/events.find"
input = "{{ }}"

[[workflow.steps]]
id = "summarize"
component = "matcher"
function = "example:calendar/events.summarize"
input = "{{ find.output | summarize(40) }}"
on_error = "find"
priority = "high"
`

func TestParse_ValidBlueprint(t *testing.T) {
	bp, err := Parse("test.toml", []byte(sampleBlueprint))
	require.NoError(t, err)

	assert.Len(t, bp.Components, 2)
	assert.Len(t, bp.Wiring, 2)
	require.Len(t, bp.Workflow, 2)

	assert.Equal(t, "find", bp.Workflow[0].ID)
	assert.Equal(t, "abort", bp.Workflow[0].OnError)

	assert.Equal(t, "summarize", bp.Workflow[1].ID)
	assert.Equal(t, "find", bp.Workflow[1].OnError)
	assert.Equal(t, "high", bp.Workflow[1].Args["priority"])
}

func TestParse_DuplicateStepID(t *testing.T) {
	// TOML itself rejects duplicate keys within a table, so duplication
	// is exercised via the workflow step id path instead, which decodes
	// as a slice and so can legitimately repeat.
	bp := `
[components]
a = "./a.wasm"

[[workflow.steps]]
id = "s"
component = "a"
function = "x.y"

[[workflow.steps]]
id = "s"
component = "a"
function = "x.z"
`
	_, err := Parse("test.toml", []byte(bp))
	require.Error(t, err)
	assert.True(t, pypeserrors.Is(err, pypeserrors.ErrCodeDuplicateName))
}

func TestParse_MalformedWiringKey(t *testing.T) {
	bp := `
[components]
a = "./a.wasm"

[wiring]
"a" = "host.wasi:random/random"
`
	_, err := Parse("test.toml", []byte(bp))
	require.Error(t, err)
	assert.True(t, pypeserrors.Is(err, pypeserrors.ErrCodeMalformedWiring))
}

func TestParse_UnknownReference(t *testing.T) {
	bp := `
[components]
a = "./a.wasm"

[wiring]
"a.wasi:random/random" = "ghost.wasi:random/random"
`
	_, err := Parse("test.toml", []byte(bp))
	require.Error(t, err)
	assert.True(t, pypeserrors.Is(err, pypeserrors.ErrCodeUnknownReference))
}

func TestParse_MalformedTOML(t *testing.T) {
	_, err := Parse("test.toml", []byte("this is not [ valid toml"))
	require.Error(t, err)
	assert.True(t, pypeserrors.Is(err, pypeserrors.ErrCodeMalformedConfig))
}
