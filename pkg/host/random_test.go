package host

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandom_BytesLength(t *testing.T) {
	r := NewRandom()
	b, err := r.Bytes(16)
	require.NoError(t, err)
	assert.Len(t, b, 16)
}
