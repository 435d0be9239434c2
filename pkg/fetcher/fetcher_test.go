package fetcher

import (
	"testing"

	"github.com/stretchr/testify/assert"

	pypeserrors "github.com/pypes-run/pypes/pkg/errors"
)

func TestVerifyDigest_MatchPasses(t *testing.T) {
	assert.NoError(t, VerifyDigest("remote://host/name@1.0.0", "sha256:abc", "sha256:abc"))
}

func TestVerifyDigest_EmptyWantSkipsCheck(t *testing.T) {
	assert.NoError(t, VerifyDigest("remote://host/name@1.0.0", "", "sha256:abc"))
}

func TestVerifyDigest_MismatchFails(t *testing.T) {
	err := VerifyDigest("remote://host/name@1.0.0", "sha256:abc", "sha256:def")
	assert.Error(t, err)
	assert.True(t, pypeserrors.Is(err, pypeserrors.ErrCodeIntegrityFailure))
}
