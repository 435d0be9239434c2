package host

import (
	"crypto/rand"

	pypeserrors "github.com/pypes-run/pypes/pkg/errors"
)

// Random implements the trusted side of wasi:random/random, backed by
// the OS's cryptographically secure source.
type Random struct{}

// NewRandom creates a Random provider.
func NewRandom() *Random { return &Random{} }

// Bytes returns n cryptographically random bytes.
func (r *Random) Bytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, pypeserrors.New(pypeserrors.ErrCodeInstantiationFailed, "random generation failed").
			WithDetail("cause", err.Error())
	}
	return buf, nil
}
