package resilience

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

var (
	errServer = errors.New("503")
	errClient = errors.New("404")
)

func newTestBreaker() *Breaker {
	s := DefaultSettings("test")
	s.Trips = func(err error) bool { return err == errServer }
	return NewBreaker(s)
}

func TestBreaker_OpensOnServerErrors(t *testing.T) {
	b := newTestBreaker()
	for i := 0; i < 6; i++ {
		assert.ErrorIs(t, b.Execute(func() error { return errServer }), errServer)
	}

	calls := 0
	err := b.Execute(func() error { calls++; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Zero(t, calls)
	assert.Equal(t, "open", b.State())
}

func TestBreaker_ClientErrorsDoNotTrip(t *testing.T) {
	b := newTestBreaker()
	for i := 0; i < 20; i++ {
		assert.ErrorIs(t, b.Execute(func() error { return errClient }), errClient)
	}
	assert.Equal(t, "closed", b.State())
	assert.NoError(t, b.Execute(func() error { return nil }))
}
