package checkout

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenVerifier(t *testing.T) {
	v := TokenVerifier{}

	ok, err := v.Verify(context.Background(), "tok-123")
	require.NoError(t, err)
	assert.True(t, ok)

	for _, token := range []string{"", "   ", "\t\n"} {
		ok, err := v.Verify(context.Background(), token)
		require.NoError(t, err)
		assert.False(t, ok, "token %q must be declined", token)
	}
}

type countingVerifier struct {
	calls int
	err   error
}

func (c *countingVerifier) Verify(context.Context, string) (bool, error) {
	c.calls++
	return false, c.err
}

func TestBreakerVerifier_PassThrough(t *testing.T) {
	v := NewBreakerVerifier("test", TokenVerifier{})

	ok, err := v.Verify(context.Background(), "tok")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = v.Verify(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBreakerVerifier_OpensAfterConsecutiveFailures(t *testing.T) {
	inner := &countingVerifier{err: errors.New("gateway timeout")}
	v := NewBreakerVerifier("test", inner)

	for i := 0; i < 5; i++ {
		_, err := v.Verify(context.Background(), "tok")
		require.Error(t, err)
	}
	assert.Equal(t, 5, inner.calls)

	// Open breaker fails fast without reaching the gateway.
	_, err := v.Verify(context.Background(), "tok")
	require.Error(t, err)
	assert.Equal(t, 5, inner.calls)
}
