package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "OpsFlow/tools/errs"
)

func TestTokenRoundTrip(t *testing.T) {
	opts := DefaultOptions([]byte("test-secret"))

	token, exp, err := Generate(opts, "user-42")
	require.NoError(t, err)
	assert.True(t, exp.After(time.Now()))

	v := NewJWTVerifier(opts)
	userID, err := v.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-42", userID)
}

func TestVerifyRejects(t *testing.T) {
	v := NewJWTVerifier(DefaultOptions([]byte("test-secret")))

	_, err := v.VerifyToken("")
	assert.True(t, errs.ErrAuthentication.Is(err))

	_, err = v.VerifyToken("not.a.jwt")
	assert.True(t, errs.ErrAuthentication.Is(err))

	// token signed with a different secret
	other, _, err := Generate(DefaultOptions([]byte("other-secret")), "user-42")
	require.NoError(t, err)
	_, err = v.VerifyToken(other)
	assert.True(t, errs.ErrAuthentication.Is(err))
}

func TestVerifyRejectsExpired(t *testing.T) {
	opts := DefaultOptions([]byte("test-secret"))
	opts.TTL = time.Nanosecond

	token, _, err := Generate(opts, "user-42")
	require.NoError(t, err)

	time.Sleep(time.Millisecond)
	_, err = NewJWTVerifier(opts).VerifyToken(token)
	assert.True(t, errs.ErrAuthentication.Is(err))
}
