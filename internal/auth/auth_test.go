package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leagueops/scorekeeper/internal/domain"
)

const authTenant = "0c1d2e3f-4a5b-4c6d-8e7f-901234567890"

func TestVerifyRoundTrip(t *testing.T) {
	v := NewVerifier("test-secret", "scorekeeper")

	token, err := v.Issue("scorer-1", authTenant, []string{"scorer"}, time.Hour)
	require.NoError(t, err)

	auth, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "scorer-1", auth.UserID)
	assert.Equal(t, authTenant, auth.TenantID)
	assert.Equal(t, []string{"scorer"}, auth.Roles)
}

func TestVerifyMissingToken(t *testing.T) {
	v := NewVerifier("test-secret", "scorekeeper")

	for _, token := range []string{"", "   "} {
		_, err := v.Verify(token)
		require.Error(t, err)
		assert.Equal(t, domain.CodeTokenMissing, domain.CodeOf(err))
		assert.True(t, domain.IsUnauthorized(err))
	}
}

func TestVerifyExpiredToken(t *testing.T) {
	v := NewVerifier("test-secret", "scorekeeper")

	token, err := v.Issue("scorer-1", authTenant, nil, -time.Minute)
	require.NoError(t, err)

	_, err = v.Verify(token)
	require.Error(t, err)
	assert.Equal(t, domain.CodeTokenExpired, domain.CodeOf(err))
}

func TestVerifyWrongSecret(t *testing.T) {
	issuer := NewVerifier("secret-a", "scorekeeper")
	verifier := NewVerifier("secret-b", "scorekeeper")

	token, err := issuer.Issue("scorer-1", authTenant, nil, time.Hour)
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	require.Error(t, err)
	assert.Equal(t, domain.CodeTokenInvalid, domain.CodeOf(err))
}

func TestVerifyWrongIssuer(t *testing.T) {
	issuer := NewVerifier("test-secret", "someone-else")
	verifier := NewVerifier("test-secret", "scorekeeper")

	token, err := issuer.Issue("scorer-1", authTenant, nil, time.Hour)
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	require.Error(t, err)
	assert.Equal(t, domain.CodeTokenInvalid, domain.CodeOf(err))
}

func TestVerifyGarbageToken(t *testing.T) {
	v := NewVerifier("test-secret", "scorekeeper")

	_, err := v.Verify("not.a.jwt")
	require.Error(t, err)
	assert.Equal(t, domain.CodeTokenInvalid, domain.CodeOf(err))
}

func TestVerifyTokenWithoutTenant(t *testing.T) {
	v := NewVerifier("test-secret", "scorekeeper")

	token, err := v.Issue("scorer-1", "", nil, time.Hour)
	require.NoError(t, err)

	_, err = v.Verify(token)
	require.Error(t, err)
	assert.Equal(t, domain.CodeTenantMissing, domain.CodeOf(err))
}

func TestVerifyTokenWithMalformedTenant(t *testing.T) {
	v := NewVerifier("test-secret", "scorekeeper")

	token, err := v.Issue("scorer-1", "tenant-42", nil, time.Hour)
	require.NoError(t, err)

	_, err = v.Verify(token)
	require.Error(t, err)
	assert.Equal(t, domain.CodeTenantMissing, domain.CodeOf(err))
}
