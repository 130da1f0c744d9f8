package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classync/pkg/interfaces"
	"classync/pkg/types"
)

var testSecret = []byte("unit-test-secret")

func TestJWTProvider_IssueAndParseRoundTrip(t *testing.T) {
	provider := NewJWTProvider(testSecret, nil)

	token, err := provider.IssueToken(&interfaces.Principal{ID: "teacher1", Role: types.RoleTeacher, Name: "Ms. Kim"})
	require.NoError(t, err)

	principal, err := provider.ParsePrincipal(token)
	require.NoError(t, err)
	assert.Equal(t, "teacher1", principal.ID)
	assert.Equal(t, types.RoleTeacher, principal.Role)
	assert.Equal(t, "Ms. Kim", principal.Name)
}

func TestJWTProvider_RejectsWrongSecret(t *testing.T) {
	issuer := NewJWTProvider([]byte("other-secret"), nil)
	token, err := issuer.IssueToken(&interfaces.Principal{ID: "teacher1", Role: types.RoleTeacher})
	require.NoError(t, err)

	verifier := NewJWTProvider(testSecret, nil)
	_, err = verifier.ParsePrincipal(token)
	assert.Error(t, err)
}

func TestJWTProvider_RejectsGarbage(t *testing.T) {
	provider := NewJWTProvider(testSecret, nil)
	_, err := provider.ParsePrincipal("not.a.token")
	assert.Error(t, err)
}

func TestJWTProvider_RejectsInvalidRole(t *testing.T) {
	provider := NewJWTProvider(testSecret, nil)
	token, err := provider.IssueToken(&interfaces.Principal{ID: "user1", Role: types.Role("admin")})
	require.NoError(t, err)

	_, err = provider.ParsePrincipal(token)
	assert.ErrorIs(t, err, ErrInvalidTokenRole)
}

func TestJWTProvider_RejectsInvalidSubject(t *testing.T) {
	provider := NewJWTProvider(testSecret, nil)
	token, err := provider.IssueToken(&interfaces.Principal{ID: "has spaces", Role: types.RoleTeacher})
	require.NoError(t, err)

	_, err = provider.ParsePrincipal(token)
	assert.ErrorIs(t, err, ErrInvalidSubject)
}

func TestJWTProvider_CurrentPrincipal(t *testing.T) {
	provider := NewJWTProvider(testSecret, nil)
	signed, err := provider.IssueToken(&interfaces.Principal{ID: "student1", Role: types.RoleStudent})
	require.NoError(t, err)

	t.Run("signed in", func(t *testing.T) {
		p := NewJWTProvider(testSecret, func(ctx context.Context) (string, error) { return signed, nil })
		principal, err := p.CurrentPrincipal(context.Background())
		require.NoError(t, err)
		require.NotNil(t, principal)
		assert.Equal(t, "student1", principal.ID)
	})

	t.Run("signed out", func(t *testing.T) {
		p := NewJWTProvider(testSecret, func(ctx context.Context) (string, error) { return "", nil })
		principal, err := p.CurrentPrincipal(context.Background())
		require.NoError(t, err)
		assert.Nil(t, principal)
	})

	t.Run("no source", func(t *testing.T) {
		principal, err := provider.CurrentPrincipal(context.Background())
		require.NoError(t, err)
		assert.Nil(t, principal)
	})

	t.Run("source error", func(t *testing.T) {
		srcErr := errors.New("session storage unreachable")
		p := NewJWTProvider(testSecret, func(ctx context.Context) (string, error) { return "", srcErr })
		_, err := p.CurrentPrincipal(context.Background())
		assert.ErrorIs(t, err, srcErr)
	})
}

func TestStaticProvider(t *testing.T) {
	principal := &interfaces.Principal{ID: "teacher1", Role: types.RoleTeacher}
	got, err := NewStaticProvider(principal).CurrentPrincipal(context.Background())
	require.NoError(t, err)
	assert.Equal(t, principal, got)

	got, err = NewStaticProvider(nil).CurrentPrincipal(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
}
