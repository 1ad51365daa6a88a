package shared

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnsureTokenStableWithinSession(t *testing.T) {
	m := NewCSRFManager("secret")
	sess := &Session{ID: "s1", values: map[string]string{}}

	first, err := m.EnsureToken(context.Background(), sess)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := m.EnsureToken(context.Background(), sess)
	require.NoError(t, err)
	require.Equal(t, first, second)

	require.NoError(t, m.VerifyToken(context.Background(), sess, first))
}

func TestVerifyTokenRejectsForeignToken(t *testing.T) {
	m := NewCSRFManager("secret")
	a := &Session{ID: "a", values: map[string]string{}}
	b := &Session{ID: "b", values: map[string]string{}}

	tokenA, err := m.EnsureToken(context.Background(), a)
	require.NoError(t, err)
	_, err = m.EnsureToken(context.Background(), b)
	require.NoError(t, err)

	require.ErrorIs(t, m.VerifyToken(context.Background(), b, tokenA), ErrCSRFTokenMismatch)
}

func TestVerifyTokenMissingCases(t *testing.T) {
	m := NewCSRFManager("secret")
	sess := &Session{ID: "s1", values: map[string]string{}}

	require.ErrorIs(t, m.VerifyToken(context.Background(), nil, "x"), ErrCSRFTokenMissing)
	require.ErrorIs(t, m.VerifyToken(context.Background(), sess, ""), ErrCSRFTokenMissing)
	require.ErrorIs(t, m.VerifyToken(context.Background(), sess, "x"), ErrCSRFTokenMissing)
}
