package auth

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"lifesync/internal/core"
	"lifesync/internal/store/memory"
)

const secret = "0123456789abcdef0123456789abcdef"

func newTokens(t *testing.T) *TokenManager {
	t.Helper()
	m, err := NewTokenManager(secret, time.Hour)
	require.NoError(t, err)
	return m
}

func TestSignUpSignInSignOut(t *testing.T) {
	st := memory.New()
	file := filepath.Join(t.TempDir(), "session.json")
	a := NewLocal(st, newTokens(t), Options{SessionFile: file, BcryptCost: bcrypt.MinCost})
	ctx := context.Background()

	var events []bool
	unsubscribe := a.OnAuthChange(func(_ User, signedIn bool) { events = append(events, signedIn) })

	u, err := a.SignUp(ctx, " Ana@Example.com ", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", u.Email)
	cur, ok := a.CurrentUser()
	require.True(t, ok)
	assert.Equal(t, u.ID, cur.ID)

	info, err := os.Stat(file)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	_, err = a.SignUp(ctx, "ana@example.com", "another pass")
	assert.ErrorIs(t, err, ErrEmailTaken)

	require.NoError(t, a.SignOut(ctx))
	_, ok = a.CurrentUser()
	assert.False(t, ok)
	_, err = os.Stat(file)
	assert.True(t, os.IsNotExist(err))

	_, err = a.SignIn(ctx, "ana@example.com", "wrong password")
	assert.ErrorIs(t, err, core.ErrUnauthorized)
	_, err = a.SignIn(ctx, "nobody@example.com", "whatever1")
	assert.ErrorIs(t, err, core.ErrUnauthorized)

	again, err := a.SignIn(ctx, "ANA@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, u.ID, again.ID)

	unsubscribe()
	require.NoError(t, a.SignOut(ctx))
	assert.Equal(t, []bool{true, false, true}, events)
}

func TestSessionSurvivesRestart(t *testing.T) {
	st := memory.New()
	file := filepath.Join(t.TempDir(), "session.json")
	tokens := newTokens(t)
	a := NewLocal(st, tokens, Options{SessionFile: file, BcryptCost: bcrypt.MinCost})
	u, err := a.SignUp(context.Background(), "ana@example.com", "correct horse")
	require.NoError(t, err)

	b := NewLocal(st, tokens, Options{SessionFile: file})
	cur, ok := b.CurrentUser()
	require.True(t, ok)
	assert.Equal(t, u, cur)
}

func TestExpiredSessionIsDropped(t *testing.T) {
	st := memory.New()
	file := filepath.Join(t.TempDir(), "session.json")
	tokens := newTokens(t)
	a := NewLocal(st, tokens, Options{SessionFile: file, BcryptCost: bcrypt.MinCost})
	_, err := a.SignUp(context.Background(), "ana@example.com", "correct horse")
	require.NoError(t, err)

	tokens.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	b := NewLocal(st, tokens, Options{SessionFile: file})
	_, ok := b.CurrentUser()
	assert.False(t, ok)
	_, err = os.Stat(file)
	assert.True(t, os.IsNotExist(err))
}

func TestCredentialValidation(t *testing.T) {
	a := NewLocal(memory.New(), newTokens(t), Options{BcryptCost: bcrypt.MinCost})
	_, err := a.SignUp(context.Background(), "not-an-email", "short")
	var ve *core.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Errors, 2)
}

func TestTokens(t *testing.T) {
	m := newTokens(t)
	token, err := m.Issue(User{ID: "u1", Email: "a@b.c"})
	require.NoError(t, err)
	u, err := m.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)

	other, err := NewTokenManager("ffffffffffffffffffffffffffffffff", time.Hour)
	require.NoError(t, err)
	_, err = other.Verify(token)
	assert.Error(t, err, "wrong key")

	_, err = m.Verify("")
	assert.Error(t, err)

	_, err = NewTokenManager("short", time.Hour)
	assert.Error(t, err)
}
