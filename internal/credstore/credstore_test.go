package credstore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/and161185/exam-client/internal/errs"
)

func signed(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := tok.SignedString([]byte("k"))
	require.NoError(t, err)
	return s
}

func Test_DefaultDir_UsesXDG(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	require.Equal(t, filepath.Join(dir, "examclient"), DefaultDir())

	s := NewFileStore("")
	require.Equal(t, filepath.Join(dir, "examclient", "token.json"), s.Path())
}

func Test_FileStore_SaveLoadClear(t *testing.T) {
	t.Parallel()
	s := NewFileStore(filepath.Join(t.TempDir(), "cfg"))

	_, err := s.Load()
	require.ErrorIs(t, err, errs.ErrNoCredential)

	require.NoError(t, s.Save("opaque-token"))
	got, err := s.Load()
	require.NoError(t, err)
	require.Equal(t, "opaque-token", got)

	fi, err := os.Stat(s.Path())
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), fi.Mode().Perm())

	require.NoError(t, s.Clear())
	_, err = s.Load()
	require.ErrorIs(t, err, errs.ErrNoCredential)

	// idempotent
	require.NoError(t, s.Clear())
}

func Test_FileStore_ExpiredJWT(t *testing.T) {
	t.Parallel()
	s := NewFileStore(t.TempDir())

	live := signed(t, time.Now().Add(time.Hour))
	require.NoError(t, s.Save(live))
	got, err := s.Load()
	require.NoError(t, err)
	require.Equal(t, live, got)

	require.NoError(t, s.Save(signed(t, time.Now().Add(-time.Minute))))
	_, err = s.Load()
	require.ErrorIs(t, err, errs.ErrNoCredential)
}

func Test_FileStore_CorruptFile(t *testing.T) {
	t.Parallel()
	s := NewFileStore(t.TempDir())
	require.NoError(t, os.WriteFile(s.Path(), []byte("{not json"), 0o600))
	_, err := s.Load()
	require.Error(t, err)
	require.NotErrorIs(t, err, errs.ErrNoCredential)
}

func Test_Memory(t *testing.T) {
	t.Parallel()
	m := NewMemory("")
	_, err := m.Load()
	require.ErrorIs(t, err, errs.ErrNoCredential)

	require.NoError(t, m.Save("t1"))
	got, err := m.Load()
	require.NoError(t, err)
	require.Equal(t, "t1", got)

	require.NoError(t, m.Clear())
	_, err = m.Load()
	require.ErrorIs(t, err, errs.ErrNoCredential)
}

func Test_Expiry(t *testing.T) {
	t.Parallel()
	exp := time.Now().Add(10 * time.Minute).Truncate(time.Second)
	got, ok := Expiry(signed(t, exp))
	require.True(t, ok)
	require.True(t, got.Equal(exp))

	_, ok = Expiry("not-a-jwt")
	require.False(t, ok)

	require.True(t, Expired(signed(t, time.Now().Add(-time.Second)), time.Now()))
	require.False(t, Expired("not-a-jwt", time.Now()))
}
