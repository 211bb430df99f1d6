package session_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"crewline/internal/session"
)

func TestPutGetDelete(t *testing.T) {
	s := session.New(time.Hour)
	s.Put("ada", "token-1")

	v, ok := s.Get("ada")
	require.True(t, ok)
	require.Equal(t, "token-1", v)

	s.Delete("ada")
	_, ok = s.Get("ada")
	require.False(t, ok)
}

func TestExpiry(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	s := session.New(time.Hour)
	s.Now = func() time.Time { return now }
	s.Put("ada", "token-1")

	now = now.Add(30 * time.Minute)
	_, ok := s.Get("ada")
	require.True(t, ok)

	now = now.Add(31 * time.Minute)
	_, ok = s.Get("ada")
	require.False(t, ok)
	require.Equal(t, 0, s.Len())
}

func TestSweep(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	s := session.New(time.Hour)
	s.Now = func() time.Time { return now }
	s.Put("ada", 1)
	s.Put("ben", 2)

	now = now.Add(2 * time.Hour)
	s.Put("cleo", 3)

	require.Equal(t, 2, s.Sweep())
	require.Equal(t, 1, s.Len())
	_, ok := s.Get("cleo")
	require.True(t, ok)
}
