package vbc

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agile-defense/evc/pkg/onboard"
)

func TestStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vbcs.dat")
	expiry := time.Now().Add(24 * time.Hour).Truncate(time.Millisecond)

	s, err := Open(path, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, s.Set(onboard.Cover{Country: 1, Marker: 7, Expiry: expiry}))
	require.NoError(t, s.Set(onboard.Cover{Country: 2, Marker: 3, Expiry: expiry}))
	assert.True(t, s.Covered(1, 7, time.Now()))
	assert.False(t, s.Covered(1, 3, time.Now()))
	assert.False(t, s.Covered(1, 7, expiry.Add(time.Second)))

	reopened, err := Open(path, zerolog.Nop())
	require.NoError(t, err)
	covers := reopened.List()
	require.Len(t, covers, 2)
	assert.True(t, expiry.Equal(covers[0].Expiry))
	assert.True(t, reopened.Covered(2, 3, time.Now()))
}

func TestStoreRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vbcs.dat")
	s, err := Open(path, zerolog.Nop())
	require.NoError(t, err)

	expiry := time.Now().Add(time.Hour)
	require.NoError(t, s.Set(onboard.Cover{Country: 1, Marker: 7, Expiry: expiry}))
	require.NoError(t, s.Set(onboard.Cover{Country: 1, Marker: 8, Expiry: expiry}))
	require.NoError(t, s.Set(onboard.Cover{Country: 5, Marker: 8, Expiry: expiry}))

	require.NoError(t, s.Remove(1, 7))
	require.NoError(t, s.Remove(1, 99))
	assert.False(t, s.Covered(1, 7, time.Now()))

	require.NoError(t, s.RetainCountry(1))
	covers := s.List()
	require.Len(t, covers, 1)
	assert.Equal(t, 8, covers[0].Marker)
	assert.Equal(t, 1, covers[0].Country)
}

func TestOpenDropsExpired(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vbcs.dat")
	past := time.Now().Add(-time.Hour).UnixMilli()
	future := time.Now().Add(time.Hour).UnixMilli()
	data := []byte("1 7 " + strconv.FormatInt(past, 10) + "\n\n1 8 " + strconv.FormatInt(future, 10) + "\n")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	s, err := Open(path, zerolog.Nop())
	require.NoError(t, err)
	covers := s.List()
	require.Len(t, covers, 1)
	assert.Equal(t, 8, covers[0].Marker)
}

func TestOpenRejectsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vbcs.dat")
	require.NoError(t, os.WriteFile(path, []byte("1 seven 0\n"), 0o644))

	_, err := Open(path, zerolog.Nop())
	assert.ErrorContains(t, err, "line 1")
}
