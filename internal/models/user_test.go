package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRole_Valid(t *testing.T) {
	t.Parallel()

	require.True(t, RoleUser.Valid())
	require.True(t, RoleAdmin.Valid())
	require.False(t, Role("").Valid())
	require.False(t, Role("admin").Valid())
}

func TestParseRole(t *testing.T) {
	t.Parallel()

	r, err := ParseRole("Admin")
	require.NoError(t, err)
	require.Equal(t, RoleAdmin, r)

	_, err = ParseRole("root")
	require.ErrorIs(t, err, ErrUnknownRole)

	_, err = ParseRole("")
	require.ErrorIs(t, err, ErrUnknownRole)
}

func TestUser_RefreshSlot(t *testing.T) {
	t.Parallel()

	var u User
	require.False(t, u.HasRefreshToken())

	exp := time.Date(2030, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))
	u.SetRefreshToken("rt-1", exp)
	require.True(t, u.HasRefreshToken())
	require.Equal(t, "rt-1", *u.RefreshToken)
	require.Equal(t, time.UTC, u.RefreshTokenExpiresAt.Location())
	require.True(t, exp.Equal(*u.RefreshTokenExpiresAt))

	u.SetRefreshToken("rt-2", exp.Add(time.Hour))
	require.Equal(t, "rt-2", *u.RefreshToken)

	u.ClearRefreshToken()
	require.False(t, u.HasRefreshToken())
	require.Nil(t, u.RefreshToken)
	require.Nil(t, u.RefreshTokenExpiresAt)
}
