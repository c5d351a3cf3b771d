package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	for _, s := range []string{"superadmin", "admin", "agent"} {
		role, err := ParseRole(s)
		require.NoError(t, err)
		assert.Equal(t, s, role.String())
	}

	for _, s := range []string{"", "Agent", "root", "patient"} {
		_, err := ParseRole(s)
		assert.Error(t, err, "role %q should be rejected", s)
	}
}

func TestManagesAllBookings(t *testing.T) {
	assert.True(t, RoleSuperadmin.ManagesAllBookings())
	assert.True(t, RoleAdmin.ManagesAllBookings())
	assert.False(t, RoleAgent.ManagesAllBookings())
	assert.False(t, Role("patient").ManagesAllBookings())
}
