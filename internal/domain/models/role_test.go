package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoleWire(t *testing.T) {
	assert.Equal(t, "ROLE_USER", RoleUser.Wire())
	assert.Equal(t, "ROLE_ADMIN", RoleAdmin.Wire())

	// An already-prefixed value stays as is.
	assert.Equal(t, "ROLE_ADMIN", Role("ROLE_ADMIN").Wire())
}

func TestParseRole(t *testing.T) {
	assert.Equal(t, RoleAdmin, ParseRole("ROLE_ADMIN"))
	assert.Equal(t, RoleAdmin, ParseRole("admin"))
	assert.Equal(t, RoleUser, ParseRole("ROLE_USER"))
	assert.Equal(t, RoleUser, ParseRole(" user "))

	// Unknown roles degrade to the least privilege.
	assert.Equal(t, RoleUser, ParseRole("ROLE_SUPERADMIN"))
	assert.Equal(t, RoleUser, ParseRole(""))
}

func TestWireRoles(t *testing.T) {
	got := WireRoles([]Role{RoleUser, RoleAdmin})
	assert.Equal(t, []string{"ROLE_USER", "ROLE_ADMIN"}, got)

	assert.Empty(t, WireRoles(nil))
}
