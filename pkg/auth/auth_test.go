package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserContextRoundTrip(t *testing.T) {
	_, err := UserContextFromContext(context.Background())
	assert.Error(t, err)

	ctx := ContextWithUserContext(context.Background(), &UserContext{UserID: "u1", Roles: []string{RoleStudent}})
	got, err := UserContextFromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
}

func TestAuthorizer(t *testing.T) {
	authz := NewAuthorizer()

	student := &UserContext{UserID: "s", Roles: []string{RoleStudent}}
	teacher := &UserContext{UserID: "t", Roles: []string{RoleTeacher}}
	admin := &UserContext{UserID: "a", Roles: []string{RoleAdmin}}
	nobody := &UserContext{UserID: "n"}

	assert.True(t, authz.CanView(student))
	assert.False(t, authz.CanViewHidden(student))
	assert.False(t, authz.CanEdit(student))

	assert.True(t, authz.CanView(teacher))
	assert.True(t, authz.CanViewHidden(teacher))
	assert.True(t, authz.CanEdit(teacher))
	assert.True(t, authz.CanEdit(admin))

	assert.False(t, authz.CanView(nobody))
}
