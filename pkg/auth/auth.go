package auth

import (
	"context"
	"errors"
	"slices"
)

type contextKey string

const userContextKey contextKey = "user_context"

const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

// UserContext is the caller identity of a single request. It travels in the
// request's context.Context and is never read from process-wide state.
type UserContext struct {
	UserID string
	Roles  []string
}

// ContextWithUserContext adds user context to the context
func ContextWithUserContext(ctx context.Context, userCtx *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey, userCtx)
}

// UserContextFromContext extracts user context from the context
func UserContextFromContext(ctx context.Context) (*UserContext, error) {
	userCtx, ok := ctx.Value(userContextKey).(*UserContext)
	if !ok {
		return nil, errors.New("user context not found")
	}
	return userCtx, nil
}

type Authorizer struct{}

func NewAuthorizer() *Authorizer {
	return &Authorizer{}
}

// CanView allows any authenticated member to read visible items.
func (a *Authorizer) CanView(userCtx *UserContext) bool {
	return hasRole(userCtx, RoleStudent) || a.CanEdit(userCtx)
}

// CanViewHidden allows editors to see hidden items as well.
func (a *Authorizer) CanViewHidden(userCtx *UserContext) bool {
	return a.CanEdit(userCtx)
}

// CanEdit allows creating, reordering, hiding and deleting items.
func (a *Authorizer) CanEdit(userCtx *UserContext) bool {
	return hasRole(userCtx, RoleTeacher) || hasRole(userCtx, RoleAdmin)
}

func hasRole(userCtx *UserContext, role string) bool {
	return slices.Contains(userCtx.Roles, role)
}
