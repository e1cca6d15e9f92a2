package auth

import (
	"context"

	"github.com/chepyr/go-todo-tree/internal/models"
)

type contextKey struct{}

func ContextWithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, contextKey{}, user)
}

// UserFromContext returns the authenticated user stored by the auth
// middleware, if any.
func UserFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(contextKey{}).(*models.User)
	return user, ok && user != nil
}
