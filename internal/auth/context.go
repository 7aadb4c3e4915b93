package auth

import "context"

type contextKey struct{}

// AuthContext identifies the signed-in user of a request.
type AuthContext struct {
	UserID      int64
	SessionID   int64
	IsSuperuser bool
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

// UserID returns the signed-in user's id, or 0 for anonymous requests.
func UserID(ctx context.Context) int64 {
	ac, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return ac.UserID
}

func IsSuperuser(ctx context.Context) bool {
	ac, ok := FromContext(ctx)
	return ok && ac.IsSuperuser
}
