package fakeapi

import (
	"context"
)

type ctxKey string

const userIDKey ctxKey = "exam.userID"

// withUserID stores the authenticated user ID in context.
func withUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// userIDFromCtx fetches the user ID from context.
func userIDFromCtx(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}
