package common

import "context"

type ctxKey string

const callerIDKey ctxKey = "auth/caller-id"

// WithCallerID stores the authenticated merchant caller on the provided context.
func WithCallerID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, callerIDKey, id)
}

// CallerID extracts the authenticated merchant caller from the context if present.
func CallerID(ctx context.Context) (string, bool) {
	v := ctx.Value(callerIDKey)
	if v == nil {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}
