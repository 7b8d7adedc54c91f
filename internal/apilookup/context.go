package apilookup

import "context"

type contextKey struct{}

var apiIDKey = contextKey{}

// WithAPIID attaches the published API ID a request targets, extracted from
// the route's URL parameter by the outer router before the payment gate
// runs.
func WithAPIID(ctx context.Context, apiID string) context.Context {
	return context.WithValue(ctx, apiIDKey, apiID)
}

// APIIDFromContext reports the API ID attached by WithAPIID, if any.
func APIIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(apiIDKey).(string)
	return id, ok
}
