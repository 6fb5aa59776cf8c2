package auth

import "context"

type resultKey struct{}

// ContextWithResult attaches an authentication result to the request context.
func ContextWithResult(ctx context.Context, res Result) context.Context {
	return context.WithValue(ctx, resultKey{}, res)
}

// ResultFromContext returns the authentication result attached by middleware,
// if any.
func ResultFromContext(ctx context.Context) (Result, bool) {
	res, ok := ctx.Value(resultKey{}).(Result)
	return res, ok
}
