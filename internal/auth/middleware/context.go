package auth

import "context"

type ctxKey string

const ctxKeySub ctxKey = "sub"

func WithSubject(ctx context.Context, sub string) context.Context {
	return context.WithValue(ctx, ctxKeySub, sub)
}

// SubjectFromContext returns the authenticated user id. Teachers own the
// questions, answers and documents they create under this id.
func SubjectFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeySub).(string); ok {
		return v
	}
	return ""
}
