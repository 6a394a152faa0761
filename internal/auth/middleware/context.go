package auth

import "context"

type subjectKey struct{}

// WithSubject stores the authenticated username on ctx.
func WithSubject(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, subjectKey{}, username)
}

// SubjectFromContext returns "" when no token was verified.
func SubjectFromContext(ctx context.Context) string {
	username, _ := ctx.Value(subjectKey{}).(string)
	return username
}
