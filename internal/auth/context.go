package auth

import (
	"context"

	"kubeopt.ai/internal/audit"
)

type contextKey int

const (
	userKey contextKey = iota
	sessionKey
)

// ContextWithUser marks ctx as authenticated as user. Audit entries written
// under the returned context name the user as actor.
func ContextWithUser(ctx context.Context, user *User) context.Context {
	if user == nil || user.ID == "" {
		return ctx
	}
	return context.WithValue(audit.WithActor(ctx, user.ID), userKey, user)
}

// UserFromContext returns the user attached by ContextWithUser.
func UserFromContext(ctx context.Context) (*User, bool) {
	u, ok := ctx.Value(userKey).(*User)
	return u, ok && u != nil
}

// ContextWithSession attaches the refresh session the caller presented.
func ContextWithSession(ctx context.Context, sess Session) context.Context {
	if sess.UserID == "" {
		return ctx
	}
	return context.WithValue(audit.WithActor(ctx, sess.UserID), sessionKey, sess)
}

// SessionFromContext returns the session attached by ContextWithSession.
func SessionFromContext(ctx context.Context) (Session, bool) {
	sess, ok := ctx.Value(sessionKey).(Session)
	return sess, ok && sess.UserID != ""
}

func currentSession(ctx context.Context) (Session, error) {
	sess, ok := SessionFromContext(ctx)
	if !ok {
		return Session{}, newError(CodeTokenError, "No refresh session in context")
	}
	return sess, nil
}
