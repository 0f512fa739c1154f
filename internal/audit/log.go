package audit

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
)

// Event names emitted by the auth subsystem.
const (
	EventLogin            = "auth.login"
	EventLoginFailed      = "auth.login_failed"
	EventRefresh          = "auth.refresh"
	EventLogout           = "auth.logout"
	EventUserCreated      = "user.created"
	EventPasswordChanged  = "user.password_changed"
	EventUserStatus       = "user.status_changed"
	EventTeamCreated      = "team.created"
	EventMemberAdded      = "team.member_added"
	EventMemberRemoved    = "team.member_removed"
	EventMemberRole       = "team.member_role_changed"
	EventRoleCreated      = "role.created"
	EventRoleDeleted      = "role.deleted"
	EventRolePermissions  = "role.permissions_changed"
	EventPermissionDenied = "authz.denied"
)

type ctxKey string

const (
	requestIDKey ctxKey = "audit_request_id"
	actorKey     ctxKey = "audit_actor_id"
)

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithActor attaches the acting user to the context for audit logging.
func WithActor(ctx context.Context, userID string) context.Context {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, actorKey, userID)
}

func stringFromContext(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// Logger writes audit entries through a zap logger.
type Logger struct {
	log *zap.Logger
}

// NewLogger wraps log. A nil log discards entries.
func NewLogger(log *zap.Logger) *Logger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Logger{log: log.With(zap.String("type", "audit"))}
}

// LogEvent writes an audit log entry enriched with request and actor context.
func (l *Logger) LogEvent(ctx context.Context, event string, fields ...zap.Field) error {
	if l == nil {
		return nil
	}
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	all := make([]zap.Field, 0, len(fields)+3)
	all = append(all, zap.String("event", event))
	if rid := stringFromContext(ctx, requestIDKey); rid != "" {
		all = append(all, zap.String("request_id", rid))
	}
	if actor := stringFromContext(ctx, actorKey); actor != "" {
		all = append(all, zap.String("actor_id", actor))
	}
	all = append(all, fields...)
	l.log.Info("audit", all...)
	return nil
}
