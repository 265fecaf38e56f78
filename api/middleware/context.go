package middleware

import (
	"context"

	"github.com/angelmondragon/fintrack-backend/pkg/enums"
	"github.com/angelmondragon/fintrack-backend/pkg/outbox"
)

type contextKey string

const (
	ctxSubscriberID contextKey = "subscriber_id"
	ctxRole         contextKey = "actor_role"
)

// SubscriberIDFromContext returns the caller's subscriber id, zero for admin
// tokens not bound to a subscriber.
func SubscriberIDFromContext(ctx context.Context) uint64 {
	if ctx == nil {
		return 0
	}
	if v, ok := ctx.Value(ctxSubscriberID).(uint64); ok {
		return v
	}
	return 0
}

func RoleFromContext(ctx context.Context) enums.ActorRole {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRole).(enums.ActorRole); ok {
		return v
	}
	return ""
}

// IsAdmin reports whether the authenticated caller holds the admin role.
func IsAdmin(ctx context.Context) bool {
	return RoleFromContext(ctx) == enums.ActorRoleAdmin
}

// WithPrincipal injects the authenticated caller into the context.
func WithPrincipal(ctx context.Context, subscriberID uint64, role enums.ActorRole) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxSubscriberID, subscriberID)
	return context.WithValue(ctx, ctxRole, role)
}

// ActorFromContext describes the caller for audit payloads.
func ActorFromContext(ctx context.Context) *outbox.ActorRef {
	role := RoleFromContext(ctx)
	if role == "" {
		return nil
	}
	ref := &outbox.ActorRef{Role: string(role), Source: "api"}
	if id := SubscriberIDFromContext(ctx); id != 0 {
		ref.SubscriberID = &id
	}
	return ref
}
