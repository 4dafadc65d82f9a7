package shared

import (
	"context"
	"strconv"
)

type sessionKey struct{}

// ContextWithSession attaches sess to ctx for downstream handlers.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, sess)
}

// SessionFromContext returns the request session, or nil outside the
// session middleware.
func SessionFromContext(ctx context.Context) *Session {
	if sess, ok := ctx.Value(sessionKey{}).(*Session); ok {
		return sess
	}
	return nil
}

// SessionUserID returns the numeric user id bound to the live session in
// ctx. ok is false when there is no session, it was destroyed, or it carries
// no parsable user.
func SessionUserID(ctx context.Context) (id int64, ok bool) {
	sess := SessionFromContext(ctx)
	if sess == nil || sess.Destroyed() || sess.User() == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(sess.User(), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
