package controller

import "context"

type ctxKey string

const sessionIdCtxKey ctxKey = "session_id"

func (c *controller) getSessionIdFromCtx(ctx context.Context) string {
	if sessionId, ok := ctx.Value(sessionIdCtxKey).(string); ok {
		return sessionId
	}
	return ""
}
