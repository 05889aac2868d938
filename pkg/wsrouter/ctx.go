package wsrouter

import "context"

type ctxKey string

const (
	messageTypeKey ctxKey = "message_type"
)

func GetMessageTypeFromCtx(ctx context.Context) string {
	if messageType, ok := ctx.Value(messageTypeKey).(string); ok {
		return messageType
	}
	return ""
}
