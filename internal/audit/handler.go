package audit

import (
	"context"

	"go.uber.org/zap"
)

// Handler доставляет одно сериализованное событие и сообщает исход.
// Реализации: datastream (connectors.DatastreamHandler) и LoggingHandler.
type Handler interface {
	SendEvent(ctx context.Context, payload []byte) HandlerResult
}

// HandlerFunc позволяет использовать обычную функцию как Handler.
type HandlerFunc func(ctx context.Context, payload []byte) HandlerResult

func (f HandlerFunc) SendEvent(ctx context.Context, payload []byte) HandlerResult {
	return f(ctx, payload)
}

// LoggingHandler — запасной путь: пишет пропущенное событие в лог и всегда возвращает Success.
type LoggingHandler struct {
	logger *zap.Logger
}

func NewLoggingHandler(logger *zap.Logger) *LoggingHandler {
	return &LoggingHandler{logger: logger.Named("audit-fallback")}
}

func (h *LoggingHandler) SendEvent(_ context.Context, payload []byte) HandlerResult {
	h.logger.Warn("DS_EventMissed_AuditRequestFailure",
		zap.ByteString("audit_item", payload),
	)
	return HandlerSuccess
}
