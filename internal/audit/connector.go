package audit

import (
	"context"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-audit-connector/internal/callctx"
)

const (
	kindSimple   = "simple"
	kindExtended = "extended"
	kindMerged   = "merged"
)

// Config управляет глобальным выключателем и размером пула.
type Config struct {
	Enabled   bool
	Workers   int
	QueueSize int
}

// Connector доставляет события аудита: основной handler, при отказе — запасной LoggingHandler.
// Все публичные методы возвращают канал, в который придет ровно один AuditResult.
type Connector struct {
	enabled  bool
	simple   Handler // Приемник одиночных событий (simple и extended)
	merged   Handler // Приемник merged-событий
	fallback Handler
	pool     *Pool
	logger   *zap.Logger
	metrics  *Metrics
}

func NewConnector(cfg Config, simple, merged, fallback Handler, logger *zap.Logger, metrics *Metrics) *Connector {
	logger = logger.Named("audit-connector")
	return &Connector{
		enabled:  cfg.Enabled,
		simple:   simple,
		merged:   merged,
		fallback: fallback,
		pool:     NewPool(cfg.Workers, cfg.QueueSize, logger, metrics),
		logger:   logger,
		metrics:  metrics,
	}
}

func (c *Connector) Start() {
	c.pool.Start()
}

// Stop дожидается доставки уже принятых событий.
func (c *Connector) Stop(ctx context.Context) error {
	return c.pool.Stop(ctx)
}

func (c *Connector) IsEnabled() bool {
	return c.enabled
}

func (c *Connector) SendEvent(ctx context.Context, cc callctx.CallContext, event DataEvent) <-chan AuditResult {
	return c.dispatch(ctx, cc, kindSimple, func() ([]byte, error) {
		return SerialiseDataEvent(event)
	}, c.simple)
}

// SendExtendedEvent уходит в тот же приемник, что и SendEvent.
func (c *Connector) SendExtendedEvent(ctx context.Context, cc callctx.CallContext, event ExtendedDataEvent) <-chan AuditResult {
	return c.dispatch(ctx, cc, kindExtended, func() ([]byte, error) {
		return SerialiseExtendedEvent(event)
	}, c.simple)
}

func (c *Connector) SendMergedEvent(ctx context.Context, cc callctx.CallContext, event MergedDataEvent) <-chan AuditResult {
	return c.dispatch(ctx, cc, kindMerged, func() ([]byte, error) {
		return SerialiseMergedEvent(event)
	}, c.merged)
}

func (c *Connector) dispatch(
	ctx context.Context,
	cc callctx.CallContext,
	kind string,
	serialise func() ([]byte, error),
	primary Handler,
) <-chan AuditResult {
	out := make(chan AuditResult, 1)

	if !c.enabled {
		c.logger.Info("auditing disabled, event not sent",
			zap.String("event_kind", kind),
			zap.String("request_id", cc.RequestID),
			zap.String("session_id", cc.SessionID),
		)
		c.metrics.observe(kind, Disabled, 0)
		out <- Disabled
		close(out)
		return out
	}

	// Отмена вызывающего контекста не прерывает уже принятую отправку
	jobCtx := context.WithoutCancel(ctx)
	start := time.Now()

	err := c.pool.Submit(func() {
		res := Failure(MsgSendFailed, nil)
		defer func() {
			c.metrics.observe(kind, res, time.Since(start).Seconds())
			out <- res
			close(out)
		}()
		res = c.deliver(jobCtx, kind, serialise, primary)
	})
	if err != nil {
		// Очередь недоступна: событие не теряем молча, а пишем в запасной лог
		c.logger.Error("audit dispatch rejected by pool",
			zap.String("event_kind", kind),
			zap.String("request_id", cc.RequestID),
			zap.Error(err),
		)
		if payload, serr := serialise(); serr == nil {
			c.metrics.fallback(kind)
			c.send(jobCtx, c.fallback, payload)
		}
		res := Failure(MsgSendFailed, err)
		c.metrics.observe(kind, res, time.Since(start).Seconds())
		out <- res
		close(out)
	}
	return out
}

func (c *Connector) deliver(ctx context.Context, kind string, serialise func() ([]byte, error), primary Handler) AuditResult {
	payload, err := serialise()
	if err != nil {
		c.logger.Error("audit event serialisation failed", zap.String("event_kind", kind), zap.Error(err))
		return Failure(MsgSendFailed, err)
	}

	hr := c.send(ctx, primary, payload)
	if hr == HandlerFailure {
		// Исход запасного пути на результат не влияет
		c.metrics.fallback(kind)
		c.send(ctx, c.fallback, payload)
	}
	return ResultOf(hr)
}

// send вызывает handler; паника внутри него считается HandlerFailure.
func (c *Connector) send(ctx context.Context, h Handler, payload []byte) (hr HandlerResult) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("audit handler panicked",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			hr = HandlerFailure
		}
	}()
	return h.SendEvent(ctx, payload)
}
