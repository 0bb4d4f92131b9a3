package connectors

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-audit-connector/internal/audit"
)

// Значения по умолчанию для приемника datastream.
const (
	DefaultProtocol       = "http"
	DefaultHost           = "datastream.service"
	DefaultPort           = 90
	DefaultSingleEventURI = "/write/audit"
	DefaultMergedEventURI = "/write/audit/merged"
	DefaultConnectTimeout = 5000 * time.Millisecond
	DefaultRequestTimeout = 5000 * time.Millisecond
)

// BreakerConfig — настройки предохранителя перед datastream.
type BreakerConfig struct {
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration // Время, через которое CB попробует "закрыться"
	ConsecutiveFailures uint32
}

type DatastreamConfig struct {
	Name           string
	Protocol       string
	Host           string
	Port           int
	Path           string
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	RetryAttempts  uint
	Breaker        BreakerConfig
}

// URL собирает адрес приемника.
func (c DatastreamConfig) URL() string {
	return fmt.Sprintf("%s://%s:%d%s", c.Protocol, c.Host, c.Port, c.Path)
}

func (c DatastreamConfig) withDefaults() DatastreamConfig {
	if c.Protocol == "" {
		c.Protocol = DefaultProtocol
	}
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Path == "" {
		c.Path = DefaultSingleEventURI
	}
	if c.Name == "" {
		c.Name = c.Path
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.RetryAttempts == 0 {
		c.RetryAttempts = 1
	}
	if c.Breaker.MaxRequests == 0 {
		c.Breaker.MaxRequests = 3
	}
	if c.Breaker.Interval == 0 {
		c.Breaker.Interval = 5 * time.Second
	}
	if c.Breaker.Timeout == 0 {
		c.Breaker.Timeout = 30 * time.Second
	}
	if c.Breaker.ConsecutiveFailures == 0 {
		c.Breaker.ConsecutiveFailures = 5
	}
	return c
}

// DatastreamHandler отправляет сериализованное событие POST-запросом в datastream.
// Таймауты соединения и запроса задаются здесь, диспетчер о них не знает.
type DatastreamHandler struct {
	cfg      DatastreamConfig
	url      string
	client   *http.Client
	cb       *gobreaker.CircuitBreaker
	attempts uint
	logger   *zap.Logger
}

func NewDatastreamHandler(cfg DatastreamConfig, logger *zap.Logger, metrics *audit.Metrics) *DatastreamHandler {
	cfg = cfg.withDefaults()

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   cfg.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext

	return newDatastreamHandler(cfg, &http.Client{
		Transport: transport,
		Timeout:   cfg.RequestTimeout,
	}, logger, metrics)
}

func newDatastreamHandler(cfg DatastreamConfig, client *http.Client, logger *zap.Logger, metrics *audit.Metrics) *DatastreamHandler {
	logger = logger.With(zap.String("mod", "datastream"), zap.String("handler", cfg.Name))

	// Настройка предохранителя
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "datastream" + cfg.Path,
		MaxRequests: cfg.Breaker.MaxRequests,
		Interval:    cfg.Breaker.Interval,
		Timeout:     cfg.Breaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.Breaker.ConsecutiveFailures
		},
		// Отказ приемника принять событие — это ответ, а не поломка
		IsSuccessful: func(err error) bool {
			var rejected *RejectedError
			return err == nil || errors.As(err, &rejected)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			metrics.SetBreakerState(cfg.Name, float64(to))
		},
	})

	return &DatastreamHandler{
		cfg:      cfg,
		url:      cfg.URL(),
		client:   client,
		cb:       cb,
		attempts: cfg.RetryAttempts,
		logger:   logger,
	}
}

func (h *DatastreamHandler) SendEvent(ctx context.Context, payload []byte) audit.HandlerResult {
	_, err := h.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(h.attempts),
			retry.LastErrorOnly(true),
			retry.RetryIf(isRetryable),
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				// Если datastream вернул ThrottleError (считали Retry-After заголовок)
				var tErr *ThrottleError
				if errors.As(err, &tErr) {
					return min(tErr.RetryAfter, h.cfg.RequestTimeout)
				}
				return retry.BackOffDelay(n, err, config)
			}),
		)
		return nil, r.Do(func() error {
			return h.post(ctx, payload)
		})
	})

	if err == nil {
		return audit.HandlerSuccess
	}

	var rejected *RejectedError
	switch {
	case errors.As(err, &rejected):
		h.logger.Warn("audit event rejected by datastream",
			zap.Int("status", rejected.StatusCode),
			zap.String("reason", rejected.Reason),
		)
		return audit.HandlerRejected
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		h.logger.Warn("datastream circuit breaker is open, event not sent", zap.Error(err))
		return audit.HandlerFailure
	default:
		h.logger.Error("failed to send audit event to datastream", zap.String("url", h.url), zap.Error(err))
		return audit.HandlerFailure
	}
}

func (h *DatastreamHandler) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build datastream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("datastream call failed: %w", err)
	}
	defer resp.Body.Close()
	// Вычитываем тело, чтобы соединение вернулось в пул
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusBadRequest:
		return &RejectedError{StatusCode: resp.StatusCode, Reason: "malformed request"}
	case resp.StatusCode == http.StatusRequestEntityTooLarge:
		return &RejectedError{StatusCode: resp.StatusCode, Reason: "request too large"}
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode == http.StatusServiceUnavailable:
		if after, ok := parseRetryAfter(resp.Header.Get("Retry-After")); ok {
			return &ThrottleError{RetryAfter: after, Cause: &StatusError{StatusCode: resp.StatusCode}}
		}
		return &StatusError{StatusCode: resp.StatusCode}
	default:
		return &StatusError{StatusCode: resp.StatusCode}
	}
}

func isRetryable(err error) bool {
	var rejected *RejectedError
	if errors.As(err, &rejected) {
		return false
	}
	var throttled *ThrottleError
	if errors.As(err, &throttled) {
		return true
	}
	var status *StatusError
	if errors.As(err, &status) {
		return status.Retryable()
	}
	// Сетевые ошибки и таймауты
	return true
}

func parseRetryAfter(v string) (time.Duration, bool) {
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d, true
		}
		return 0, true
	}
	return 0, false
}
