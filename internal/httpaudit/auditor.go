// Package httpaudit превращает исходящие HTTP-вызовы приложения в merged-события аудита.
package httpaudit

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-audit-connector/internal/audit"
	"github.com/xela07ax/spaceai-audit-connector/internal/callctx"
)

const (
	// OutboundCallAuditType — auditType для всех событий об исходящих вызовах.
	OutboundCallAuditType = "OutboundCall"

	// IngestionPath — вызовы самого datastream не аудируются (иначе аудит аудита).
	IngestionPath = "/write/audit"

	// DefaultExclusionPattern пропускает внутренний трафик сервис-к-сервису.
	DefaultExclusionPattern = `http(s)?://.*\.(service|mdtp)($|[:/])`
)

// Ключи деталей запроса и ответа.
const (
	DetailPath                 = "path"
	DetailMethod               = "method"
	DetailRequestBody          = "requestBody"
	DetailResponseMessage      = "responseMessage"
	DetailStatusCode           = "statusCode"
	DetailFailedRequestMessage = "failedRequestMessage"
)

// optionalHeaderFields — заголовки, которые попадают в детали запроса, если присутствуют.
var optionalHeaderFields = map[string]string{
	"Surrogate": "surrogate",
}

// MergedSender — то, что нужно аудитору от audit.Connector.
type MergedSender interface {
	SendMergedEvent(ctx context.Context, cc callctx.CallContext, event audit.MergedDataEvent) <-chan audit.AuditResult
}

// Request — снимок исходящего запроса в момент старта вызова.
type Request struct {
	URL         string
	Verb        string
	Body        *string
	GeneratedAt time.Time
}

// Response — то, что аудитору нужно от ответа.
type Response struct {
	Status int
	Body   string
}

type Config struct {
	AppName          string
	ExclusionPattern string // Пусто — DefaultExclusionPattern
}

// Auditor строит и отправляет merged-события для исходящих вызовов.
type Auditor struct {
	appName  string
	excluded *regexp.Regexp
	sender   MergedSender
	now      func() time.Time
	logger   *zap.Logger
}

func NewAuditor(cfg Config, sender MergedSender, logger *zap.Logger) (*Auditor, error) {
	pattern := cfg.ExclusionPattern
	if pattern == "" {
		pattern = DefaultExclusionPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("httpaudit: invalid exclusion pattern %q: %w", pattern, err)
	}
	return &Auditor{
		appName:  cfg.AppName,
		excluded: re,
		sender:   sender,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.Named("http-audit"),
	}, nil
}

// Capture фиксирует запрос в момент старта вызова.
func (a *Auditor) Capture(url, verb string, body *string) Request {
	return Request{URL: url, Verb: verb, Body: body, GeneratedAt: a.now()}
}

// IsAuditable — false для вызовов datastream и для адресов, попавших под шаблон исключения.
func (a *Auditor) IsAuditable(url string) bool {
	return !strings.Contains(url, IngestionPath) && !a.excluded.MatchString(url)
}

// Audit обрабатывает завершенный вызов: resp при успехе, callErr при ошибке.
// Не блокирует и не возвращает ошибок: исход аудируемого вызова остается прежним.
func (a *Auditor) Audit(ctx context.Context, cc callctx.CallContext, req Request, resp *Response, callErr error) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("http audit panicked", zap.Any("panic", r), zap.String("url", req.URL))
		}
	}()

	if !a.IsAuditable(req.URL) {
		return
	}

	event := a.BuildEvent(cc, req, resp, callErr)
	a.submit(ctx, cc, event)
}

// AuditFromPlugin отправляет запись по известной паре URL + ответ, минуя перехват вызова.
func (a *Auditor) AuditFromPlugin(ctx context.Context, cc callctx.CallContext, url, verb string, body *string, resp Response) {
	req := a.Capture(url, verb, body)
	a.Audit(ctx, cc, req, &resp, nil)
}

// BuildEvent собирает MergedDataEvent из снимка запроса и результата вызова.
func (a *Auditor) BuildEvent(cc callctx.CallContext, req Request, resp *Response, callErr error) audit.MergedDataEvent {
	requestDetail := map[string]string{
		DetailPath:   req.URL,
		DetailMethod: req.Verb,
	}
	if req.Body != nil {
		requestDetail[DetailRequestBody] = *req.Body
	}
	for header, field := range optionalHeaderFields {
		if v, ok := cc.ExtraHeader(header); ok {
			requestDetail[field] = v
		}
	}

	request := audit.DataCall{
		Tags:        cc.AuditTags(OutboundCallAuditType, req.URL),
		Detail:      cc.AuditDetails(requestDetail),
		GeneratedAt: req.GeneratedAt,
	}

	response := audit.DataCall{
		Tags:        map[string]string{},
		Detail:      responseDetail(resp, callErr),
		GeneratedAt: a.now(),
	}

	return audit.NewMergedDataEvent(a.appName, OutboundCallAuditType, request, response)
}

func responseDetail(resp *Response, callErr error) map[string]string {
	if callErr != nil || resp == nil {
		msg := "no response"
		if callErr != nil {
			msg = callErr.Error()
		}
		return map[string]string{DetailFailedRequestMessage: msg}
	}
	return map[string]string{
		DetailResponseMessage: resp.Body,
		DetailStatusCode:      strconv.Itoa(resp.Status),
	}
}

func (a *Auditor) submit(ctx context.Context, cc callctx.CallContext, event audit.MergedDataEvent) {
	results := a.sender.SendMergedEvent(ctx, cc, event)

	// Результат нужен только для диагностики, ждем его в фоне
	go func() {
		res := <-results
		if res.IsFailure() {
			a.logger.Debug("outbound call audit not delivered",
				zap.String("event_id", event.EventID),
				zap.String("result", res.String()),
			)
		}
	}()
}
