// Package callctx описывает контекст вызова (корреляционные идентификаторы и
// заголовки клиента), который сопровождает каждое событие аудита.
package callctx

import (
	"context"
	"net/http"
	"strings"
)

// Имена заголовков, из которых собирается CallContext.
const (
	HeaderRequestID        = "X-Request-ID"
	HeaderSessionID        = "X-Session-ID"
	HeaderTrueClientIP     = "True-Client-IP"
	HeaderTrueClientPort   = "True-Client-Port"
	HeaderDeviceID         = "deviceID"
	HeaderAkamaiReputation = "Akamai-Reputation"
	HeaderAuthorization    = "Authorization"
	HeaderToken            = "token"
	HeaderForwardedFor     = "X-Forwarded-For"
)

// Ключи в тегах и деталях события аудита.
const (
	TagRequestID        = "X-Request-ID"
	TagSessionID        = "X-Session-ID"
	TagClientIP         = "clientIP"
	TagClientPort       = "clientPort"
	TagDeviceID         = "deviceID"
	TagAkamaiReputation = "Akamai-Reputation"
	TagTransactionName  = "transactionName"
	TagPath             = "path"

	DetailIPAddress     = "ipAddress"
	DetailAuthorization = "Authorization"
	DetailToken         = "token"
)

// Placeholder подставляется вместо отсутствующих значений.
const Placeholder = "-"

// CallContext — явный контекст одного вызова. Передается аргументом во все операции аудита.
type CallContext struct {
	RequestID        string
	SessionID        string
	TrueClientIP     string
	TrueClientPort   string
	DeviceID         string
	AkamaiReputation string
	Authorization    string
	Token            string
	ForwardedFor     string

	// ExtraHeaders — прочие заголовки, которые приложение пробрасывает дальше.
	ExtraHeaders map[string]string
}

// AuditTags проецирует контекст в теги события.
func (c CallContext) AuditTags(transactionName, path string) map[string]string {
	return map[string]string{
		TagRequestID:        orPlaceholder(c.RequestID),
		TagSessionID:        orPlaceholder(c.SessionID),
		TagClientIP:         orPlaceholder(c.TrueClientIP),
		TagClientPort:       orPlaceholder(c.TrueClientPort),
		TagDeviceID:         orPlaceholder(c.DeviceID),
		TagAkamaiReputation: orPlaceholder(c.AkamaiReputation),
		TagTransactionName:  transactionName,
		TagPath:             path,
	}
}

// AuditDetails проецирует контекст в детали события; details дополняют и перекрывают базовые поля.
func (c CallContext) AuditDetails(details map[string]string) map[string]string {
	out := map[string]string{
		DetailIPAddress:     orPlaceholder(c.ForwardedFor),
		DetailAuthorization: orPlaceholder(c.Authorization),
		DetailToken:         orPlaceholder(c.Token),
	}
	for k, v := range details {
		out[k] = v
	}
	return out
}

// ExtraHeader ищет заголовок без учета регистра.
func (c CallContext) ExtraHeader(name string) (string, bool) {
	if v, ok := c.ExtraHeaders[name]; ok {
		return v, true
	}
	for k, v := range c.ExtraHeaders {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// FromRequest собирает CallContext из заголовков входящего запроса.
func FromRequest(r *http.Request) CallContext {
	h := r.Header
	cc := CallContext{
		RequestID:        h.Get(HeaderRequestID),
		SessionID:        h.Get(HeaderSessionID),
		TrueClientIP:     h.Get(HeaderTrueClientIP),
		TrueClientPort:   h.Get(HeaderTrueClientPort),
		DeviceID:         h.Get(HeaderDeviceID),
		AkamaiReputation: h.Get(HeaderAkamaiReputation),
		Authorization:    h.Get(HeaderAuthorization),
		Token:            h.Get(HeaderToken),
		ForwardedFor:     h.Get(HeaderForwardedFor),
	}
	for name := range h {
		if isKnownHeader(name) {
			continue
		}
		if cc.ExtraHeaders == nil {
			cc.ExtraHeaders = make(map[string]string)
		}
		cc.ExtraHeaders[name] = h.Get(name)
	}
	return cc
}

func isKnownHeader(name string) bool {
	switch http.CanonicalHeaderKey(name) {
	case http.CanonicalHeaderKey(HeaderRequestID),
		http.CanonicalHeaderKey(HeaderSessionID),
		http.CanonicalHeaderKey(HeaderTrueClientIP),
		http.CanonicalHeaderKey(HeaderTrueClientPort),
		http.CanonicalHeaderKey(HeaderDeviceID),
		http.CanonicalHeaderKey(HeaderAkamaiReputation),
		http.CanonicalHeaderKey(HeaderAuthorization),
		http.CanonicalHeaderKey(HeaderToken),
		http.CanonicalHeaderKey(HeaderForwardedFor):
		return true
	}
	return false
}

func orPlaceholder(v string) string {
	if v == "" {
		return Placeholder
	}
	return v
}

// Тип для ключа в контексте (избегаем коллизий)
type ctxKey struct{}

// WithCallContext кладет CallContext в context.Context, чтобы он дошел до исходящих вызовов.
func WithCallContext(ctx context.Context, cc CallContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, cc)
}

// FromContext безопасно достает CallContext; если его нет — пустой контекст.
func FromContext(ctx context.Context) CallContext {
	if cc, ok := ctx.Value(ctxKey{}).(CallContext); ok {
		return cc
	}
	return CallContext{}
}
