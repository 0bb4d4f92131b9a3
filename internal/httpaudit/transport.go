package httpaudit

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/xela07ax/spaceai-audit-connector/internal/callctx"
)

// maxCapturedBody ограничивает, сколько тела попадет в событие аудита.
const maxCapturedBody = 1 << 20

// Transport оборачивает http.RoundTripper и аудирует каждый исходящий вызов.
// CallContext берется из контекста запроса (см. callctx.WithCallContext).
type Transport struct {
	next    http.RoundTripper
	auditor *Auditor
}

func NewTransport(next http.RoundTripper, auditor *Auditor) *Transport {
	if next == nil {
		next = http.DefaultTransport
	}
	return &Transport{next: next, auditor: auditor}
}

// Client — удобная обертка: http.Client с аудирующим транспортом.
func (a *Auditor) Client(base *http.Client) *http.Client {
	c := &http.Client{}
	if base != nil {
		*c = *base
	}
	c.Transport = NewTransport(c.Transport, a)
	return c
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	url := req.URL.String()
	if !t.auditor.IsAuditable(url) {
		return t.next.RoundTrip(req)
	}

	var body *string
	if req.Body != nil && req.Body != http.NoBody && req.GetBody != nil {
		// Читаем копию, оригинальное тело остается нетронутым
		if rc, err := req.GetBody(); err == nil {
			b, _ := io.ReadAll(io.LimitReader(rc, maxCapturedBody))
			rc.Close()
			s := string(b)
			body = &s
		}
	}

	captured := t.auditor.Capture(url, req.Method, body)
	cc := callctx.FromContext(req.Context())

	resp, err := t.next.RoundTrip(req)
	if err != nil {
		t.auditor.Audit(req.Context(), cc, captured, nil, err)
		return resp, err
	}

	// 101 Switching Protocols отдает io.ReadWriteCloser, его не оборачиваем
	if _, upgraded := resp.Body.(io.Writer); resp.Body == nil || resp.Body == http.NoBody || upgraded {
		t.auditor.Audit(req.Context(), cc, captured, &Response{Status: resp.StatusCode}, nil)
		return resp, nil
	}

	// Ответ уходит вызывающему сразу, событие отправится, когда тело дочитают или закроют
	status := resp.StatusCode
	resp.Body = &auditedBody{
		ReadCloser: resp.Body,
		onDone: func(body string) {
			t.auditor.Audit(req.Context(), cc, captured, &Response{Status: status, Body: body}, nil)
		},
	}
	return resp, nil
}

// auditedBody копирует первые maxCapturedBody байт по мере чтения
// и вызывает onDone ровно один раз: на EOF, ошибке чтения или Close.
type auditedBody struct {
	io.ReadCloser

	mu      sync.Mutex
	buf     bytes.Buffer
	readErr bool
	once    sync.Once
	onDone  func(body string)
}

func (b *auditedBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)

	b.mu.Lock()
	if room := maxCapturedBody - b.buf.Len(); n > 0 && room > 0 {
		b.buf.Write(p[:min(n, room)])
	}
	if err != nil && !errors.Is(err, io.EOF) {
		b.readErr = true
	}
	b.mu.Unlock()

	if err != nil {
		b.finish()
	}
	return n, err
}

func (b *auditedBody) Close() error {
	err := b.ReadCloser.Close()
	b.finish()
	return err
}

func (b *auditedBody) finish() {
	b.once.Do(func() {
		b.mu.Lock()
		body := b.buf.String()
		if b.readErr {
			// Обрыв посреди тела: в событие не пишем частичный ответ
			body = ""
		}
		b.mu.Unlock()
		b.onDone(body)
	})
}
