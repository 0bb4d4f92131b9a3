package httpaudit

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xela07ax/spaceai-audit-connector/internal/audit"
	"github.com/xela07ax/spaceai-audit-connector/internal/callctx"
)

func TestTransport_AuditsCompletedCall(t *testing.T) {
	var serverSaw string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		serverSaw = string(b)
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, "created")
	}))
	defer srv.Close()

	sender := &recordingSender{result: audit.Success}
	a := newTestAuditor(t, Config{}, sender)
	client := a.Client(nil)

	ctx := callctx.WithCallContext(context.Background(), callctx.CallContext{RequestID: "req-1"})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, srv.URL+"/items", strings.NewReader(`{"a":1}`))
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	// Вызывающий получает исходный ответ целиком
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "created", string(body))
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, `{"a":1}`, serverSaw)

	events := sender.sent()
	require.Len(t, events, 1)
	e := events[0]
	assert.Equal(t, srv.URL+"/items", e.Request.Detail["path"])
	assert.Equal(t, "POST", e.Request.Detail["method"])
	assert.Equal(t, `{"a":1}`, e.Request.Detail["requestBody"])
	assert.Equal(t, "req-1", e.Request.Tags["X-Request-ID"])
	assert.Equal(t, "created", e.Response.Detail["responseMessage"])
	assert.Equal(t, "201", e.Response.Detail["statusCode"])
}

func TestTransport_AuditsFailedCallAndKeepsError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	target := srv.URL + "/gone"
	srv.Close()

	sender := &recordingSender{result: audit.Success}
	a := newTestAuditor(t, Config{}, sender)

	resp, err := a.Client(nil).Get(target)
	require.Error(t, err)
	assert.Nil(t, resp)

	events := sender.sent()
	require.Len(t, events, 1)
	assert.Contains(t, events[0].Response.Detail, "failedRequestMessage")
	assert.NotContains(t, events[0].Response.Detail, "statusCode")
}

func TestTransport_SkipsExcludedURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "ok")
	}))
	defer srv.Close()

	sender := &recordingSender{result: audit.Success}
	a := newTestAuditor(t, Config{ExclusionPattern: `127\.0\.0\.1`}, sender)

	resp, err := a.Client(nil).Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Empty(t, sender.sent())
}

func TestTransport_AuditFailureDoesNotAffectCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "ok")
	}))
	defer srv.Close()

	a := newTestAuditor(t, Config{}, &recordingSender{panicOn: true})

	resp, err := a.Client(nil).Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestTransport_StreamingResponseIsNotHeldBack(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "first;")
		w.(http.Flusher).Flush()
		<-release
		io.WriteString(w, "second")
	}))
	defer srv.Close()
	defer close(release)

	sender := &recordingSender{result: audit.Success}
	a := newTestAuditor(t, Config{}, sender)

	type doResult struct {
		resp *http.Response
		err  error
	}
	done := make(chan doResult, 1)
	go func() {
		resp, err := a.Client(nil).Get(srv.URL + "/stream")
		done <- doResult{resp, err}
	}()

	var resp *http.Response
	select {
	case res := <-done:
		require.NoError(t, res.err)
		resp = res.resp
	case <-time.After(2 * time.Second):
		t.Fatal("headers of a streaming response were held back by the audit transport")
	}
	defer resp.Body.Close()

	// Тело еще не дочитано — событие не отправлено
	first := make([]byte, len("first;"))
	_, err := io.ReadFull(resp.Body, first)
	require.NoError(t, err)
	assert.Equal(t, "first;", string(first))
	assert.Empty(t, sender.sent())

	release <- struct{}{}
	rest, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "second", string(rest))

	events := sender.sent()
	require.Len(t, events, 1)
	assert.Equal(t, "first;second", events[0].Response.Detail["responseMessage"])
	assert.Equal(t, "200", events[0].Response.Detail["statusCode"])
}

func TestTransport_CloseWithoutReadAuditsOnce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		io.WriteString(w, "ignored")
	}))
	defer srv.Close()

	sender := &recordingSender{result: audit.Success}
	a := newTestAuditor(t, Config{}, sender)

	resp, err := a.Client(nil).Get(srv.URL)
	require.NoError(t, err)
	assert.Empty(t, sender.sent())

	require.NoError(t, resp.Body.Close())
	_ = resp.Body.Close()

	events := sender.sent()
	require.Len(t, events, 1)
	assert.Equal(t, "202", events[0].Response.Detail["statusCode"])
}

func TestAuditedBody_CapturesAtMostLimit(t *testing.T) {
	var got string
	calls := 0
	payload := strings.Repeat("x", maxCapturedBody+10)
	b := &auditedBody{
		ReadCloser: io.NopCloser(strings.NewReader(payload)),
		onDone: func(body string) {
			calls++
			got = body
		},
	}

	read, err := io.ReadAll(b)
	require.NoError(t, err)
	require.NoError(t, b.Close())

	assert.Len(t, read, len(payload))
	assert.Len(t, got, maxCapturedBody)
	assert.Equal(t, 1, calls)
}
