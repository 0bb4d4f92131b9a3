package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggingHandler_AlwaysSucceeds(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	h := NewLoggingHandler(zap.New(core))

	payload := []byte(`{"auditSource":"test-app"}`)
	assert.Equal(t, HandlerSuccess, h.SendEvent(context.Background(), payload))

	entries := logs.FilterMessage("DS_EventMissed_AuditRequestFailure").All()
	require.Len(t, entries, 1)
	assert.Equal(t, string(payload), entries[0].ContextMap()["audit_item"])
}

func TestSerialiseMergedEvent_WireShape(t *testing.T) {
	generated := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	event := NewMergedDataEvent("test-app", "OutboundCall",
		DataCall{Tags: map[string]string{"path": "/x"}, Detail: map[string]string{"method": "GET"}, GeneratedAt: generated},
		DataCall{Detail: map[string]string{"statusCode": "200"}, GeneratedAt: generated},
	)

	b, err := SerialiseMergedEvent(event)
	require.NoError(t, err)

	var decoded struct {
		AuditSource string `json:"auditSource"`
		AuditType   string `json:"auditType"`
		EventID     string `json:"eventId"`
		Request     struct {
			Tags        map[string]string `json:"tags"`
			Detail      map[string]string `json:"detail"`
			GeneratedAt time.Time         `json:"generatedAt"`
		} `json:"request"`
		Response struct {
			Tags   map[string]string `json:"tags"`
			Detail map[string]string `json:"detail"`
		} `json:"response"`
	}
	require.NoError(t, json.Unmarshal(b, &decoded))

	assert.Equal(t, "test-app", decoded.AuditSource)
	assert.Equal(t, "OutboundCall", decoded.AuditType)
	assert.NotEmpty(t, decoded.EventID)
	assert.Equal(t, "GET", decoded.Request.Detail["method"])
	assert.True(t, generated.Equal(decoded.Request.GeneratedAt))
	// Пустые теги сериализуются как {}, а не null
	assert.NotNil(t, decoded.Response.Tags)
	assert.Equal(t, "200", decoded.Response.Detail["statusCode"])
}

func TestSerialiseExtendedEvent_RejectsInvalidDetail(t *testing.T) {
	_, err := SerialiseExtendedEvent(ExtendedDataEvent{EventID: "e1", Detail: json.RawMessage(`{"a":`)})
	assert.Error(t, err)

	b, err := SerialiseExtendedEvent(NewExtendedDataEvent("test-app", "Ext", nil, nil))
	require.NoError(t, err)
	assert.Contains(t, string(b), `"detail":{}`)
}

func TestNormalise_DecodedEventsSerialiseEmptyMaps(t *testing.T) {
	var simple DataEvent
	require.NoError(t, json.Unmarshal([]byte(`{"auditSource":"app","auditType":"x"}`), &simple))
	simple.Normalise()
	b, err := SerialiseDataEvent(simple)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"tags":{}`)
	assert.Contains(t, string(b), `"detail":{}`)

	var extended ExtendedDataEvent
	require.NoError(t, json.Unmarshal([]byte(`{"auditSource":"app","auditType":"x","detail":null}`), &extended))
	extended.Normalise()
	b, err = SerialiseExtendedEvent(extended)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"tags":{}`)
	assert.Contains(t, string(b), `"detail":{}`)

	var merged MergedDataEvent
	require.NoError(t, json.Unmarshal([]byte(`{"auditSource":"app","request":{"detail":{"path":"/x"}}}`), &merged))
	merged.Normalise()
	assert.Equal(t, "/x", merged.Request.Detail["path"])
	b, err = SerialiseMergedEvent(merged)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "null")
}
