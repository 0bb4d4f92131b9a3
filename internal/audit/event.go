package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DataEvent — простое событие аудита: плоские теги и детали.
type DataEvent struct {
	AuditSource string            `json:"auditSource"`
	AuditType   string            `json:"auditType"`
	EventID     string            `json:"eventId"`
	Tags        map[string]string `json:"tags"`
	Detail      map[string]string `json:"detail"`
	GeneratedAt time.Time         `json:"generatedAt"`
}

// NewDataEvent проставляет eventId и время генерации.
func NewDataEvent(source, auditType string, tags, detail map[string]string) DataEvent {
	return DataEvent{
		AuditSource: source,
		AuditType:   auditType,
		EventID:     uuid.New().String(),
		Tags:        orEmpty(tags),
		Detail:      orEmpty(detail),
		GeneratedAt: time.Now().UTC(),
	}
}

// TruncationLog фиксирует поля, урезанные перед отправкой.
type TruncationLog struct {
	TruncatedFields []string  `json:"truncatedFields"`
	Timestamp       time.Time `json:"timestamp"`
}

// ExtendedDataEvent — событие с произвольной JSON-структурой в detail.
type ExtendedDataEvent struct {
	AuditSource   string            `json:"auditSource"`
	AuditType     string            `json:"auditType"`
	EventID       string            `json:"eventId"`
	Tags          map[string]string `json:"tags"`
	Detail        json.RawMessage   `json:"detail"`
	GeneratedAt   time.Time         `json:"generatedAt"`
	TruncationLog *TruncationLog    `json:"truncationLog,omitempty"`
}

func NewExtendedDataEvent(source, auditType string, tags map[string]string, detail json.RawMessage) ExtendedDataEvent {
	if len(detail) == 0 {
		detail = json.RawMessage("{}")
	}
	return ExtendedDataEvent{
		AuditSource: source,
		AuditType:   auditType,
		EventID:     uuid.New().String(),
		Tags:        orEmpty(tags),
		Detail:      detail,
		GeneratedAt: time.Now().UTC(),
	}
}

// DataCall — одна сторона исходящего вызова (запрос или ответ).
type DataCall struct {
	Tags        map[string]string `json:"tags"`
	Detail      map[string]string `json:"detail"`
	GeneratedAt time.Time         `json:"generatedAt"`
}

// MergedDataEvent объединяет запрос и ответ одного исходящего HTTP-вызова.
type MergedDataEvent struct {
	AuditSource string   `json:"auditSource"`
	AuditType   string   `json:"auditType"`
	EventID     string   `json:"eventId"`
	Request     DataCall `json:"request"`
	Response    DataCall `json:"response"`
}

func NewMergedDataEvent(source, auditType string, request, response DataCall) MergedDataEvent {
	request.Tags, request.Detail = orEmpty(request.Tags), orEmpty(request.Detail)
	response.Tags, response.Detail = orEmpty(response.Tags), orEmpty(response.Detail)
	return MergedDataEvent{
		AuditSource: source,
		AuditType:   auditType,
		EventID:     uuid.New().String(),
		Request:     request,
		Response:    response,
	}
}

// Normalise заменяет nil-карты пустыми, как это делают конструкторы.
// Нужен для событий, пришедших из JSON.
func (e *DataEvent) Normalise() {
	e.Tags, e.Detail = orEmpty(e.Tags), orEmpty(e.Detail)
}

func (e *ExtendedDataEvent) Normalise() {
	e.Tags = orEmpty(e.Tags)
	if len(e.Detail) == 0 || string(e.Detail) == "null" {
		e.Detail = json.RawMessage("{}")
	}
}

func (e *MergedDataEvent) Normalise() {
	e.Request.Tags, e.Request.Detail = orEmpty(e.Request.Tags), orEmpty(e.Request.Detail)
	e.Response.Tags, e.Response.Detail = orEmpty(e.Response.Tags), orEmpty(e.Response.Detail)
}

func orEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
