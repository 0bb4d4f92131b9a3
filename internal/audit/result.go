package audit

import (
	"errors"
	"fmt"
)

// HandlerResult — исход одной попытки доставки через Handler.
type HandlerResult int

const (
	HandlerSuccess HandlerResult = iota
	HandlerRejected
	HandlerFailure
)

func (r HandlerResult) String() string {
	switch r {
	case HandlerSuccess:
		return "success"
	case HandlerRejected:
		return "rejected"
	default:
		return "failure"
	}
}

// ResultKind различает варианты AuditResult.
type ResultKind int

const (
	ResultSuccess ResultKind = iota
	ResultDisabled
	ResultFailure
)

func (k ResultKind) String() string {
	switch k {
	case ResultSuccess:
		return "success"
	case ResultDisabled:
		return "disabled"
	default:
		return "failure"
	}
}

const (
	MsgRejected   = "Event was actively rejected"
	MsgSendFailed = "Event sending failed"
)

var (
	// ErrQueueFull — очередь воркеров переполнена (Load Shedding).
	ErrQueueFull = errors.New("audit: dispatch queue is full")
	// ErrStopped — коннектор уже остановлен.
	ErrStopped = errors.New("audit: connector is stopped")
)

// AuditResult — то, что получает вызывающий код. Message и Cause заполняются только для Failure.
type AuditResult struct {
	Kind    ResultKind
	Message string
	Cause   error
}

var (
	Success  = AuditResult{Kind: ResultSuccess}
	Disabled = AuditResult{Kind: ResultDisabled}
)

func Failure(msg string, cause error) AuditResult {
	return AuditResult{Kind: ResultFailure, Message: msg, Cause: cause}
}

func (r AuditResult) IsSuccess() bool  { return r.Kind == ResultSuccess }
func (r AuditResult) IsDisabled() bool { return r.Kind == ResultDisabled }
func (r AuditResult) IsFailure() bool  { return r.Kind == ResultFailure }

func (r AuditResult) String() string {
	if r.Kind != ResultFailure {
		return r.Kind.String()
	}
	if r.Cause != nil {
		return fmt.Sprintf("failure: %s (%v)", r.Message, r.Cause)
	}
	return "failure: " + r.Message
}

// ResultOf — фиксированное отображение HandlerResult -> AuditResult.
func ResultOf(hr HandlerResult) AuditResult {
	switch hr {
	case HandlerSuccess:
		return Success
	case HandlerRejected:
		return Failure(MsgRejected, nil)
	default:
		return Failure(MsgSendFailed, nil)
	}
}
