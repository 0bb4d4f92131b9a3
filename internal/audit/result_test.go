package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResultOf(t *testing.T) {
	tests := []struct {
		in      HandlerResult
		kind    ResultKind
		message string
	}{
		{HandlerSuccess, ResultSuccess, ""},
		{HandlerRejected, ResultFailure, "Event was actively rejected"},
		{HandlerFailure, ResultFailure, "Event sending failed"},
	}

	for _, tc := range tests {
		t.Run(tc.in.String(), func(t *testing.T) {
			res := ResultOf(tc.in)
			assert.Equal(t, tc.kind, res.Kind)
			assert.Equal(t, tc.message, res.Message)
			assert.Nil(t, res.Cause)
			// Отображение детерминировано
			assert.Equal(t, res, ResultOf(tc.in))
		})
	}
}

func TestAuditResult_String(t *testing.T) {
	assert.Equal(t, "success", Success.String())
	assert.Equal(t, "disabled", Disabled.String())
	assert.Equal(t, "failure: Event sending failed", Failure(MsgSendFailed, nil).String())
	assert.Equal(t, "failure: Event sending failed (audit: dispatch queue is full)", Failure(MsgSendFailed, ErrQueueFull).String())
}
