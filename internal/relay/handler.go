package relay

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-audit-connector/internal/audit"
	"github.com/xela07ax/spaceai-audit-connector/internal/callctx"
)

// EventSender — публичные точки входа audit.Connector.
type EventSender interface {
	SendEvent(ctx context.Context, cc callctx.CallContext, event audit.DataEvent) <-chan audit.AuditResult
	SendExtendedEvent(ctx context.Context, cc callctx.CallContext, event audit.ExtendedDataEvent) <-chan audit.AuditResult
	SendMergedEvent(ctx context.Context, cc callctx.CallContext, event audit.MergedDataEvent) <-chan audit.AuditResult
}

// maxEventBody — больше datastream все равно не примет (413).
const maxEventBody = 512 << 10

type EventHandler struct {
	sender EventSender
	wait   time.Duration // Сколько ждем исхода доставки, прежде чем ответить "pending"
	logger *zap.Logger
}

func NewEventHandler(sender EventSender, wait time.Duration, logger *zap.Logger) *EventHandler {
	return &EventHandler{sender: sender, wait: wait, logger: logger.Named("events")}
}

type resultResponse struct {
	EventID string `json:"event_id"`
	Result  string `json:"result"` // success, disabled, failure, pending
	Message string `json:"message,omitempty"`
}

// Send принимает DataEvent
// POST /v1/events
func (h *EventHandler) Send(w http.ResponseWriter, r *http.Request) {
	var event audit.DataEvent
	if !h.decode(w, r, &event) {
		return
	}
	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}
	if event.GeneratedAt.IsZero() {
		event.GeneratedAt = time.Now().UTC()
	}
	event.Normalise()
	cc := callctx.FromContext(r.Context())
	h.respond(w, r, event.EventID, h.sender.SendEvent(r.Context(), cc, event))
}

// SendExtended принимает ExtendedDataEvent
// POST /v1/events/extended
func (h *EventHandler) SendExtended(w http.ResponseWriter, r *http.Request) {
	var event audit.ExtendedDataEvent
	if !h.decode(w, r, &event) {
		return
	}
	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}
	if event.GeneratedAt.IsZero() {
		event.GeneratedAt = time.Now().UTC()
	}
	event.Normalise()
	cc := callctx.FromContext(r.Context())
	h.respond(w, r, event.EventID, h.sender.SendExtendedEvent(r.Context(), cc, event))
}

// SendMerged принимает MergedDataEvent
// POST /v1/events/merged
func (h *EventHandler) SendMerged(w http.ResponseWriter, r *http.Request) {
	var event audit.MergedDataEvent
	if !h.decode(w, r, &event) {
		return
	}
	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}
	event.Normalise()
	cc := callctx.FromContext(r.Context())
	h.respond(w, r, event.EventID, h.sender.SendMergedEvent(r.Context(), cc, event))
}

func (h *EventHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBody+1))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return false
	}
	if len(body) > maxEventBody {
		http.Error(w, "Event too large", http.StatusRequestEntityTooLarge)
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		http.Error(w, "Malformed audit event", http.StatusBadRequest)
		return false
	}
	return true
}

func (h *EventHandler) respond(w http.ResponseWriter, r *http.Request, eventID string, results <-chan audit.AuditResult) {
	resp := resultResponse{EventID: eventID, Result: "pending"}

	timer := time.NewTimer(h.wait)
	defer timer.Stop()

	select {
	case res := <-results:
		resp.Result = res.Kind.String()
		resp.Message = res.Message
	case <-timer.C:
	case <-r.Context().Done():
	}

	if resp.Result == audit.ResultFailure.String() {
		h.logger.Warn("audit event not delivered", zap.String("event_id", eventID), zap.String("message", resp.Message))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(resp)
}
