package observability

import (
	"log/slog"

	"nestegg/core/events"
	"nestegg/core/types"
)

// attributed is satisfied by the per-module event wrappers, all of which carry
// a structured payload alongside the type tag.
type attributed interface {
	Event() *types.Event
}

// Recorder bridges engine events to structured logs and Prometheus counters.
// It satisfies the emitter contract every engine accepts.
type Recorder struct {
	logger *slog.Logger
}

// NewRecorder builds a recorder writing through the supplied logger. A nil
// logger falls back to the process default.
func NewRecorder(logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{logger: logger}
}

var _ events.Emitter = (*Recorder)(nil)

// Emit logs the event and updates the counters matching its type.
func (r *Recorder) Emit(evt events.Event) {
	if r == nil || evt == nil {
		return
	}
	eventType := evt.EventType()
	attrs := []any{slog.String("event", eventType)}
	var payload *types.Event
	if carrier, ok := evt.(attributed); ok {
		payload = carrier.Event()
	}
	if payload != nil {
		for key, value := range payload.Attributes {
			attrs = append(attrs, slog.String(key, value))
		}
	}
	r.logger.Info("event", attrs...)
	r.count(eventType, payload)
}

func (r *Recorder) count(eventType string, payload *types.Event) {
	asset := payload.Attribute("token")
	reason := payload.Attribute("reason")
	switch eventType {
	case "savings.deposit":
		Savings().RecordDeposit(asset)
	case "savings.withdrawn":
		Savings().RecordWithdrawal(asset)
	case "savings.settlement.skipped", "daily.skipped":
		Savings().RecordSkip(reason)
	case "dca.order.queued":
		DCA().RecordQueued()
	case "dca.order.executed":
		DCA().RecordExecuted()
	case "dca.order.skipped":
		DCA().RecordSkipped(reason)
	case "daily.executed":
		Daily().RecordExecution()
	case "daily.withdrawn":
		if penalty := payload.Attribute("penalty"); penalty != "" && penalty != "0" {
			Daily().RecordPenalty(asset)
		}
	}
}
