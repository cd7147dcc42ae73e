package telemetry

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cohortlabs/cohort-stack/common/audit"
	"github.com/cohortlabs/cohort-stack/common/logging"
	"github.com/cohortlabs/cohort-stack/common/middleware"
	"github.com/cohortlabs/cohort-stack/common/value"
	"github.com/cohortlabs/cohort-stack/membership/internal/metrics"
	"github.com/cohortlabs/cohort-stack/membership/internal/models"
)

// Sink accepts finished audit events.
type Sink interface {
	Name() string
	Send(ctx context.Context, ev models.AuditEvent) error
}

// sendTimeout bounds a single background delivery.
const sendTimeout = 5 * time.Second

// Emitter stamps audit events and delivers them to a sink in the
// background. Delivery failures are logged and counted, never returned.
type Emitter struct {
	sink   Sink
	signer *audit.Signer
	logger *logging.Logger
	now    func() time.Time
	wg     sync.WaitGroup
}

// NewEmitter creates an Emitter. A nil signer leaves events unsigned.
func NewEmitter(sink Sink, signer *audit.Signer, logger *logging.Logger) *Emitter {
	if logger == nil {
		logger = logging.Default()
	}
	return &Emitter{sink: sink, signer: signer, logger: logger, now: time.Now}
}

// Emit classifies in, stamps the event with the request details and hands it
// to the sink without waiting.
func (e *Emitter) Emit(ctx context.Context, req *models.Request, in Input) models.AuditEvent {
	ev := Classify(in)
	ev = e.stamp(ctx, req, ev)
	metrics.AuditEventsTotal.WithLabelValues(ev.EventType).Inc()

	sendCtx := context.WithoutCancel(ctx)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ctx, cancel := context.WithTimeout(sendCtx, sendTimeout)
		defer cancel()
		if err := e.sink.Send(ctx, ev); err != nil {
			metrics.AuditSinkErrors.WithLabelValues(e.sink.Name()).Inc()
			e.logger.WarnContext(ctx, "audit event delivery failed",
				logging.EventType(ev.EventType), "sink", e.sink.Name(), logging.Error(err))
		}
	}()
	return ev
}

// Wait blocks until every pending delivery has finished.
func (e *Emitter) Wait() {
	e.wg.Wait()
}

func (e *Emitter) stamp(ctx context.Context, req *models.Request, ev models.AuditEvent) models.AuditEvent {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	ev.ID = id.String()
	ev.Timestamp = e.now().UTC()
	ev.RequestID = middleware.GetRequestID(ctx)
	if req != nil {
		ev.ActorID = req.RequestedBy()
		ev.Operation = req.Operation
		ev.Request, _ = value.Canonical(req.Payload).(value.Mapping)
	}

	if e.signer.Enabled() {
		body, err := signingBody(ev)
		if err != nil {
			e.logger.WarnContext(ctx, "audit event not signed", logging.Error(err))
			return ev
		}
		ev.Signature = e.signer.Sign(ev.ID, ev.Timestamp, body)
	}
	return ev
}

// signingBody is the JSON encoding of ev without its signature.
func signingBody(ev models.AuditEvent) ([]byte, error) {
	ev.Signature = ""
	return json.Marshal(ev)
}

// VerifySignature checks ev against signer.
func VerifySignature(signer *audit.Signer, ev models.AuditEvent) bool {
	body, err := signingBody(ev)
	if err != nil {
		return false
	}
	return signer.Verify(ev.ID, ev.Timestamp, body, ev.Signature)
}
