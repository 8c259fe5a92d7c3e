package delivery

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/memo-api/internal/obs"
	"github.com/noah-isme/memo-api/internal/resilience"
)

type instrumented struct {
	Sink
}

// Instrument wraps s with a tracing span and delivery metrics.
func Instrument(s Sink) Sink {
	if s == nil {
		return nil
	}
	if _, ok := s.(instrumented); ok {
		return s
	}
	return instrumented{Sink: s}
}

func (i instrumented) Deliver(ctx context.Context, doc Document) (string, error) {
	ctx, span := otel.Tracer("delivery.Sink").Start(ctx, "Sink.Deliver")
	defer span.End()
	span.SetAttributes(
		attribute.String("delivery.sink", i.Name()),
		attribute.String("delivery.document", doc.Name),
		attribute.Int("delivery.bytes", len(doc.Body)),
	)

	start := time.Now()
	link, err := i.Sink.Deliver(ctx, doc)
	result := "ok"
	if err != nil {
		result = "error"
		if errors.Is(err, resilience.ErrOpenCircuit) {
			result = "circuit_open"
		}
		span.RecordError(err)
	}
	span.SetAttributes(attribute.String("delivery.result", result))
	if obs.MemoDeliveryTotal != nil {
		obs.MemoDeliveryTotal.WithLabelValues(i.Name(), result).Inc()
	}
	if obs.MemoDeliveryDuration != nil {
		obs.MemoDeliveryDuration.WithLabelValues(i.Name()).Observe(obs.DurationMillis(time.Since(start)))
	}
	return link, err
}
