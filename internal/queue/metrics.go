package queue

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/baskills/meetingvoice/internal/queue"

type metrics struct {
	enqueued   metric.Int64Counter
	played     metric.Int64Counter
	unresolved metric.Int64Counter
	failed     metric.Int64Counter
	reg        metric.Registration
}

func newMetrics(meter metric.Meter, q *PlaybackQueue) (*metrics, error) {
	var m metrics
	var err error

	if m.enqueued, err = meter.Int64Counter("meetingvoice.queue.enqueued",
		metric.WithDescription("Utterances appended to the queue")); err != nil {
		return nil, err
	}
	if m.played, err = meter.Int64Counter("meetingvoice.queue.played",
		metric.WithDescription("Utterances handed to the orchestrator")); err != nil {
		return nil, err
	}
	if m.unresolved, err = meter.Int64Counter("meetingvoice.queue.unresolved",
		metric.WithDescription("Utterances skipped because their speaker is unknown")); err != nil {
		return nil, err
	}
	if m.failed, err = meter.Int64Counter("meetingvoice.queue.play_errors",
		metric.WithDescription("Utterances the orchestrator refused")); err != nil {
		return nil, err
	}

	pending, err := meter.Int64ObservableGauge("meetingvoice.queue.pending",
		metric.WithDescription("Utterances waiting to play"))
	if err != nil {
		return nil, err
	}
	m.reg, err = meter.RegisterCallback(func(ctx context.Context, obs metric.Observer) error {
		obs.ObserveInt64(pending, int64(q.Len()))
		return nil
	}, pending)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func speaker(id string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("speaker", id))
}
