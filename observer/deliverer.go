package observer

import (
	"context"
	"time"

	"github.com/yichens/wxrelay"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ObservedDeliverer wraps a wxrelay.Deliverer with OTEL instrumentation.
type ObservedDeliverer struct {
	inner wxrelay.Deliverer
	inst  *Instruments
}

// WrapDeliverer returns an instrumented deliverer that emits traces and metrics.
func WrapDeliverer(inner wxrelay.Deliverer, inst *Instruments) *ObservedDeliverer {
	return &ObservedDeliverer{inner: inner, inst: inst}
}

func (o *ObservedDeliverer) Send(ctx context.Context, user, text string) error {
	ctx, span := o.inst.Tracer.Start(ctx, "push.send", trace.WithAttributes(
		AttrPushUser.String(user),
		AttrPushBytes.Int(len(text)),
	))
	defer span.End()
	start := time.Now()

	err := o.inner.Send(ctx, user, text)

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	o.inst.PushRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
	))
	o.inst.PushDuration.Record(ctx, durationMs)
	return err
}

var _ wxrelay.Deliverer = (*ObservedDeliverer)(nil)
