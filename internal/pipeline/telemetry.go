package pipeline

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/zhouzirui/language-partner/backend/internal/pipeline"

type instruments struct {
	tracer           trace.Tracer
	turns            metric.Int64Counter
	keywordFallbacks metric.Int64Counter
	synthFailures    metric.Int64Counter
	stageDuration    metric.Float64Histogram
}

// newInstruments 从全局 provider 创建埋点；未配置 OTel 时使用 noop 实现。
func newInstruments() *instruments {
	meter := otel.Meter(instrumentationName)
	inst := &instruments{tracer: otel.Tracer(instrumentationName)}

	var err error
	if inst.turns, err = meter.Int64Counter("pipeline.turns",
		metric.WithDescription("Completed or aborted conversation turns")); err != nil {
		log.Printf("[pipeline] create turns counter failed: %v", err)
	}
	if inst.keywordFallbacks, err = meter.Int64Counter("pipeline.keyword_fallbacks",
		metric.WithDescription("Keywords whose translation fell back to the keyword itself")); err != nil {
		log.Printf("[pipeline] create keyword fallback counter failed: %v", err)
	}
	if inst.synthFailures, err = meter.Int64Counter("pipeline.synthesis_failures",
		metric.WithDescription("Bot replies left without audio")); err != nil {
		log.Printf("[pipeline] create synthesis counter failed: %v", err)
	}
	if inst.stageDuration, err = meter.Float64Histogram("pipeline.stage_duration_ms",
		metric.WithDescription("Latency of external calls per stage"),
		metric.WithUnit("ms")); err != nil {
		log.Printf("[pipeline] create stage histogram failed: %v", err)
	}
	return inst
}

func (i *instruments) turn(ctx context.Context, outcome string) {
	if i.turns != nil {
		i.turns.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

func (i *instruments) keywordFallback(ctx context.Context, n int) {
	if i.keywordFallbacks != nil && n > 0 {
		i.keywordFallbacks.Add(ctx, int64(n))
	}
}

func (i *instruments) synthesisFailed(ctx context.Context) {
	if i.synthFailures != nil {
		i.synthFailures.Add(ctx, 1)
	}
}

// stage opens a child span around one external call. The returned function
// ends the span and records the call latency.
func (i *instruments) stage(ctx context.Context, stage Stage) (context.Context, func(error)) {
	started := time.Now()
	ctx, span := i.tracer.Start(ctx, "pipeline."+string(stage))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if i.stageDuration != nil {
			elapsed := float64(time.Since(started).Microseconds()) / 1000
			i.stageDuration.Record(ctx, elapsed, metric.WithAttributes(attribute.String("stage", string(stage))))
		}
	}
}
