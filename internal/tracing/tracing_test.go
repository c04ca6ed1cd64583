package tracing

import (
	"context"
	"testing"
)

func TestProvider_StartAndEndSpanDoesNotPanic(t *testing.T) {
	p := New("scheduler-test")
	defer func() {
		if err := p.Shutdown(context.Background()); err != nil {
			t.Fatalf("Shutdown: %v", err)
		}
	}()

	tracer := p.Tracer("scheduler")
	ctx, span := tracer.Start(context.Background(), "scheduler.tick")
	span.SetAttributes()
	span.End()
	_ = ctx
}

func TestProvider_TracerProviderIsUsable(t *testing.T) {
	p := New("scheduler-test")
	defer p.Shutdown(context.Background())

	tp := p.TracerProvider()
	if tp == nil {
		t.Fatal("expected a non-nil TracerProvider")
	}
}
