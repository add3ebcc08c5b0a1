package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	t.Run("none leaves spans as no-ops", func(t *testing.T) {
		SetTracer(nil)
		shutdown, err := Init(context.Background(), Config{ServiceName: "iris-test", Exporter: ExporterNone})
		require.NoError(t, err)
		require.NoError(t, shutdown(context.Background()))

		ctx, span := StartSpan(context.Background(), "noop")
		defer span.End()
		assert.Empty(t, GetTraceID(ctx))
	})

	t.Run("console produces valid trace ids", func(t *testing.T) {
		shutdown, err := Init(context.Background(), Config{ServiceName: "iris-test", Exporter: ExporterConsole})
		require.NoError(t, err)
		defer func() {
			SetTracer(nil)
			_ = shutdown(context.Background())
		}()

		ctx, span := StartSpan(context.Background(), "test")
		defer span.End()
		assert.Len(t, GetTraceID(ctx), 32)
		assert.Len(t, GetSpanID(ctx), 16)
		assert.NotEmpty(t, GetTraceParent(ctx))
	})

	t.Run("unknown exporter", func(t *testing.T) {
		_, err := Init(context.Background(), Config{Exporter: "zipkin"})
		assert.Error(t, err)
	})

	t.Run("otlp requires an endpoint", func(t *testing.T) {
		_, err := Init(context.Background(), Config{Exporter: ExporterOTLP})
		assert.Error(t, err)
	})
}
