package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/rustyeddy/goldpair/events"
)

func TestEmitCountsAndFreeze(t *testing.T) {
	t.Parallel()

	m := New(prometheus.NewRegistry())
	ctx := context.Background()

	m.Emit(ctx, events.Event{Kind: events.Entry})
	m.Emit(ctx, events.Event{Kind: events.Entry})
	m.Emit(ctx, events.Event{Kind: events.MarketFrozen})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Events.WithLabelValues("ENTRY")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Frozen))

	m.Emit(ctx, events.Event{Kind: events.MarketResumed})
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Frozen))
}

func TestCounters(t *testing.T) {
	t.Parallel()

	m := New(prometheus.NewRegistry())
	m.BrokerError("close", errors.New("timeout"))
	m.BrokerError("close", errors.New("timeout"))
	m.Admission("COOLDOWN")
	m.Webhook(429)
	m.ObserveTick(time.Now())

	assert.Equal(t, 2.0, testutil.ToFloat64(m.BrokerErrors.WithLabelValues("close")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Admissions.WithLabelValues("COOLDOWN")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WebhookStatus.WithLabelValues("429")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.TickDuration))
}

func TestNewRegistersOnce(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
