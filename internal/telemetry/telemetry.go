// Package telemetry holds the OpenTelemetry instruments recorded by the
// simulation. New uses the global meter provider, which is a no-op until a
// Provider is installed with SetGlobal.
package telemetry

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "skirmish.ai/internal/sim"

// Instruments is safe for concurrent use. A nil *Instruments records nothing.
type Instruments struct {
	ticks         metric.Int64Counter
	broadcasts    metric.Int64Counter
	bytesSent     metric.Int64Counter
	prunedPeers   metric.Int64Counter
	commands      metric.Int64Counter
	stepDuration  metric.Float64Histogram
	activeMatches metric.Int64ObservableGauge

	active atomic.Int64
}

func New() (*Instruments, error) {
	return NewWithMeter(otel.Meter(instrumentationName))
}

func NewWithMeter(m metric.Meter) (*Instruments, error) {
	in := &Instruments{}
	var err error

	if in.ticks, err = m.Int64Counter("skirmish.match.ticks",
		metric.WithDescription("Simulation ticks advanced across active matches")); err != nil {
		return nil, fmt.Errorf("creating ticks counter: %w", err)
	}
	if in.broadcasts, err = m.Int64Counter("skirmish.match.broadcasts",
		metric.WithDescription("Per-team state snapshots sent")); err != nil {
		return nil, fmt.Errorf("creating broadcasts counter: %w", err)
	}
	if in.bytesSent, err = m.Int64Counter("skirmish.match.bytes_sent",
		metric.WithDescription("Snapshot bytes handed to peers"), metric.WithUnit("By")); err != nil {
		return nil, fmt.Errorf("creating bytes counter: %w", err)
	}
	if in.prunedPeers, err = m.Int64Counter("skirmish.match.pruned_peers",
		metric.WithDescription("Peers removed after a failed send")); err != nil {
		return nil, fmt.Errorf("creating pruned counter: %w", err)
	}
	if in.commands, err = m.Int64Counter("skirmish.ai.commands",
		metric.WithDescription("AI commands applied, by status tag")); err != nil {
		return nil, fmt.Errorf("creating commands counter: %w", err)
	}
	if in.stepDuration, err = m.Float64Histogram("skirmish.match.step_duration",
		metric.WithDescription("Wall time of one match tick"), metric.WithUnit("ms")); err != nil {
		return nil, fmt.Errorf("creating step histogram: %w", err)
	}
	if in.activeMatches, err = m.Int64ObservableGauge("skirmish.matches.active",
		metric.WithDescription("Matches currently in the active state")); err != nil {
		return nil, fmt.Errorf("creating active gauge: %w", err)
	}
	if _, err = m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(in.activeMatches, in.active.Load())
		return nil
	}, in.activeMatches); err != nil {
		return nil, fmt.Errorf("registering active callback: %w", err)
	}
	return in, nil
}

func sessionAttr(session string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("session", session))
}

func (in *Instruments) Tick(session string, stepMS float64) {
	if in == nil {
		return
	}
	ctx := context.Background()
	in.ticks.Add(ctx, 1, sessionAttr(session))
	in.stepDuration.Record(ctx, stepMS, sessionAttr(session))
}

func (in *Instruments) Broadcast(session string, team, bytes int) {
	if in == nil {
		return
	}
	ctx := context.Background()
	attrs := metric.WithAttributes(attribute.String("session", session), attribute.Int("team", team))
	in.broadcasts.Add(ctx, 1, attrs)
	in.bytesSent.Add(ctx, int64(bytes), attrs)
}

func (in *Instruments) PeerPruned(session string) {
	if in == nil {
		return
	}
	in.prunedPeers.Add(context.Background(), 1, sessionAttr(session))
}

func (in *Instruments) Command(statusTag string) {
	if in == nil {
		return
	}
	in.commands.Add(context.Background(), 1, metric.WithAttributes(attribute.String("status", statusTag)))
}

// SetActiveMatches is read by the gauge callback.
func (in *Instruments) SetActiveMatches(n int) {
	if in == nil {
		return
	}
	in.active.Store(int64(n))
}
