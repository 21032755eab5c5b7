package chat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/deedzorg/twitchconnect/telemetry"
	"github.com/deedzorg/twitchconnect/twitchapi"
)

// StreamLister is the slice of the Helix client the reconciler needs.
type StreamLister interface {
	GetStreams(ctx context.Context, logins ...string) ([]twitchapi.Stream, error)
}

// TrackedSource supplies the user's tracked-channel list. The reconciler
// never mutates it.
type TrackedSource interface {
	TrackedChannels(ctx context.Context) ([]string, error)
}

// Reconciler polls live status for the tracked channels and drives the
// registry so live channels have open sessions and offline channels do not.
type Reconciler struct {
	Streams  StreamLister
	Tracked  TrackedSource
	Registry *Registry
	Interval time.Duration // defaults to 60s

	mu     sync.Mutex
	status map[string]bool
}

// Run executes one cycle immediately and then on every tick until the
// context is cancelled.
func (rc *Reconciler) Run(ctx context.Context) {
	interval := rc.Interval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	slog.Info("live status reconciler started", slog.Duration("interval", interval))

	if err := rc.RunOnce(ctx); err != nil {
		slog.Warn("reconcile cycle failed", slog.Any("err", err))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := rc.RunOnce(ctx); err != nil {
				slog.Warn("reconcile cycle failed", slog.Any("err", err))
			}
		}
	}
}

// RunOnce performs a single reconcile cycle. On a failed status query the
// previous status map and all sessions are left untouched; the reset-then-
// remark sequence only runs after a successful response.
func (rc *Reconciler) RunOnce(ctx context.Context) error {
	ctx, span := telemetry.StartSpan(ctx, "reconciler", "reconcile-cycle")
	defer span.End()
	telemetry.ReconcileCycles.Inc()
	start := time.Now()
	defer func() { telemetry.ReconcileDuration.Observe(time.Since(start).Seconds()) }()

	tracked, err := rc.Tracked.TrackedChannels(ctx)
	if err != nil {
		telemetry.ReconcileFailures.Inc()
		telemetry.RecordError(span, err)
		return err
	}
	for i, ch := range tracked {
		tracked[i] = NormalizeChannel(ch)
	}
	if len(tracked) == 0 {
		return nil
	}

	streams, err := rc.Streams.GetStreams(ctx, tracked...)
	if err != nil {
		telemetry.ReconcileFailures.Inc()
		telemetry.RecordError(span, err)
		return err
	}

	live := make(map[string]bool, len(streams))
	for _, s := range streams {
		live[NormalizeChannel(s.UserLogin)] = true
	}

	// Full reset before re-marking: a channel the response omits entirely
	// must not keep a stale live entry.
	rc.mu.Lock()
	rc.status = make(map[string]bool, len(tracked))
	for _, ch := range tracked {
		rc.status[ch] = live[ch]
	}
	rc.mu.Unlock()

	for _, ch := range tracked {
		switch {
		case live[ch] && !rc.Registry.IsOpen(ch):
			slog.Info("opening chat for live channel", slog.String("channel", ch))
			if _, err := rc.Registry.Open(ctx, ch); err != nil {
				// One channel failing to open must not stall the rest.
				slog.Warn("failed to open chat", slog.String("channel", ch), slog.Any("err", err))
			}
		case !live[ch] && rc.Registry.IsOpen(ch):
			slog.Info("closing chat for offline channel", slog.String("channel", ch))
			rc.Registry.Close(ch)
		}
	}
	telemetry.SetSpanSuccess(span)
	return nil
}

// Status returns a copy of the most recent live-status map.
func (rc *Reconciler) Status() map[string]bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	out := make(map[string]bool, len(rc.status))
	for k, v := range rc.status {
		out[k] = v
	}
	return out
}
