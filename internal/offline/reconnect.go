package offline

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultReconnectInterval is how often the loop probes the primary while
// offline.
const DefaultReconnectInterval = 5 * time.Second

// ReconnectLoop is the periodic background task that, while offline,
// retries the connectivity probe and triggers a resync on success. Ticks
// while online are no-ops.
type ReconnectLoop struct {
	interval time.Duration
	state    *ConnectivityState
	probe    *Probe
	resync   func(ctx context.Context) error
	logger   *slog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewReconnectLoop creates a loop. A non-positive interval falls back to
// DefaultReconnectInterval. resync is expected to be single-flight.
func NewReconnectLoop(interval time.Duration, state *ConnectivityState, probe *Probe, resync func(ctx context.Context) error, logger *slog.Logger) *ReconnectLoop {
	if interval <= 0 {
		interval = DefaultReconnectInterval
	}
	return &ReconnectLoop{
		interval: interval,
		state:    state,
		probe:    probe,
		resync:   resync,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the background ticker.
func (l *ReconnectLoop) Start() {
	go l.run()
}

// Stop cancels the ticker and waits for the current tick to finish.
func (l *ReconnectLoop) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopCh)
	})
	<-l.doneCh
}

func (l *ReconnectLoop) run() {
	defer close(l.doneCh)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.tick()
		}
	}
}

// tick probes the primary while offline and triggers a resync once the
// probe succeeds.
func (l *ReconnectLoop) tick() {
	if l.state.Online() {
		return
	}

	ctx := context.Background()
	if err := l.probe.Check(ctx); err != nil {
		l.logger.Debug("primary still unreachable", "error", err)
		return
	}

	l.logger.Info("connectivity probe succeeded, starting resync")
	if err := l.resync(ctx); err != nil {
		l.logger.Warn("resync attempt failed", "error", err)
	}
}
