package offline

import (
	"context"
	"log/slog"
	"sync"
)

// dedupLogger emits a full warning only for the first occurrence of each
// error signature; repeats are demoted to debug so a flapping primary
// doesn't flood the log with identical faults.
type dedupLogger struct {
	logger *slog.Logger

	mu   sync.Mutex
	seen map[string]int
}

func newDedupLogger(logger *slog.Logger) *dedupLogger {
	return &dedupLogger{
		logger: logger,
		seen:   make(map[string]int),
	}
}

// Warn logs err at warn level the first time its signature is seen, and
// at debug level afterwards.
func (d *dedupLogger) Warn(ctx context.Context, msg string, err error, args ...any) {
	sig := Signature(err)

	d.mu.Lock()
	d.seen[sig]++
	count := d.seen[sig]
	d.mu.Unlock()

	args = append(args, "error", err, "error_kind", Classify(err).String())

	level := slog.LevelWarn
	if count > 1 {
		level = slog.LevelDebug
		args = append(args, "repeat_count", count)
	}

	d.logger.Log(ctx, level, msg, args...)
}

// Reset clears the seen set. Called after a successful resync so the next
// outage warns again.
func (d *dedupLogger) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen = make(map[string]int)
}
