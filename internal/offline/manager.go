package offline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mcpwatch/mcpwatch/internal/models"
	"github.com/mcpwatch/mcpwatch/internal/storage"
	"github.com/mcpwatch/mcpwatch/internal/storage/mirror"
)

// DefaultDeadLetterPath is the dead-letter database location used when
// none is configured.
const DefaultDeadLetterPath = "mcpwatch-dead-letters.db"

// Config configures the offline mirroring subsystem.
type Config struct {
	// Primary is the authoritative store. Required.
	Primary storage.Primary

	// StatePath is the offline state file location. Defaults to
	// DefaultStatePath under the working directory.
	StatePath string

	// DeadLetterPath is the dead-letter database location. Defaults to
	// DefaultDeadLetterPath.
	DeadLetterPath string

	// ProbeTimeout bounds each connectivity probe. Defaults to
	// DefaultProbeTimeout.
	ProbeTimeout time.Duration

	// ReconnectInterval is the offline probe cadence. Defaults to
	// DefaultReconnectInterval.
	ReconnectInterval time.Duration

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Manager owns the offline mirroring subsystem: connectivity state,
// mirror store, offline queue, state file, dead letters, primer,
// resolver and reconnect loop. Construct one per process with NewManager
// and pass it (or its Store) to callers by injection; tests instantiate
// independent managers pointed at isolated state files.
type Manager struct {
	primary  storage.Primary
	mirror   *mirror.Store
	state    *ConnectivityState
	queue    *Queue
	file     *StateFile
	dead     *DeadLetters
	probe    *Probe
	primer   *Primer
	resolver *Resolver
	loop     *ReconnectLoop
	gateway  *Gateway
	logger   *slog.Logger

	// resyncMu makes resync single-flight across the reconnect loop,
	// gateway recovery triggers, and manual triggers.
	resyncMu sync.Mutex
}

// NewManager builds the subsystem: restores queue and conflict trail from
// the state file, opens the dead-letter store, primes the mirror, and
// starts the reconnect loop. A primary that is unreachable at startup is
// not fatal; the subsystem starts offline and the loop recovers it.
func NewManager(ctx context.Context, cfg Config) (*Manager, error) {
	if cfg.Primary == nil {
		return nil, fmt.Errorf("offline: primary store is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	file, err := NewStateFile(cfg.StatePath, logger)
	if err != nil {
		return nil, err
	}

	ops, conflicts, err := file.Load()
	if err != nil {
		return nil, err
	}

	deadPath := cfg.DeadLetterPath
	if deadPath == "" {
		deadPath = DefaultDeadLetterPath
	}
	dead, err := OpenDeadLetters(deadPath)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		primary: cfg.Primary,
		mirror:  mirror.New(),
		state:   NewConnectivityState(),
		queue:   NewQueue(),
		file:    file,
		dead:    dead,
		logger:  logger,
	}

	m.queue.Restore(ops, conflicts)
	if len(ops) > 0 {
		// A restored queue means the previous lifetime ended with
		// unreplayed mutations; stay offline until the first probe.
		m.state.SetOnline(false)
		logger.Info("restored offline state from disk",
			"ops", len(ops), "conflicts", len(conflicts), "path", file.Path())
	}

	m.probe = NewProbe(cfg.Primary, cfg.ProbeTimeout)
	m.primer = NewPrimer(cfg.Primary, m.mirror, m.queue, m.state, logger, m.persistState)
	m.resolver = NewResolver(cfg.Primary, m.queue, dead, logger)
	m.gateway = NewGateway(m.state, m.queue, logger, m.persistState, m.asyncResync)

	if err := m.primer.Prime(ctx, true); err != nil {
		logger.Warn("initial mirror priming failed, starting offline", "error", err)
	}

	m.loop = NewReconnectLoop(cfg.ReconnectInterval, m.state, m.probe, m.Resync, logger)
	m.loop.Start()

	return m, nil
}

// Store returns the uniform CRUD surface callers consume. Results differ
// only in currency between online and offline, never in shape.
func (m *Manager) Store() *Store {
	return &Store{m: m}
}

// Resync probes the primary and, on success, replays the offline queue,
// re-primes the mirror, and transitions back online. At most one resync
// runs at a time; a call while another is in flight returns immediately.
func (m *Manager) Resync(ctx context.Context) error {
	if !m.resyncMu.TryLock() {
		m.logger.Debug("resync already in progress, skipping")
		return nil
	}
	defer m.resyncMu.Unlock()

	if err := m.probe.Check(ctx); err != nil {
		m.state.SetOnline(false)
		return err
	}

	result, err := m.resolver.ReplayAll(ctx)
	m.persistState(ctx)
	if err != nil {
		m.state.SetOnline(false)
		return fmt.Errorf("replay failed: %w", err)
	}

	// Never clear here: an op enqueued by a concurrent fallback after the
	// replay snapshot was taken must survive until the next replay pass.
	if err := m.primer.Prime(ctx, false); err != nil {
		return fmt.Errorf("re-priming after replay failed: %w", err)
	}

	m.state.SetOnline(true)
	m.gateway.warn.Reset()
	m.persistState(ctx)

	m.logger.Info("resync complete",
		"applied", result.Applied,
		"already_applied", result.AlreadyThere,
		"conflicts", result.Conflicts,
		"dead_lettered", result.DeadLettered)

	if remaining := m.queue.Len(); remaining > 0 {
		m.logger.Info("operations enqueued during resync stay queued for the next pass",
			"count", remaining)
	}

	return nil
}

// TriggerResync forces an immediate resync attempt. Manual and test hook.
func (m *Manager) TriggerResync(ctx context.Context) error {
	return m.Resync(ctx)
}

// IsOffline reports whether the subsystem currently serves from the
// mirror.
func (m *Manager) IsOffline() bool {
	return !m.state.Online()
}

// MirrorPrimed reports whether the mirror holds a primed snapshot.
func (m *Manager) MirrorPrimed() bool {
	return m.state.MirrorPrimed()
}

// QueueLen returns the number of queued offline operations.
func (m *Manager) QueueLen() int {
	return m.queue.Len()
}

// OfflineOps returns a copy of the queued operations in enqueue order.
func (m *Manager) OfflineOps() []models.OfflineOp {
	return m.queue.Snapshot()
}

// Conflicts returns a copy of the conflict audit trail.
func (m *Manager) Conflicts() []models.OfflineConflict {
	return m.queue.Conflicts()
}

// DeadLetters returns all parked dead letters in park order.
func (m *Manager) DeadLetters() ([]models.DeadLetter, error) {
	return m.dead.List()
}

// Close stops the reconnect loop, flushes the offline state one final
// time, and closes the dead-letter store. The primary is owned by the
// caller and stays open.
func (m *Manager) Close(ctx context.Context) error {
	m.loop.Stop()

	if err := m.file.Save(ctx, m.queue.Snapshot(), m.queue.Conflicts()); err != nil {
		m.logger.Warn("final state flush failed", "error", err)
	}

	if err := m.dead.Close(); err != nil {
		return fmt.Errorf("failed to close dead-letter store: %w", err)
	}

	return nil
}

// persistState writes the queue and conflict trail to the state file,
// logging and swallowing failures: durability is best-effort.
func (m *Manager) persistState(ctx context.Context) {
	if err := m.file.Save(ctx, m.queue.Snapshot(), m.queue.Conflicts()); err != nil {
		m.logger.Warn("failed to persist offline state", "error", err, "path", m.file.Path())
	}
}

// asyncResync is the gateway's recovery hook; the gateway already calls
// it on its own goroutine.
func (m *Manager) asyncResync() {
	if err := m.Resync(context.Background()); err != nil {
		m.logger.Warn("background resync failed", "error", err)
	}
}
