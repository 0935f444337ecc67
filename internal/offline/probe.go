package offline

import (
	"context"
	"fmt"
	"time"
)

// DefaultProbeTimeout bounds how long a single liveness check may take.
const DefaultProbeTimeout = 3 * time.Second

// Pinger is the minimal liveness surface the probe needs from the
// primary store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Probe is a cheap, bounded-timeout liveness check against the primary.
type Probe struct {
	primary Pinger
	timeout time.Duration
}

// NewProbe creates a probe. A non-positive timeout falls back to
// DefaultProbeTimeout.
func NewProbe(primary Pinger, timeout time.Duration) *Probe {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &Probe{primary: primary, timeout: timeout}
}

// Check runs one liveness check with the probe's own deadline.
func (p *Probe) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.primary.Ping(ctx); err != nil {
		return fmt.Errorf("connectivity probe failed: %w", err)
	}

	return nil
}
