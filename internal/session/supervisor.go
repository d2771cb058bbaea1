package session

import (
	"context"
	"time"

	"github.com/homestream/homestream/internal/infrastructure/logging"
)

// SessionMetrics receives connection gauges on every probe cycle.
// Implemented by the telemetry client; nil disables reporting.
type SessionMetrics interface {
	WriteSessionMetric(users, connections int)
}

// Supervisor probes every tracked connection at a fixed interval and
// terminates the ones that did not answer since the previous probe.
//
// The contract with Client is a two-phase flag: a probe clears the alive
// flag and sends a websocket ping, any inbound traffic (pong included)
// sets it again. A connection found with the flag still cleared on the
// next cycle is dead and gets reaped. Dead connections therefore survive
// at most two intervals.
type Supervisor struct {
	registry *Registry
	interval time.Duration
	logger   *logging.Logger
	metrics  SessionMetrics
}

// NewSupervisor creates a supervisor probing at the given interval.
// metrics may be nil.
func NewSupervisor(registry *Registry, interval time.Duration, logger *logging.Logger, metrics SessionMetrics) *Supervisor {
	return &Supervisor{
		registry: registry,
		interval: interval,
		logger:   logger,
		metrics:  metrics,
	}
}

// Run probes until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Supervisor) sweep() {
	reaped := 0
	for _, c := range s.registry.AllConnections() {
		if !c.ConsumeAlive() {
			s.logger.Info("terminating unresponsive connection", "connection_id", c.ID())
			c.Terminate()
			s.registry.Unregister(c)
			reaped++
			continue
		}
		if err := c.Probe(); err != nil {
			c.Terminate()
			s.registry.Unregister(c)
			reaped++
		}
	}

	if reaped > 0 {
		s.logger.Debug("liveness sweep complete", "reaped", reaped, "connections", s.registry.CountConnections())
	}
	if s.metrics != nil {
		s.metrics.WriteSessionMetric(s.registry.CountUsers(), s.registry.CountConnections())
	}
}
