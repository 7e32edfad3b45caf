package core

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// DefaultHeartbeatInterval is the time between liveness sweeps.
const DefaultHeartbeatInterval = 10 * time.Second

// Heartbeat periodically asks the hub to reap connections that missed the
// previous probe and to probe the rest.
type Heartbeat struct {
	hub      *Hub
	interval time.Duration
	log      *zerolog.Logger
}

// NewHeartbeat creates a sweeper. A non-positive interval uses DefaultHeartbeatInterval.
func NewHeartbeat(hub *Hub, interval time.Duration, logger *zerolog.Logger) *Heartbeat {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Heartbeat{hub: hub, interval: interval, log: logger}
}

// Run sweeps every interval until ctx is done or the hub stops.
func (hb *Heartbeat) Run(ctx context.Context) {
	ticker := time.NewTicker(hb.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := hb.hub.Sweep(ctx); err != nil {
				hb.log.Debug().Err(err).Msg("heartbeat stopped")
				return
			}
		}
	}
}
