package core

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/pianochat-server/internal/metrics"
	"github.com/vovakirdan/pianochat-server/internal/proto"
)

// Peer is the transport side of a connection.
type Peer interface {
	// Ping sends a heartbeat probe and blocks until the reply arrives.
	Ping(ctx context.Context) error
	// Close tears down the transport channel.
	Close(reason string) error
}

// Connection wraps one transport channel. Send may be called from any
// goroutine; everything else that touches relay state runs on the hub.
type Connection struct {
	ID         string
	RemoteAddr string

	peer    Peer
	hub     *Hub
	out     chan []byte
	metrics *metrics.Metrics
	log     zerolog.Logger

	open     atomic.Bool
	alive    atomic.Bool
	cleaned  atomic.Bool
	lastSeen atomic.Int64
}

// NewConnection constructs an open connection with a buffered outbound queue.
func NewConnection(id, remoteAddr string, peer Peer, buffer int, m *metrics.Metrics, logger *zerolog.Logger) *Connection {
	if buffer <= 0 {
		buffer = 64
	}
	c := &Connection{
		ID:         id,
		RemoteAddr: remoteAddr,
		peer:       peer,
		out:        make(chan []byte, buffer),
		metrics:    m,
		log:        logger.With().Str("conn_id", id).Logger(),
	}
	c.open.Store(true)
	c.alive.Store(true)
	c.lastSeen.Store(time.Now().UnixNano())
	return c
}

// Send frames events as one JSON array and queues it if the connection is
// open. It never blocks and never fails: a full queue drops the frame.
func (c *Connection) Send(events ...any) {
	if len(events) == 0 || !c.open.Load() {
		return
	}
	frame, err := proto.EncodeFrame(events...)
	if err != nil {
		c.log.Debug().Err(err).Msg("encode outbound frame")
		return
	}
	c.SendFrame(frame)
}

// SendFrame queues an already encoded frame.
func (c *Connection) SendFrame(frame []byte) bool {
	if !c.open.Load() {
		return false
	}
	select {
	case c.out <- frame:
		return true
	default:
		c.metrics.Dropped()
		c.log.Debug().Msg("send buffer full, dropping frame")
		return false
	}
}

// Outbound is drained by the transport write loop.
func (c *Connection) Outbound() <-chan []byte {
	return c.out
}

// OnMessage decodes a raw frame and forwards each event to the hub in order.
// Malformed frames are dropped.
func (c *Connection) OnMessage(raw []byte) {
	c.lastSeen.Store(time.Now().UnixNano())

	events, err := proto.DecodeFrame(raw)
	if err != nil {
		c.log.Debug().Err(err).Int("bytes", len(raw)).Msg("dropping malformed frame")
		return
	}
	if c.hub == nil {
		return
	}
	for _, ev := range events {
		if err := c.hub.Receive(c, ev); err != nil {
			return
		}
	}
}

// IsOpen reports whether frames are still accepted.
func (c *Connection) IsOpen() bool {
	return c.open.Load()
}

// Alive reports whether the last heartbeat probe was answered.
func (c *Connection) Alive() bool {
	return c.alive.Load()
}

// MarkAlive records a heartbeat reply.
func (c *Connection) MarkAlive() {
	c.alive.Store(true)
	c.lastSeen.Store(time.Now().UnixNano())
}

// LastSeen returns when a frame or heartbeat reply was last received.
func (c *Connection) LastSeen() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}

// Probe clears the alive flag and pings the peer in the background; a reply
// within timeout sets it again.
func (c *Connection) Probe(ctx context.Context, timeout time.Duration) {
	c.alive.Store(false)
	go func() {
		pctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := c.peer.Ping(pctx); err != nil {
			c.log.Debug().Err(err).Msg("heartbeat probe failed")
			return
		}
		c.MarkAlive()
	}()
}

// MarkClosed stops accepting frames without touching the transport.
func (c *Connection) MarkClosed() {
	c.open.Store(false)
}

// Close stops accepting frames and closes the transport once.
func (c *Connection) Close(reason string) {
	if !c.open.CompareAndSwap(true, false) {
		return
	}
	if err := c.peer.Close(reason); err != nil {
		c.log.Debug().Err(err).Msg("close peer")
	}
}

// markCleaned returns true exactly once.
func (c *Connection) markCleaned() bool {
	return c.cleaned.CompareAndSwap(false, true)
}
