package core

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/pianochat-server/internal/auth"
	"github.com/vovakirdan/pianochat-server/internal/metrics"
	"github.com/vovakirdan/pianochat-server/internal/proto"
	"github.com/vovakirdan/pianochat-server/internal/store"
)

// Quota is the note allowance announced to a room joiner.
type Quota struct {
	Allowance int
	Max       int
	HistLen   int
}

// Options tune the hub.
type Options struct {
	// NormalQuota applies to regular rooms, RestrictedQuota to restricted-mode rooms.
	NormalQuota     Quota
	RestrictedQuota Quota
	// ChatHistory is the number of chat lines each room keeps.
	ChatHistory int
	// ProbeTimeout bounds a single heartbeat ping.
	ProbeTimeout time.Duration
	// ProfileTimeout bounds profile store calls.
	ProfileTimeout time.Duration
	// Tokens enables identity tokens in the hi acknowledgement. Nil disables them.
	Tokens    *auth.TokenConfig
	InboxSize int
}

// DefaultOptions returns the stock room-tier policy.
func DefaultOptions() Options {
	return Options{
		NormalQuota:     Quota{Allowance: 200, Max: 600, HistLen: 0},
		RestrictedQuota: Quota{Allowance: 8000, Max: 24000, HistLen: 3},
		ChatHistory:     32,
		ProbeTimeout:    10 * time.Second,
		ProfileTimeout:  2 * time.Second,
		InboxSize:       256,
	}
}

type opKind int

const (
	opRegister opKind = iota
	opEvent
	opUnregister
	opSweep
	opSnapshot
)

type envelope struct {
	op    opKind
	conn  *Connection
	event proto.Inbound
	reply chan Stats
}

// Hub owns all relay state: the room registry, sessions and live
// connections. Every mutation runs on the Run goroutine, one envelope at a
// time, so rooms and sessions need no locks.
type Hub struct {
	opts     Options
	profiles store.ProfileStore
	metrics  *metrics.Metrics
	log      *zerolog.Logger
	now      func() time.Time

	registry   *Registry
	conns      map[string]*Connection
	sessions   map[string]*Session // by connection id
	identities map[string]string   // identity -> connection id

	inbox chan envelope
	done  chan struct{}
}

// NewHub creates a hub. profiles and m may be nil.
func NewHub(opts Options, profiles store.ProfileStore, m *metrics.Metrics, logger *zerolog.Logger) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if opts.InboxSize <= 0 {
		opts.InboxSize = 256
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 10 * time.Second
	}
	if opts.ProfileTimeout <= 0 {
		opts.ProfileTimeout = 2 * time.Second
	}
	return &Hub{
		opts:       opts,
		profiles:   profiles,
		metrics:    m,
		log:        logger,
		now:        time.Now,
		registry:   NewRegistry(opts.ChatHistory),
		conns:      make(map[string]*Connection),
		sessions:   make(map[string]*Session),
		identities: make(map[string]string),
		inbox:      make(chan envelope, opts.InboxSize),
		done:       make(chan struct{}),
	}
}

// Run processes envelopes until ctx is cancelled, then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case env := <-h.inbox:
			h.handle(ctx, env)
		}
	}
}

// Register adds a connection to the live set. It must be called before the
// connection starts reading.
func (h *Hub) Register(c *Connection) error {
	c.hub = h
	return h.submit(context.Background(), envelope{op: opRegister, conn: c})
}

// Unregister runs the connection cleanup on the hub. Safe to call repeatedly.
func (h *Hub) Unregister(c *Connection) {
	_ = h.submit(context.Background(), envelope{op: opUnregister, conn: c})
}

// Receive queues one inbound event from c.
func (h *Hub) Receive(c *Connection, ev proto.Inbound) error {
	return h.submit(context.Background(), envelope{op: opEvent, conn: c, event: ev})
}

// Sweep requests one heartbeat pass over all connections.
func (h *Hub) Sweep(ctx context.Context) error {
	return h.submit(ctx, envelope{op: opSweep})
}

// Snapshot returns a read-only copy of the relay state.
func (h *Hub) Snapshot(ctx context.Context) (Stats, error) {
	reply := make(chan Stats, 1)
	if err := h.submit(ctx, envelope{op: opSnapshot, reply: reply}); err != nil {
		return Stats{}, err
	}
	select {
	case st := <-reply:
		return st, nil
	case <-h.done:
		return Stats{}, ErrHubStopped
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
}

func (h *Hub) submit(ctx context.Context, env envelope) error {
	select {
	case <-h.done:
		return ErrHubStopped
	default:
	}
	select {
	case h.inbox <- env:
		return nil
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) handle(ctx context.Context, env envelope) {
	switch env.op {
	case opRegister:
		h.conns[env.conn.ID] = env.conn
		h.log.Debug().Str("conn_id", env.conn.ID).Str("remote", env.conn.RemoteAddr).Int("connections", len(h.conns)).Msg("connection registered")
	case opUnregister:
		h.cleanup(env.conn)
	case opEvent:
		h.dispatch(ctx, env.conn, env.event)
	case opSweep:
		h.sweep(ctx)
	case opSnapshot:
		env.reply <- h.stats()
	}
	h.metrics.SetConnections(len(h.conns))
	h.metrics.SetSessions(len(h.sessions))
	h.metrics.SetRooms(h.registry.Len())
}

// cleanup removes the session's membership, the session and the connection,
// in that order. Only the first call for a connection has any effect.
func (h *Hub) cleanup(c *Connection) {
	if !c.markCleaned() {
		return
	}
	if s := h.sessions[c.ID]; s != nil {
		h.leaveRoom(s)
		h.dropSession(s)
	}
	delete(h.conns, c.ID)
	h.log.Debug().Str("conn_id", c.ID).Int("connections", len(h.conns)).Msg("connection cleaned up")
}

func (h *Hub) dropSession(s *Session) {
	delete(h.sessions, s.ConnID)
	if h.identities[s.Identity] == s.ConnID {
		delete(h.identities, s.Identity)
	}
}

func (h *Hub) sweep(ctx context.Context) {
	conns := make([]*Connection, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	for _, c := range conns {
		if !c.Alive() {
			h.log.Info().Str("conn_id", c.ID).Time("last_seen", c.LastSeen()).Msg("terminating inactive connection")
			h.metrics.Reaped()
			c.Close("heartbeat timeout")
			h.cleanup(c)
			continue
		}
		c.Probe(ctx, h.opts.ProbeTimeout)
	}
}

func (h *Hub) shutdown() {
	for _, c := range h.conns {
		c.Close("server shutting down")
	}
	h.log.Info().Int("connections", len(h.conns)).Msg("hub stopped")
}

// connFor resolves the live connection of an identity, or nil.
func (h *Hub) connFor(identity string) *Connection {
	connID, ok := h.identities[identity]
	if !ok {
		return nil
	}
	return h.conns[connID]
}

// broadcastToRoom sends event to every member whose identity is not
// excluded. Members without a live connection are skipped.
func (h *Hub) broadcastToRoom(r *Room, event any, exclude ...string) {
	frame, err := proto.EncodeFrame(event)
	if err != nil {
		h.log.Debug().Err(err).Str("room", r.ID).Msg("encode broadcast")
		return
	}

	delivered := 0
	for _, m := range r.Members() {
		if excluded(m.Identity, exclude) {
			continue
		}
		c := h.connFor(m.Identity)
		if c == nil {
			continue
		}
		if c.SendFrame(frame) {
			delivered++
		}
	}
	h.metrics.Delivered(delivered)
}

func excluded(identity string, exclude []string) bool {
	for _, e := range exclude {
		if e == identity {
			return true
		}
	}
	return false
}
