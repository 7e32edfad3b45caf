package core

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/pianochat-server/internal/store"
)

type fakePeer struct {
	mu      sync.Mutex
	pingErr error
	pings   int
	closed  bool
	reason  string
}

func (p *fakePeer) Ping(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pings++
	return p.pingErr
}

func (p *fakePeer) Close(reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.reason = reason
	return nil
}

func (p *fakePeer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePeer) failPings(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pingErr = err
}

var errPingTimeout = errors.New("ping timeout")

// failingStore fails every profile read and write.
type failingStore struct {
	mu    sync.Mutex
	gets  int
	saves int
}

var errStoreDown = errors.New("store unavailable")

func (f *failingStore) GetProfile(context.Context, string) (*store.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	return nil, errStoreDown
}

func (f *failingStore) SaveProfile(context.Context, string, store.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	return errStoreDown
}

func (f *failingStore) calls() (gets, saves int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets, f.saves
}

type testClient struct {
	conn    *Connection
	peer    *fakePeer
	pending []map[string]any
	syncSeq int
}

func startHub(t testing.TB, opts Options) *Hub {
	t.Helper()
	return startHubWithStore(t, opts, nil)
}

func startHubWithStore(t testing.TB, opts Options, profiles store.ProfileStore) *Hub {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	logger := zerolog.Nop()
	hub := NewHub(opts, profiles, nil, &logger)
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub
}

func connect(t testing.TB, hub *Hub, id string) *testClient {
	t.Helper()

	logger := zerolog.Nop()
	peer := &fakePeer{}
	conn := NewConnection(id, "test", peer, 1024, nil, &logger)
	if err := hub.Register(conn); err != nil {
		t.Fatalf("register %s: %v", id, err)
	}
	return &testClient{conn: conn, peer: peer}
}

func (tc *testClient) send(t testing.TB, frame string) {
	t.Helper()
	tc.conn.OnMessage([]byte(frame))
}

// next returns the next outbound event, waiting up to two seconds.
func (tc *testClient) next(t testing.TB) map[string]any {
	t.Helper()

	if len(tc.pending) > 0 {
		ev := tc.pending[0]
		tc.pending = tc.pending[1:]
		return ev
	}
	select {
	case frame := <-tc.conn.Outbound():
		var events []map[string]any
		if err := json.Unmarshal(frame, &events); err != nil {
			t.Fatalf("outbound frame is not an event array: %v (%s)", err, frame)
		}
		if len(events) == 0 {
			t.Fatalf("empty outbound frame")
		}
		tc.pending = append(tc.pending, events[1:]...)
		return events[0]
	case <-time.After(2 * time.Second):
		t.Fatalf("%s: no event received", tc.conn.ID)
		return nil
	}
}

// mustEvent skips events until one with the given discriminator arrives.
func (tc *testClient) mustEvent(t testing.TB, m string) map[string]any {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ev := tc.next(t)
		if ev["m"] == m {
			return ev
		}
	}
	t.Fatalf("%s: expected event %q not received", tc.conn.ID, m)
	return nil
}

// sync round-trips a time request through the hub and returns every event
// queued for the client before the echo.
func (tc *testClient) sync(t testing.TB) []map[string]any {
	t.Helper()

	tc.syncSeq++
	marker := strconv.Itoa(tc.syncSeq)
	tc.send(t, `{"m":"t","e":"sync-`+marker+`"}`)

	var before []map[string]any
	for {
		ev := tc.next(t)
		if ev["m"] == "t" && ev["e"] == "sync-"+marker {
			return before
		}
		before = append(before, ev)
	}
}

func (tc *testClient) expectNone(t testing.TB, m string) {
	t.Helper()

	for _, ev := range tc.sync(t) {
		if ev["m"] == m {
			t.Fatalf("%s: unexpected %q event: %v", tc.conn.ID, m, ev)
		}
	}
}

func countEvents(events []map[string]any, m string) int {
	n := 0
	for _, ev := range events {
		if ev["m"] == m {
			n++
		}
	}
	return n
}

// identify sends "hi" and returns the assigned identity.
func (tc *testClient) identify(t testing.TB) string {
	t.Helper()

	tc.send(t, `{"m":"hi"}`)
	ev := tc.mustEvent(t, "hi")
	u, ok := ev["u"].(map[string]any)
	if !ok {
		t.Fatalf("hi ack without user: %v", ev)
	}
	id, _ := u["_id"].(string)
	if id == "" {
		t.Fatalf("hi ack without identity: %v", ev)
	}
	return id
}

// join enters the room and returns the join confirmation.
func (tc *testClient) join(t testing.TB, room string) map[string]any {
	t.Helper()

	tc.send(t, `{"m":"ch","_id":"`+room+`"}`)
	return tc.mustEvent(t, "ch")
}

func snapshot(t testing.TB, hub *Hub) Stats {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, err := hub.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	return st
}

func waitFor(t testing.TB, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
