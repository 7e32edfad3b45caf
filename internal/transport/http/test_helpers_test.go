package http

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/pianochat-server/internal/config"
	"github.com/vovakirdan/pianochat-server/internal/core"
	"github.com/vovakirdan/pianochat-server/internal/metrics"
	"github.com/vovakirdan/pianochat-server/internal/store/memory"
)

func startTestServer(t *testing.T) (*httptest.Server, *core.Hub) {
	t.Helper()

	disabledLogger := zerolog.Nop()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	hub := core.NewHub(core.DefaultOptions(), memory.New(), m, &disabledLogger)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.ReadHeaderTimeout = time.Second

	server := NewServer(hub, &cfg, reg, m, &disabledLogger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return ts, hub
}

type wsClient struct {
	conn    *websocket.Conn
	pending []map[string]any
}

func dial(t *testing.T, ctx context.Context, ts *httptest.Server) *wsClient {
	t.Helper()

	wsURL := strings.Replace(ts.URL, "http", "ws", 1) + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return &wsClient{conn: conn}
}

func (c *wsClient) send(t *testing.T, ctx context.Context, events ...map[string]any) {
	t.Helper()

	if err := wsjson.Write(ctx, c.conn, events); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

// mustEvent reads frames until an event with the given discriminator arrives.
func (c *wsClient) mustEvent(t *testing.T, ctx context.Context, m string) map[string]any {
	t.Helper()

	for {
		for len(c.pending) > 0 {
			ev := c.pending[0]
			c.pending = c.pending[1:]
			if ev["m"] == m {
				return ev
			}
		}
		var frame []map[string]any
		if err := wsjson.Read(ctx, c.conn, &frame); err != nil {
			t.Fatalf("waiting for %q: %v", m, err)
		}
		c.pending = append(c.pending, frame...)
	}
}
