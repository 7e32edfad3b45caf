package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/pianochat-server/internal/config"
	"github.com/vovakirdan/pianochat-server/internal/core"
	"github.com/vovakirdan/pianochat-server/internal/metrics"
)

const writeTimeout = 10 * time.Second

// WSHandler upgrades HTTP connections and bridges them to core.Connection.
type WSHandler struct {
	hub     Relay
	cfg     *config.Config
	metrics *metrics.Metrics
	log     *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub Relay, cfg *config.Config, m *metrics.Metrics, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{hub: hub, cfg: cfg, metrics: m, log: logger}
}

// wsPeer adapts a websocket connection to core.Peer.
type wsPeer struct {
	conn *websocket.Conn
}

func (p wsPeer) Ping(ctx context.Context) error {
	return p.conn.Ping(ctx)
}

// Close starts the close handshake without waiting for the peer's reply, so
// the hub loop never blocks on a slow client.
func (p wsPeer) Close(reason string) error {
	go p.conn.Close(websocket.StatusGoingAway, reason)
	return nil
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
		CompressionMode:    websocket.CompressionDisabled,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.CloseNow()
	if h.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageBytes)
	}

	client := core.NewConnection(uuid.NewString(), r.RemoteAddr, wsPeer{conn: conn}, h.cfg.SendBuffer, h.metrics, h.log)
	if err := h.hub.Register(client); err != nil {
		h.log.Warn().Err(err).Msg("hub rejected connection")
		conn.Close(websocket.StatusTryAgainLater, "server shutting down")
		return
	}
	defer func() {
		client.MarkClosed()
		h.hub.Unregister(client)
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = "connection error"
			h.log.Warn().Err(err).Str("conn_id", client.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Connection) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			h.log.Debug().Err(err).Str("conn_id", client.ID).Msg("read ws frame")
			return err
		}
		client.OnMessage(data)
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Connection) error {
	for {
		select {
		case frame := <-client.Outbound():
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(wctx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				h.log.Debug().Err(err).Str("conn_id", client.ID).Msg("write ws frame")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
