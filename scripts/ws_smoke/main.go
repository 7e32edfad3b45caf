package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/pianochat-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

type event map[string]any

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	name := flag.String("name", "smoke", "display name to set")
	room := flag.String("room", "lobby", "room to join")
	text := flag.String("text", "hello from smoke test", "chat text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	sender, err := dialAndJoin(ctx, *addr, *room, *name+"-a")
	if err != nil {
		return fmt.Errorf("sender: %w", err)
	}
	defer sender.Close(websocket.StatusNormalClosure, "bye")

	listener, err := dialAndJoin(ctx, *addr, *room, *name+"-b")
	if err != nil {
		return fmt.Errorf("listener: %w", err)
	}
	defer listener.Close(websocket.StatusNormalClosure, "bye")

	if err := wsjson.Write(ctx, sender, []event{{"m": proto.TypeChat, "message": *text}}); err != nil {
		return fmt.Errorf("send chat: %w", err)
	}

	for {
		var frame []event
		if err := wsjson.Read(ctx, listener, &frame); err != nil {
			return fmt.Errorf("read: %w", err)
		}
		for _, ev := range frame {
			fmt.Printf("Received: m=%v\n", ev["m"])
			if ev["m"] == proto.TypeChat && ev["a"] == *text {
				fmt.Printf("Chat relayed: %q\n", ev["a"])
				return nil
			}
		}
	}
}

// dialAndJoin identifies, names the connection and joins room. It returns
// once the join confirmation arrives.
func dialAndJoin(ctx context.Context, addr, room, name string) (*websocket.Conn, error) {
	conn, _, err := websocket.Dial(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	hello := []event{
		{"m": proto.TypeHi},
		{"m": proto.TypeUserSet, "set": event{"name": name}},
		{"m": proto.TypeChannel, "_id": room},
	}
	if err := wsjson.Write(ctx, conn, hello); err != nil {
		conn.CloseNow()
		return nil, fmt.Errorf("send hello: %w", err)
	}

	for {
		var frame []event
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			conn.CloseNow()
			return nil, fmt.Errorf("read: %w", err)
		}
		for _, ev := range frame {
			if ev["m"] == proto.TypeChannel {
				fmt.Printf("%s joined %v as %v\n", name, room, ev["p"])
				return conn, nil
			}
		}
	}
}
