package core

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/pianochat-server/internal/auth"
	"github.com/vovakirdan/pianochat-server/internal/store/memory"
	"github.com/vovakirdan/pianochat-server/internal/utils"
)

func TestHubRelayRoundTrip(t *testing.T) {
	hub := startHub(t, DefaultOptions())

	a := connect(t, hub, "conn-a")
	a.send(t, `{"m":"hi"}`)
	hi := a.mustEvent(t, "hi")
	u := hi["u"].(map[string]any)
	if u["name"] != DefaultName {
		t.Fatalf("expected default name, got %v", u["name"])
	}
	aID := u["_id"].(string)
	if len(aID) != 20 {
		t.Fatalf("expected 20 char identity, got %q", aID)
	}
	if ls := a.mustEvent(t, "ls"); ls["c"] != true {
		t.Fatalf("unexpected room list: %v", ls)
	}

	joined := a.join(t, "lobby")
	ch := joined["ch"].(map[string]any)
	if ch["_id"] != "lobby" {
		t.Fatalf("joined wrong room: %v", ch)
	}
	aMember := joined["p"].(string)

	b := connect(t, hub, "conn-b")
	bID := b.identify(t)
	b.join(t, "lobby")

	arrived := a.mustEvent(t, "p")
	if arrived["_id"] != bID {
		t.Fatalf("expected arrival of %s, got %v", bID, arrived)
	}

	a.send(t, `[{"m":"n","t":123,"n":[{"n":"a3","v":0.5}]}]`)
	note := b.mustEvent(t, "n")
	if note["p"] != aID {
		t.Fatalf("expected note from %s, got %v", aID, note)
	}
	a.expectNone(t, "n")

	hub.Unregister(a.conn)
	bye := b.mustEvent(t, "bye")
	if bye["p"] != aMember {
		t.Fatalf("expected bye for membership %s, got %v", aMember, bye)
	}

	st := snapshot(t, hub)
	lobby, _ := st.Room(LobbyID)
	if lobby.Count() != 1 || st.Sessions != 1 || st.Connections != 1 {
		t.Fatalf("unexpected state after disconnect: %+v", st)
	}
}

func TestHubJoinIsIdempotent(t *testing.T) {
	hub := startHub(t, DefaultOptions())

	a := connect(t, hub, "a")
	b := connect(t, hub, "b")
	a.identify(t)
	b.identify(t)
	a.join(t, "lobby")
	b.join(t, "lobby")
	a.mustEvent(t, "p")

	b.send(t, `{"m":"ch","_id":"lobby"}`)
	if n := countEvents(a.sync(t), "p"); n != 0 {
		t.Fatalf("repeated join broadcast %d arrivals", n)
	}
	if n := countEvents(b.sync(t), "ch"); n != 0 {
		t.Fatalf("repeated join answered %d times", n)
	}

	lobby, _ := snapshot(t, hub).Room(LobbyID)
	if lobby.Count() != 2 {
		t.Fatalf("expected 2 members, got %d", lobby.Count())
	}
}

func TestHubSwitchRoomSendsBye(t *testing.T) {
	hub := startHub(t, DefaultOptions())

	a := connect(t, hub, "a")
	b := connect(t, hub, "b")
	a.identify(t)
	b.identify(t)
	a.join(t, "lobby")
	bMember := b.join(t, "lobby")["p"]
	a.mustEvent(t, "p")

	joined := b.join(t, "jam")
	if joined["p"] == bMember {
		t.Fatalf("new room reused membership id")
	}
	bye := a.mustEvent(t, "bye")
	if bye["p"] != bMember {
		t.Fatalf("expected bye for %v, got %v", bMember, bye)
	}

	st := snapshot(t, hub)
	lobby, _ := st.Room(LobbyID)
	jam, ok := st.Room("jam")
	if !ok || lobby.Count() != 1 || jam.Count() != 1 {
		t.Fatalf("unexpected rooms: %+v", st.Rooms)
	}
}

func TestHubNewRoomCrownsCreator(t *testing.T) {
	hub := startHub(t, DefaultOptions())

	a := connect(t, hub, "a")
	aID := a.identify(t)

	lobby := a.join(t, "lobby")["ch"].(map[string]any)
	if lobby["crown"] != nil {
		t.Fatalf("lobby should have no crown: %v", lobby["crown"])
	}

	joined := a.join(t, "jam")
	crown, ok := joined["ch"].(map[string]any)["crown"].(map[string]any)
	if !ok {
		t.Fatalf("new room without crown: %v", joined)
	}
	if crown["userId"] != aID || crown["participantId"] != joined["p"] {
		t.Fatalf("crown points elsewhere: %v", crown)
	}
}

func TestHubQuotaDependsOnRoomTier(t *testing.T) {
	hub := startHub(t, DefaultOptions())

	a := connect(t, hub, "a")
	a.identify(t)

	a.send(t, `{"m":"ch","_id":"lobby"}`)
	if nq := a.mustEvent(t, "nq"); nq["allowance"] != float64(200) || nq["max"] != float64(600) {
		t.Fatalf("unexpected normal quota: %v", nq)
	}

	a.send(t, `{"m":"ch","_id":"blackmidi"}`)
	nq := a.mustEvent(t, "nq")
	if nq["allowance"] != float64(8000) || nq["max"] != float64(24000) || nq["histLen"] != float64(3) {
		t.Fatalf("unexpected restricted quota: %v", nq)
	}
	ch := a.mustEvent(t, "ch")["ch"].(map[string]any)
	if ch["settings"].(map[string]any)["black"] != true {
		t.Fatalf("restricted flag not set: %v", ch)
	}
}

func TestHubMoveAndChatDoNotEcho(t *testing.T) {
	hub := startHub(t, DefaultOptions())

	a := connect(t, hub, "a")
	b := connect(t, hub, "b")
	a.identify(t)
	b.identify(t)
	aMember := a.join(t, "lobby")["p"]
	b.join(t, "lobby")

	a.send(t, `{"m":"m","x":"12.5","y":40}`)
	move := b.mustEvent(t, "m")
	if move["id"] != aMember || move["x"] != 12.5 || move["y"] != float64(40) {
		t.Fatalf("unexpected move relay: %v", move)
	}

	a.send(t, `{"m":"a","message":"hello"}`)
	chat := b.mustEvent(t, "a")
	if chat["a"] != "hello" {
		t.Fatalf("unexpected chat relay: %v", chat)
	}

	for _, ev := range a.sync(t) {
		if ev["m"] == "m" || ev["m"] == "a" {
			t.Fatalf("sender received own event: %v", ev)
		}
	}

	lobby, _ := snapshot(t, hub).Room(LobbyID)
	if lobby.Members[0].X != 12.5 || lobby.Members[0].Y != 40 {
		t.Fatalf("position not stored: %+v", lobby.Members[0])
	}
}

func TestHubNonFiniteMoveIsDropped(t *testing.T) {
	hub := startHub(t, DefaultOptions())

	a := connect(t, hub, "a")
	aID := a.identify(t)
	a.join(t, "lobby")

	a.send(t, `{"m":"m","x":"NaN","y":"0"}`)
	a.send(t, `{"m":"m","x":"Inf","y":"-Inf"}`)
	a.sync(t)

	b := connect(t, hub, "b")
	b.identify(t)
	joined := b.join(t, "lobby")
	ppl := joined["ppl"].([]any)
	if len(ppl) != 2 {
		t.Fatalf("unexpected roster: %v", ppl)
	}
	for _, raw := range ppl {
		p := raw.(map[string]any)
		if p["_id"] == aID && (p["x"] != float64(0) || p["y"] != float64(0)) {
			t.Fatalf("non-finite move stored: %v", p)
		}
	}

	a.send(t, `{"m":"m","x":3,"y":4}`)
	if move := b.mustEvent(t, "m"); move["x"] != float64(3) || move["y"] != float64(4) {
		t.Fatalf("unexpected move relay: %v", move)
	}
}

func TestHubProfileStoreFailureUsesDefaults(t *testing.T) {
	profiles := &failingStore{}
	hub := startHubWithStore(t, DefaultOptions(), profiles)

	a := connect(t, hub, "a")
	a.send(t, `{"m":"hi"}`)
	u := a.mustEvent(t, "hi")["u"].(map[string]any)
	if u["name"] != DefaultName {
		t.Fatalf("expected default name, got %v", u["name"])
	}
	if color, _ := u["color"].(string); !utils.ValidColor(color) {
		t.Fatalf("expected a valid color, got %v", u["color"])
	}

	a.join(t, "lobby")
	a.send(t, `{"m":"userset","set":{"name":"Dana","color":"#abcdef"}}`)
	if p := a.mustEvent(t, "p"); p["name"] != "Dana" || p["color"] != "#abcdef" {
		t.Fatalf("profile update not broadcast: %v", p)
	}

	if gets, saves := profiles.calls(); gets != 1 || saves != 1 {
		t.Fatalf("expected one load and one save, got %d and %d", gets, saves)
	}
}

func TestHubProfileUpdateEchoesToSender(t *testing.T) {
	hub := startHub(t, DefaultOptions())

	a := connect(t, hub, "a")
	b := connect(t, hub, "b")
	aID := a.identify(t)
	b.identify(t)
	a.join(t, "lobby")
	b.join(t, "lobby")
	a.mustEvent(t, "p")

	a.send(t, `{"m":"userset","set":{"name":"Bob!","color":"#ff0000"}}`)
	for _, c := range []*testClient{a, b} {
		p := c.mustEvent(t, "p")
		if p["_id"] != aID || p["name"] != "Bob!" || p["color"] != "#ff0000" {
			t.Fatalf("%s: unexpected update: %v", c.conn.ID, p)
		}
	}

	a.send(t, `{"m":"chset","set":{"name":"   "}}`)
	if p := a.mustEvent(t, "p"); p["name"] != "Invalid" {
		t.Fatalf("blank name accepted: %v", p)
	}
}

func TestHubProfileUpdateOutsideRoom(t *testing.T) {
	hub := startHub(t, DefaultOptions())

	a := connect(t, hub, "a")
	a.identify(t)
	a.send(t, `{"m":"userset","set":{"name":"Solo"}}`)
	a.expectNone(t, "p")
}

func TestHubSkipsClosedRecipients(t *testing.T) {
	hub := startHub(t, DefaultOptions())

	a := connect(t, hub, "a")
	b := connect(t, hub, "b")
	c := connect(t, hub, "c")
	for _, cl := range []*testClient{a, b, c} {
		cl.identify(t)
		cl.join(t, "lobby")
	}

	b.conn.MarkClosed()
	a.send(t, `{"m":"n","n":[{"n":"c4"}]}`)
	c.mustEvent(t, "n")
}

func TestHubDisconnectSendsSingleBye(t *testing.T) {
	hub := startHub(t, DefaultOptions())

	a := connect(t, hub, "a")
	b := connect(t, hub, "b")
	a.identify(t)
	b.identify(t)
	a.join(t, "lobby")
	b.join(t, "lobby")

	hub.Unregister(a.conn)
	hub.Unregister(a.conn)

	if n := countEvents(b.sync(t), "bye"); n != 1 {
		t.Fatalf("expected exactly one bye, got %d", n)
	}
}

func TestHubReidentifyStartsFresh(t *testing.T) {
	hub := startHub(t, DefaultOptions())

	a := connect(t, hub, "a")
	b := connect(t, hub, "b")
	first := a.identify(t)
	b.identify(t)
	aMember := a.join(t, "lobby")["p"]
	b.join(t, "lobby")

	second := a.identify(t)
	if first == second {
		t.Fatalf("re-identify kept identity %s", first)
	}
	bye := b.mustEvent(t, "bye")
	if bye["p"] != aMember {
		t.Fatalf("expected bye for %v, got %v", aMember, bye)
	}

	st := snapshot(t, hub)
	lobby, _ := st.Room(LobbyID)
	if st.Sessions != 2 || lobby.Count() != 1 {
		t.Fatalf("unexpected state after re-identify: %+v", st)
	}
}

func TestHubRequiresIdentityAndRoom(t *testing.T) {
	hub := startHub(t, DefaultOptions())

	a := connect(t, hub, "a")
	a.send(t, `{"m":"ch","_id":"lobby"}`)
	a.expectNone(t, "ch")

	a.identify(t)
	a.send(t, `{"m":"n","n":[]}`)
	a.send(t, `{"m":"bye"}`)
	a.expectNone(t, "bye")

	lobby, _ := snapshot(t, hub).Room(LobbyID)
	if lobby.Count() != 0 {
		t.Fatalf("unidentified join created membership")
	}
}

func TestHubByeLeavesRoom(t *testing.T) {
	hub := startHub(t, DefaultOptions())

	a := connect(t, hub, "a")
	b := connect(t, hub, "b")
	a.identify(t)
	b.identify(t)
	aMember := a.join(t, "lobby")["p"]
	b.join(t, "lobby")

	a.send(t, `{"m":"bye"}`)
	if bye := b.mustEvent(t, "bye"); bye["p"] != aMember {
		t.Fatalf("unexpected bye: %v", bye)
	}

	st := snapshot(t, hub)
	lobby, _ := st.Room(LobbyID)
	if lobby.Count() != 1 || st.Sessions != 2 {
		t.Fatalf("bye should keep the session: %+v", st)
	}
}

func TestHubTimeAndRoomList(t *testing.T) {
	hub := startHub(t, DefaultOptions())

	a := connect(t, hub, "a")
	a.send(t, `[{"m":"t","e":1},{"m":"zzz"},{"m":"t","e":2}]`)
	first := a.mustEvent(t, "t")
	second := a.mustEvent(t, "t")
	if first["e"] != float64(1) || second["e"] != float64(2) {
		t.Fatalf("time echoes out of order: %v %v", first, second)
	}
	if _, ok := first["t"].(float64); !ok {
		t.Fatalf("time echo without server time: %v", first)
	}

	a.identify(t)
	a.join(t, "jam")
	a.send(t, `{"m":"ch","_id":"hidden","set":{"visible":false}}`)
	a.mustEvent(t, "ch")

	a.send(t, `{"m":"+ls"}`)
	ls := a.mustEvent(t, "ls")
	ids := map[string]float64{}
	for _, raw := range ls["u"].([]any) {
		room := raw.(map[string]any)
		ids[room["_id"].(string)] = room["count"].(float64)
	}
	if _, ok := ids["hidden"]; ok {
		t.Fatalf("invisible room listed: %v", ids)
	}
	if _, ok := ids["jam"]; !ok {
		t.Fatalf("visible room missing: %v", ids)
	}
	if ids[LobbyID] != 0 {
		t.Fatalf("unexpected lobby count: %v", ids[LobbyID])
	}
}

func TestHubMalformedFramesAreDropped(t *testing.T) {
	hub := startHub(t, DefaultOptions())

	a := connect(t, hub, "a")
	a.send(t, `not json`)
	a.send(t, `[1, "x", {"m": 5}]`)
	if events := a.sync(t); len(events) != 0 {
		t.Fatalf("malformed frames produced events: %v", events)
	}
}

func TestHubChatDisabledAndHistory(t *testing.T) {
	hub := startHub(t, DefaultOptions())

	a := connect(t, hub, "a")
	b := connect(t, hub, "b")
	a.identify(t)
	b.identify(t)

	a.send(t, `{"m":"ch","_id":"quiet","set":{"chat":false}}`)
	a.mustEvent(t, "ch")
	b.join(t, "quiet")
	b.send(t, `{"m":"a","message":"psst"}`)
	a.expectNone(t, "a")

	a.join(t, "talk")
	a.send(t, `{"m":"a","message":"first"}`)
	a.send(t, `{"m":"a","message":"   "}`)
	a.sync(t)

	b.send(t, `{"m":"ch","_id":"talk"}`)
	history := b.mustEvent(t, "c")
	lines := history["c"].([]any)
	if len(lines) != 1 || lines[0].(map[string]any)["a"] != "first" {
		t.Fatalf("unexpected chat history: %v", history)
	}
}

func TestHubIdentityTokenReuse(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := DefaultOptions()
	opts.Tokens = &auth.TokenConfig{Secret: []byte("test-secret"), Issuer: "pianochat", Audience: "pianochat-clients", TTL: time.Hour}
	profiles := memory.New()
	logger := zerolog.Nop()
	hub := NewHub(opts, profiles, nil, &logger)
	go hub.Run(ctx)

	a := connect(t, hub, "a")
	a.send(t, `{"m":"hi"}`)
	hi := a.mustEvent(t, "hi")
	token, _ := hi["token"].(string)
	aID := hi["u"].(map[string]any)["_id"].(string)
	if token == "" {
		t.Fatalf("hi ack without token: %v", hi)
	}
	a.send(t, `{"m":"userset","set":{"name":"Carol","color":"#00ff00"}}`)
	a.sync(t)

	// The identity is live on a, so a second connection gets a fresh one.
	b := connect(t, hub, "b")
	b.send(t, `{"m":"hi","token":"`+token+`"}`)
	if id := b.mustEvent(t, "hi")["u"].(map[string]any)["_id"]; id == aID {
		t.Fatalf("identity %s bound to two connections", aID)
	}

	hub.Unregister(a.conn)
	c := connect(t, hub, "c")
	c.send(t, `{"m":"hi","token":"`+token+`"}`)
	u := c.mustEvent(t, "hi")["u"].(map[string]any)
	if u["_id"] != aID || u["name"] != "Carol" || u["color"] != "#00ff00" {
		t.Fatalf("token did not restore identity and profile: %v", u)
	}
}

func TestHubStopRejectsEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	logger := zerolog.Nop()
	hub := NewHub(DefaultOptions(), nil, nil, &logger)
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	a := connect(t, hub, "a")
	a.identify(t)
	cancel()
	<-stopped

	if !a.peer.isClosed() {
		t.Fatalf("hub stop left connection open")
	}
	if err := hub.Register(NewConnection("late", "test", &fakePeer{}, 1, nil, &logger)); err != ErrHubStopped {
		t.Fatalf("expected ErrHubStopped, got %v", err)
	}
	if _, err := hub.Snapshot(context.Background()); err != ErrHubStopped {
		t.Fatalf("expected ErrHubStopped from snapshot, got %v", err)
	}
}
