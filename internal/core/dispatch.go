package core

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/vovakirdan/pianochat-server/internal/auth"
	"github.com/vovakirdan/pianochat-server/internal/proto"
	"github.com/vovakirdan/pianochat-server/internal/store"
	"github.com/vovakirdan/pianochat-server/internal/utils"
)

const (
	// DefaultName is the display name of users without a stored profile.
	DefaultName = "Anonymous"

	maxChatLength   = 512
	maxRoomIDLength = 512
)

// dispatch routes one inbound event to its handler. Events from connections
// that are already cleaned up or never registered are ignored.
func (h *Hub) dispatch(ctx context.Context, c *Connection, ev proto.Inbound) {
	if _, ok := h.conns[c.ID]; !ok {
		return
	}
	h.metrics.Event(ev.Kind.String())

	var err error
	switch ev.Kind {
	case proto.KindHi:
		err = h.handleHi(ctx, c, ev)
	case proto.KindChannel:
		err = h.handleJoin(c, ev)
	case proto.KindNote:
		err = h.handleNote(c, ev)
	case proto.KindMove:
		err = h.handleMove(c, ev)
	case proto.KindChat:
		err = h.handleChat(c, ev)
	case proto.KindChSet, proto.KindUserSet:
		err = h.handleProfile(ctx, c, ev)
	case proto.KindTime:
		err = h.handleTime(c, ev)
	case proto.KindListRooms:
		c.Send(roomList(h.registry.Visible()))
	case proto.KindBye:
		err = h.handleBye(c)
	case proto.KindUnknown:
		h.log.Debug().Str("conn_id", c.ID).Str("type", ev.Type).Msg("unknown event type")
	}
	if err != nil {
		h.log.Debug().Err(err).Str("conn_id", c.ID).Str("type", ev.Type).Msg("event dropped")
	}
}

func (h *Hub) session(c *Connection) (*Session, error) {
	s, ok := h.sessions[c.ID]
	if !ok {
		return nil, ErrNotIdentified
	}
	return s, nil
}

// roomOf returns the session and the room it belongs to.
func (h *Hub) roomOf(c *Connection) (*Session, *Room, error) {
	s, err := h.session(c)
	if err != nil {
		return nil, nil, err
	}
	if !s.InRoom() {
		return nil, nil, ErrNotInRoom
	}
	r, ok := h.registry.Get(s.RoomID)
	if !ok || r.Member(s.Identity) == nil {
		return nil, nil, ErrNotInRoom
	}
	return s, r, nil
}

func (h *Hub) handleHi(ctx context.Context, c *Connection, ev proto.Inbound) error {
	var data proto.HiData
	if err := ev.Decode(&data); err != nil {
		return errors.Join(ErrInvalidEvent, err)
	}

	if old, ok := h.sessions[c.ID]; ok {
		h.leaveRoom(old)
		h.dropSession(old)
	}

	identity := h.resolveIdentity(data.Token)
	profile := h.loadProfile(ctx, identity)
	s := &Session{
		Identity: identity,
		ConnID:   c.ID,
		Name:     profile.Name,
		Color:    profile.Color,
	}
	h.sessions[c.ID] = s
	h.identities[identity] = c.ID

	ack := proto.HiAck{
		M:           proto.TypeHi,
		U:           proto.User{ID: s.Identity, Name: s.Name, Color: s.Color},
		T:           millis(h.now()),
		Permissions: map[string]any{},
	}
	if h.opts.Tokens != nil {
		token, err := auth.IssueIdentityToken(h.opts.Tokens, identity)
		if err != nil {
			h.log.Warn().Err(err).Str("conn_id", c.ID).Msg("issue identity token")
		}
		ack.Token = token
	}
	c.Send(ack, roomList(h.registry.Visible()))

	h.log.Info().Str("conn_id", c.ID).Str("identity", identity).Str("name", s.Name).Msg("connection identified")
	return nil
}

// resolveIdentity reuses the identity carried by a valid token unless it is
// bound to another live connection. Otherwise a fresh identity is issued.
func (h *Hub) resolveIdentity(token string) string {
	if token != "" && h.opts.Tokens != nil {
		id, err := auth.ParseIdentityToken(h.opts.Tokens, token)
		switch {
		case err != nil:
			h.log.Debug().Err(err).Msg("ignoring identity token")
		case h.connFor(id) != nil:
			h.log.Debug().Str("identity", id).Msg("identity already connected, issuing a new one")
		default:
			return id
		}
	}
	for {
		id := utils.NewIdentity()
		if _, taken := h.identities[id]; !taken {
			return id
		}
	}
}

func (h *Hub) loadProfile(ctx context.Context, identity string) store.Profile {
	def := store.Profile{Name: DefaultName, Color: utils.RandomColor()}
	if h.profiles == nil {
		return def
	}

	pctx, cancel := context.WithTimeout(ctx, h.opts.ProfileTimeout)
	defer cancel()

	p, err := h.profiles.GetProfile(pctx, identity)
	if errors.Is(err, store.ErrNotFound) {
		return def
	}
	if err != nil {
		h.log.Warn().Err(err).Str("identity", identity).Msg("load profile, using defaults")
		return def
	}
	if p.Name == "" {
		p.Name = def.Name
	}
	if !utils.ValidColor(p.Color) {
		p.Color = def.Color
	}
	return *p
}

func (h *Hub) saveProfile(ctx context.Context, s *Session) {
	if h.profiles == nil {
		return
	}

	pctx, cancel := context.WithTimeout(ctx, h.opts.ProfileTimeout)
	defer cancel()

	err := h.profiles.SaveProfile(pctx, s.Identity, store.Profile{Name: s.Name, Color: s.Color, UpdatedAt: h.now()})
	if err != nil {
		h.log.Warn().Err(err).Str("identity", s.Identity).Msg("save profile")
	}
}

func (h *Hub) handleJoin(c *Connection, ev proto.Inbound) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	var data proto.ChannelData
	if err := ev.Decode(&data); err != nil {
		return errors.Join(ErrInvalidEvent, err)
	}
	roomID := data.ID
	if roomID == "" {
		roomID = LobbyID
	}
	if utf8.RuneCountInString(roomID) > maxRoomIDLength {
		return fmt.Errorf("%w: room id too long", ErrInvalidEvent)
	}

	if s.RoomID == roomID {
		if r, ok := h.registry.Get(roomID); ok && r.Member(s.Identity) != nil {
			return nil
		}
	}
	if s.InRoom() {
		h.leaveRoom(s)
	}

	r, created := h.registry.GetOrCreate(roomID, data.Set)
	m, _ := r.AddMember(s)
	if created && !r.Settings().IsLobby {
		r.SetCrown(m, h.now())
	}
	s.RoomID = r.ID

	events := []any{
		h.quotaFor(r),
		proto.ChannelJoined{M: proto.TypeChannel, Ch: r.channelInfo(), P: m.ID, Ppl: r.roster()},
	}
	if entries := r.Chat().Entries(); len(entries) > 0 {
		history := proto.ChatHistory{M: proto.TypeHistory, C: make([]proto.ChatRelay, 0, len(entries))}
		for _, e := range entries {
			history.C = append(history.C, chatRelay(e))
		}
		events = append(events, history)
	}
	c.Send(events...)

	h.broadcastToRoom(r, participantUpdate(*m), s.Identity)

	h.log.Debug().Str("identity", s.Identity).Str("room", r.ID).Bool("created", created).Int("count", r.Count()).Msg("joined room")
	return nil
}

func (h *Hub) quotaFor(r *Room) proto.NoteQuota {
	q := h.opts.NormalQuota
	if r.Settings().IsRestrictedMode {
		q = h.opts.RestrictedQuota
	}
	return proto.NoteQuota{
		M:         proto.TypeQuota,
		Allowance: q.Allowance,
		Max:       q.Max,
		HistLen:   q.HistLen,
		T:         millis(h.now()),
	}
}

// leaveRoom removes the session's membership from its current room and tells
// the remaining members.
func (h *Hub) leaveRoom(s *Session) {
	if !s.InRoom() {
		return
	}
	roomID := s.RoomID
	s.RoomID = ""

	r, ok := h.registry.Get(roomID)
	if !ok {
		return
	}
	m, ok := r.RemoveMember(s.Identity)
	if !ok {
		return
	}
	h.broadcastToRoom(r, proto.Bye{M: proto.TypeBye, P: m.ID})
	h.log.Debug().Str("identity", s.Identity).Str("room", roomID).Int("count", r.Count()).Msg("left room")
}

func (h *Hub) handleNote(c *Connection, ev proto.Inbound) error {
	s, r, err := h.roomOf(c)
	if err != nil {
		return err
	}
	var data proto.NoteData
	if err := ev.Decode(&data); err != nil {
		return errors.Join(ErrInvalidEvent, err)
	}
	if len(data.N) == 0 {
		return fmt.Errorf("%w: note without payload", ErrInvalidEvent)
	}
	h.broadcastToRoom(r, proto.NoteRelay{M: proto.TypeNote, T: data.T, N: data.N, P: s.Identity}, s.Identity)
	return nil
}

func (h *Hub) handleMove(c *Connection, ev proto.Inbound) error {
	s, r, err := h.roomOf(c)
	if err != nil {
		return err
	}
	var data proto.MoveData
	if err := ev.Decode(&data); err != nil {
		return errors.Join(ErrInvalidEvent, err)
	}
	if data.X == nil || data.Y == nil {
		return fmt.Errorf("%w: move without coordinates", ErrInvalidEvent)
	}

	m := r.Member(s.Identity)
	s.X, s.Y = float64(*data.X), float64(*data.Y)
	m.X, m.Y = s.X, s.Y

	h.broadcastToRoom(r, proto.MoveRelay{M: proto.TypeMove, ID: m.ID, X: m.X, Y: m.Y}, s.Identity)
	return nil
}

func (h *Hub) handleChat(c *Connection, ev proto.Inbound) error {
	s, r, err := h.roomOf(c)
	if err != nil {
		return err
	}
	if !r.Settings().Chat {
		return ErrChatDisabled
	}
	var data proto.ChatData
	if err := ev.Decode(&data); err != nil {
		return errors.Join(ErrInvalidEvent, err)
	}
	text := data.Message
	if utils.IsBlank(text) {
		return fmt.Errorf("%w: empty chat message", ErrInvalidEvent)
	}
	if utf8.RuneCountInString(text) > maxChatLength {
		text = string([]rune(text)[:maxChatLength])
	}

	entry := ChatEntry{Member: *r.Member(s.Identity), Text: text, Time: h.now()}
	r.Chat().Append(entry)
	h.broadcastToRoom(r, chatRelay(entry), s.Identity)
	return nil
}

func (h *Hub) handleProfile(ctx context.Context, c *Connection, ev proto.Inbound) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	var data proto.UserSetData
	if err := ev.Decode(&data); err != nil {
		return errors.Join(ErrInvalidEvent, err)
	}
	if data.Set == nil || (data.Set.Name == nil && data.Set.Color == nil) {
		return fmt.Errorf("%w: empty profile update", ErrInvalidEvent)
	}

	if data.Set.Name != nil {
		s.Name = utils.CleanName(*data.Set.Name)
	}
	if data.Set.Color != nil && utils.ValidColor(*data.Set.Color) {
		s.Color = *data.Set.Color
	}
	h.saveProfile(ctx, s)

	if !s.InRoom() {
		return nil
	}
	r, ok := h.registry.Get(s.RoomID)
	if !ok {
		return nil
	}
	m := r.Member(s.Identity)
	if m == nil {
		return nil
	}
	m.Name, m.Color = s.Name, s.Color
	h.broadcastToRoom(r, participantUpdate(*m))
	return nil
}

func (h *Hub) handleTime(c *Connection, ev proto.Inbound) error {
	var data proto.TimeData
	if err := ev.Decode(&data); err != nil {
		return errors.Join(ErrInvalidEvent, err)
	}
	c.Send(proto.TimeEcho{M: proto.TypeTime, T: millis(h.now()), E: data.E})
	return nil
}

func (h *Hub) handleBye(c *Connection) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	if !s.InRoom() {
		return ErrNotInRoom
	}
	h.leaveRoom(s)
	return nil
}
