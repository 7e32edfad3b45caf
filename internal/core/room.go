package core

import (
	"strconv"
	"strings"
	"time"

	"github.com/vovakirdan/pianochat-server/internal/proto"
	"github.com/vovakirdan/pianochat-server/internal/utils"
)

const (
	// LobbyID is the well-known room every registry starts with.
	LobbyID = "lobby"
	// DefaultRoomColor is the background color of new rooms.
	DefaultRoomColor = "#3b5054"

	restrictedMarker = "black"
)

// Settings are the room-level options.
type Settings struct {
	Chat             bool
	Visible          bool
	CrownSolo        bool
	Color            string
	IsLobby          bool
	NoCussing        bool
	IsRestrictedMode bool
	IsOriginal       bool
}

// DefaultSettings returns the settings a room with the given id starts with.
func DefaultSettings(id string) Settings {
	lower := strings.ToLower(id)
	isLobby := lower == LobbyID
	return Settings{
		Chat:             true,
		Visible:          true,
		Color:            DefaultRoomColor,
		IsLobby:          isLobby,
		IsRestrictedMode: !isLobby && strings.Contains(lower, restrictedMarker),
	}
}

// Crown marks the room owner.
type Crown struct {
	Identity string
	MemberID string
	Time     time.Time
}

// Member is a participant's record inside one room.
type Member struct {
	ID       string
	Identity string
	Name     string
	Color    string
	X, Y     float64
}

// Room groups the members of one named space.
type Room struct {
	ID       string
	settings Settings
	crown    *Crown
	members  []*Member
	index    map[string]*Member
	chat     *ChatLog
	seq      uint64
}

// NewRoom constructs a room with default settings and no members.
func NewRoom(id string, chatHistory int) *Room {
	return &Room{
		ID:       id,
		settings: DefaultSettings(id),
		index:    make(map[string]*Member),
		chat:     NewChatLog(chatHistory),
	}
}

// Settings returns a copy of the room settings.
func (r *Room) Settings() Settings {
	return r.settings
}

// ApplySettings changes the mutable settings. Lobby and restricted flags
// are derived from the id and never change. Lobby rooms keep the defaults.
func (r *Room) ApplySettings(p *proto.SettingsPatch) {
	if p == nil || r.settings.IsLobby {
		return
	}
	if p.Chat != nil {
		r.settings.Chat = *p.Chat
	}
	if p.Visible != nil {
		r.settings.Visible = *p.Visible
	}
	if p.CrownSolo != nil {
		r.settings.CrownSolo = *p.CrownSolo
	}
	if p.Color != nil && utils.ValidColor(*p.Color) {
		r.settings.Color = *p.Color
	}
}

// Count returns the number of members.
func (r *Room) Count() int {
	return len(r.members)
}

// Crown returns the owner marker, or nil.
func (r *Room) Crown() *Crown {
	if r.crown == nil {
		return nil
	}
	c := *r.crown
	return &c
}

// SetCrown makes m the room owner.
func (r *Room) SetCrown(m *Member, at time.Time) {
	r.crown = &Crown{Identity: m.Identity, MemberID: m.ID, Time: at}
}

// AddMember inserts a membership for the session. If one already exists for
// the identity it is returned with created == false.
func (r *Room) AddMember(s *Session) (m *Member, created bool) {
	if existing, ok := r.index[s.Identity]; ok {
		return existing, false
	}
	r.seq++
	m = &Member{
		ID:       utils.ContentID(r.ID, s.Identity, strconv.FormatUint(r.seq, 10), strconv.FormatInt(time.Now().UnixNano(), 10)),
		Identity: s.Identity,
		Name:     s.Name,
		Color:    s.Color,
		X:        s.X,
		Y:        s.Y,
	}
	r.members = append(r.members, m)
	r.index[s.Identity] = m
	return m, true
}

// RemoveMember deletes the membership of identity. Returns the removed record.
func (r *Room) RemoveMember(identity string) (*Member, bool) {
	m, ok := r.index[identity]
	if !ok {
		return nil, false
	}
	delete(r.index, identity)
	for i, cur := range r.members {
		if cur == m {
			r.members = append(r.members[:i], r.members[i+1:]...)
			break
		}
	}
	return m, true
}

// Member returns the membership of identity, or nil.
func (r *Room) Member(identity string) *Member {
	return r.index[identity]
}

// Members returns a copy of the membership list in join order.
func (r *Room) Members() []Member {
	out := make([]Member, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, *m)
	}
	return out
}

// Empty returns true if no members are in the room.
func (r *Room) Empty() bool {
	return len(r.members) == 0
}

// Chat returns the room chat log.
func (r *Room) Chat() *ChatLog {
	return r.chat
}
