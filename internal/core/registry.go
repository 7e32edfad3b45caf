package core

import (
	"sort"

	"github.com/vovakirdan/pianochat-server/internal/proto"
)

// Registry maps room ids to rooms. Rooms are never evicted.
type Registry struct {
	rooms       map[string]*Room
	chatHistory int
}

// NewRegistry creates a registry holding only the lobby.
func NewRegistry(chatHistory int) *Registry {
	reg := &Registry{
		rooms:       make(map[string]*Room),
		chatHistory: chatHistory,
	}
	reg.rooms[LobbyID] = NewRoom(LobbyID, chatHistory)
	return reg
}

// Get returns the room with the given id.
func (reg *Registry) Get(id string) (*Room, bool) {
	r, ok := reg.rooms[id]
	return r, ok
}

// GetOrCreate returns the room with the given id, creating it with the
// requested settings if absent.
func (reg *Registry) GetOrCreate(id string, set *proto.SettingsPatch) (r *Room, created bool) {
	if r, ok := reg.rooms[id]; ok {
		return r, false
	}
	r = NewRoom(id, reg.chatHistory)
	r.ApplySettings(set)
	reg.rooms[id] = r
	return r, true
}

// All returns every room sorted by id.
func (reg *Registry) All() []*Room {
	out := make([]*Room, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Visible returns the rooms flagged visible, sorted by id.
func (reg *Registry) Visible() []*Room {
	all := reg.All()
	out := all[:0]
	for _, r := range all {
		if r.settings.Visible {
			out = append(out, r)
		}
	}
	return out
}

// Len returns the number of rooms.
func (reg *Registry) Len() int {
	return len(reg.rooms)
}
