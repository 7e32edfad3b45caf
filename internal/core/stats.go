package core

// RoomView is a read-only copy of one room.
type RoomView struct {
	ID        string
	Settings  Settings
	Crown     *Crown
	Members   []Member
	ChatLines int
}

// Count returns the number of members.
func (v RoomView) Count() int {
	return len(v.Members)
}

// Stats is a point-in-time copy of the relay state.
type Stats struct {
	Connections int
	Sessions    int
	Rooms       []RoomView
}

// Room returns the view of the room with the given id.
func (s Stats) Room(id string) (RoomView, bool) {
	for _, r := range s.Rooms {
		if r.ID == id {
			return r, true
		}
	}
	return RoomView{}, false
}

func (h *Hub) stats() Stats {
	rooms := h.registry.All()
	st := Stats{
		Connections: len(h.conns),
		Sessions:    len(h.sessions),
		Rooms:       make([]RoomView, 0, len(rooms)),
	}
	for _, r := range rooms {
		st.Rooms = append(st.Rooms, RoomView{
			ID:        r.ID,
			Settings:  r.Settings(),
			Crown:     r.Crown(),
			Members:   r.Members(),
			ChatLines: r.Chat().Len(),
		})
	}
	return st
}
