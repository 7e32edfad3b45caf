package core

// Session is the identity bound to one live connection.
// ConnID is a lookup key into the hub's connection table, never a pointer.
type Session struct {
	Identity string
	ConnID   string
	Name     string
	Color    string
	RoomID   string
	X, Y     float64
}

// InRoom reports whether the session currently belongs to a room.
func (s *Session) InRoom() bool {
	return s.RoomID != ""
}
