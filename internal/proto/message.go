package proto

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
)

// Event discriminators carried in the "m" field.
const (
	TypeHi       = "hi"
	TypeChannel  = "ch"
	TypeNote     = "n"
	TypeMove     = "m"
	TypeChat     = "a"
	TypeChSet    = "chset"
	TypeUserSet  = "userset"
	TypeTime     = "t"
	TypeListRoom = "+ls"
	TypeRoomList = "ls"
	TypePart     = "p"
	TypeBye      = "bye"
	TypeQuota    = "nq"
	TypeHistory  = "c"
)

// Kind is the closed set of inbound event kinds understood by the relay.
type Kind int

const (
	// KindUnknown is any discriminator the relay does not handle.
	KindUnknown Kind = iota
	// KindHi identifies the connection.
	KindHi
	// KindChannel joins a room.
	KindChannel
	// KindNote relays note events to the room.
	KindNote
	// KindMove relays a pointer position to the room.
	KindMove
	// KindChat relays a chat line to the room.
	KindChat
	// KindChSet updates the display profile.
	KindChSet
	// KindUserSet updates the display profile.
	KindUserSet
	// KindTime requests a server time echo.
	KindTime
	// KindListRooms requests the visible room list.
	KindListRooms
	// KindBye leaves the current room without disconnecting.
	KindBye
)

var kindsByType = map[string]Kind{
	TypeHi:       KindHi,
	TypeChannel:  KindChannel,
	TypeNote:     KindNote,
	TypeMove:     KindMove,
	TypeChat:     KindChat,
	TypeChSet:    KindChSet,
	TypeUserSet:  KindUserSet,
	TypeTime:     KindTime,
	TypeListRoom: KindListRooms,
	TypeBye:      KindBye,
}

// ParseKind maps a discriminator to its Kind. Unknown values map to KindUnknown.
func ParseKind(m string) Kind {
	if k, ok := kindsByType[m]; ok {
		return k
	}
	return KindUnknown
}

func (k Kind) String() string {
	switch k {
	case KindHi:
		return TypeHi
	case KindChannel:
		return TypeChannel
	case KindNote:
		return TypeNote
	case KindMove:
		return TypeMove
	case KindChat:
		return TypeChat
	case KindChSet:
		return TypeChSet
	case KindUserSet:
		return TypeUserSet
	case KindTime:
		return TypeTime
	case KindListRooms:
		return TypeListRoom
	case KindBye:
		return TypeBye
	default:
		return "unknown"
	}
}

// Inbound is one decoded event object from a client frame.
type Inbound struct {
	Kind Kind
	Type string
	Raw  json.RawMessage
}

// Decode unmarshals the full event object into v.
func (in Inbound) Decode(v any) error {
	if err := json.Unmarshal(in.Raw, v); err != nil {
		return fmt.Errorf("decode %q event: %w", in.Type, err)
	}
	return nil
}

// Coord is a pointer coordinate. Clients send it either as a number or as a
// numeric string.
type Coord float64

// ErrCoordNotFinite rejects NaN and infinities, which JSON cannot encode.
var ErrCoordNotFinite = errors.New("coord: not a finite number")

// UnmarshalJSON accepts 12.5 as well as "12.5".
func (c *Coord) UnmarshalJSON(b []byte) error {
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("coord: %w", err)
		}
		if f, err = strconv.ParseFloat(s, 64); err != nil {
			return fmt.Errorf("coord: %w", err)
		}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ErrCoordNotFinite
	}
	*c = Coord(f)
	return nil
}

// HiData is sent by the client to identify itself.
type HiData struct {
	Token string `json:"token,omitempty"`
}

// SettingsPatch carries optional room settings supplied with a join.
type SettingsPatch struct {
	Chat      *bool   `json:"chat,omitempty"`
	Visible   *bool   `json:"visible,omitempty"`
	CrownSolo *bool   `json:"crownsolo,omitempty"`
	Color     *string `json:"color,omitempty"`
}

// ChannelData requests to join a room.
type ChannelData struct {
	ID  string         `json:"_id"`
	Set *SettingsPatch `json:"set,omitempty"`
}

// NoteData carries a note payload. N is opaque to the relay.
type NoteData struct {
	T json.RawMessage `json:"t,omitempty"`
	N json.RawMessage `json:"n"`
}

// MoveData carries a pointer position.
type MoveData struct {
	X *Coord `json:"x"`
	Y *Coord `json:"y"`
}

// ChatData is a chat line from the client.
type ChatData struct {
	Message string `json:"message"`
}

// ProfilePatch carries a display profile update.
type ProfilePatch struct {
	Name  *string `json:"name,omitempty"`
	Color *string `json:"color,omitempty"`
}

// UserSetData wraps a profile update for both "chset" and "userset".
type UserSetData struct {
	Set *ProfilePatch `json:"set"`
}

// TimeData carries the client timestamp to echo back.
type TimeData struct {
	E json.RawMessage `json:"e,omitempty"`
}

// User describes the identified user in the hi acknowledgement.
type User struct {
	ID    string  `json:"_id"`
	Name  string  `json:"name"`
	Color string  `json:"color"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

// AccountInfo is kept for client compatibility.
type AccountInfo struct {
	Type int `json:"type"`
}

// HiAck acknowledges an identify event.
type HiAck struct {
	M           string         `json:"m"`
	U           User           `json:"u"`
	T           int64          `json:"t"`
	Token       string         `json:"token,omitempty"`
	Permissions map[string]any `json:"permissions"`
	AccountInfo AccountInfo    `json:"accountInfo"`
}

// RoomSettings is the wire form of room settings.
type RoomSettings struct {
	Chat      bool   `json:"chat"`
	Visible   bool   `json:"visible"`
	CrownSolo bool   `json:"crownsolo"`
	Color     string `json:"color"`
	Lobby     bool   `json:"lobby"`
	NoCussing bool   `json:"no cussing"`
	Black     bool   `json:"black"`
	Original  bool   `json:"original"`
}

// Crown marks the owner of a room.
type Crown struct {
	ParticipantID string `json:"participantId"`
	UserID        string `json:"userId"`
	Time          int64  `json:"time"`
}

// ChannelInfo describes a room.
type ChannelInfo struct {
	ID       string       `json:"_id"`
	Settings RoomSettings `json:"settings"`
	Count    int          `json:"count"`
	Crown    *Crown       `json:"crown"`
}

// Participant is a room member as seen by other clients.
type Participant struct {
	UserID string  `json:"_id"`
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Color  string  `json:"color"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

// RosterEntry is the abbreviated participant form used by room lists.
type RosterEntry struct {
	UserID string `json:"_id"`
	Name   string `json:"name"`
	Color  string `json:"color"`
}

// RoomSummary is one entry in a room list.
type RoomSummary struct {
	ChannelInfo
	Ppl []RosterEntry `json:"ppl"`
}

// RoomList answers "+ls".
type RoomList struct {
	M string        `json:"m"`
	C bool          `json:"c"`
	U []RoomSummary `json:"u"`
}

// NoteQuota tells a joiner its note allowance for the room.
type NoteQuota struct {
	M         string `json:"m"`
	Allowance int    `json:"allowance"`
	Max       int    `json:"max"`
	HistLen   int    `json:"histLen"`
	T         int64  `json:"t"`
}

// ChannelJoined confirms a join with full room state.
type ChannelJoined struct {
	M   string        `json:"m"`
	Ch  ChannelInfo   `json:"ch"`
	P   string        `json:"p"`
	Ppl []Participant `json:"ppl"`
}

// ParticipantUpdate announces an arrived or updated participant.
type ParticipantUpdate struct {
	M string `json:"m"`
	Participant
}

// Bye announces a departed participant by membership id.
type Bye struct {
	M string `json:"m"`
	P string `json:"p"`
}

// NoteRelay forwards notes to other members.
type NoteRelay struct {
	M string          `json:"m"`
	T json.RawMessage `json:"t,omitempty"`
	N json.RawMessage `json:"n"`
	P string          `json:"p"`
}

// MoveRelay forwards a pointer position.
type MoveRelay struct {
	M  string  `json:"m"`
	ID string  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// ChatRelay forwards a chat line.
type ChatRelay struct {
	M string      `json:"m"`
	A string      `json:"a"`
	P Participant `json:"p"`
	T int64       `json:"t"`
}

// ChatHistory delivers the room chat log to a joiner.
type ChatHistory struct {
	M string      `json:"m"`
	C []ChatRelay `json:"c"`
}

// TimeEcho answers a time sync request.
type TimeEcho struct {
	M string          `json:"m"`
	T int64           `json:"t"`
	E json.RawMessage `json:"e,omitempty"`
}
