package core

import (
	"time"

	"github.com/vovakirdan/pianochat-server/internal/proto"
)

func millis(t time.Time) int64 {
	return t.UnixMilli()
}

// WireSettings converts settings to their wire form.
func (s Settings) WireSettings() proto.RoomSettings {
	return proto.RoomSettings{
		Chat:      s.Chat,
		Visible:   s.Visible,
		CrownSolo: s.CrownSolo,
		Color:     s.Color,
		Lobby:     s.IsLobby,
		NoCussing: s.NoCussing,
		Black:     s.IsRestrictedMode,
		Original:  s.IsOriginal,
	}
}

func wireCrown(c *Crown) *proto.Crown {
	if c == nil {
		return nil
	}
	return &proto.Crown{ParticipantID: c.MemberID, UserID: c.Identity, Time: millis(c.Time)}
}

func (m Member) participant() proto.Participant {
	return proto.Participant{
		UserID: m.Identity,
		ID:     m.ID,
		Name:   m.Name,
		Color:  m.Color,
		X:      m.X,
		Y:      m.Y,
	}
}

func (r *Room) channelInfo() proto.ChannelInfo {
	return proto.ChannelInfo{
		ID:       r.ID,
		Settings: r.settings.WireSettings(),
		Count:    r.Count(),
		Crown:    wireCrown(r.crown),
	}
}

func (r *Room) summary() proto.RoomSummary {
	members := r.Members()
	ppl := make([]proto.RosterEntry, 0, len(members))
	for _, m := range members {
		ppl = append(ppl, proto.RosterEntry{UserID: m.Identity, Name: m.Name, Color: m.Color})
	}
	return proto.RoomSummary{ChannelInfo: r.channelInfo(), Ppl: ppl}
}

func (r *Room) roster() []proto.Participant {
	members := r.Members()
	ppl := make([]proto.Participant, 0, len(members))
	for _, m := range members {
		ppl = append(ppl, m.participant())
	}
	return ppl
}

func participantUpdate(m Member) proto.ParticipantUpdate {
	return proto.ParticipantUpdate{M: proto.TypePart, Participant: m.participant()}
}

func chatRelay(e ChatEntry) proto.ChatRelay {
	return proto.ChatRelay{M: proto.TypeChat, A: e.Text, P: e.Member.participant(), T: millis(e.Time)}
}

func roomList(rooms []*Room) proto.RoomList {
	u := make([]proto.RoomSummary, 0, len(rooms))
	for _, r := range rooms {
		u = append(u, r.summary())
	}
	return proto.RoomList{M: proto.TypeRoomList, C: true, U: u}
}
