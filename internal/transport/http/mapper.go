package http

import (
	"time"

	"github.com/vovakirdan/pianochat-server/internal/core"
)

// SettingsResponse is the admin view of room settings.
type SettingsResponse struct {
	Chat       bool   `json:"chat"`
	Visible    bool   `json:"visible"`
	CrownSolo  bool   `json:"crownsolo"`
	Color      string `json:"color"`
	Lobby      bool   `json:"lobby"`
	NoCussing  bool   `json:"no_cussing"`
	Restricted bool   `json:"restricted"`
	Original   bool   `json:"original"`
}

// CrownResponse names the room owner.
type CrownResponse struct {
	Identity     string `json:"identity"`
	MembershipID string `json:"membership_id"`
	Since        string `json:"since"`
}

// MemberResponse is one room member.
type MemberResponse struct {
	MembershipID string  `json:"membership_id"`
	Identity     string  `json:"identity"`
	Name         string  `json:"name"`
	Color        string  `json:"color"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
}

// RoomResponse represents a room in API responses.
type RoomResponse struct {
	ID        string           `json:"id"`
	Count     int              `json:"count"`
	Settings  SettingsResponse `json:"settings"`
	Crown     *CrownResponse   `json:"crown"`
	ChatLines int              `json:"chat_lines"`
	Members   []MemberResponse `json:"members,omitempty"`
}

// StatsResponse summarizes the relay.
type StatsResponse struct {
	Connections int `json:"connections"`
	Sessions    int `json:"sessions"`
	Rooms       int `json:"rooms"`
	Members     int `json:"members"`
}

func roomToResponse(v core.RoomView, withMembers bool) RoomResponse {
	resp := RoomResponse{
		ID:    v.ID,
		Count: v.Count(),
		Settings: SettingsResponse{
			Chat:       v.Settings.Chat,
			Visible:    v.Settings.Visible,
			CrownSolo:  v.Settings.CrownSolo,
			Color:      v.Settings.Color,
			Lobby:      v.Settings.IsLobby,
			NoCussing:  v.Settings.NoCussing,
			Restricted: v.Settings.IsRestrictedMode,
			Original:   v.Settings.IsOriginal,
		},
		ChatLines: v.ChatLines,
	}
	if v.Crown != nil {
		resp.Crown = &CrownResponse{
			Identity:     v.Crown.Identity,
			MembershipID: v.Crown.MemberID,
			Since:        v.Crown.Time.UTC().Format(time.RFC3339),
		}
	}
	if withMembers {
		resp.Members = make([]MemberResponse, 0, len(v.Members))
		for _, m := range v.Members {
			resp.Members = append(resp.Members, MemberResponse{
				MembershipID: m.ID,
				Identity:     m.Identity,
				Name:         m.Name,
				Color:        m.Color,
				X:            m.X,
				Y:            m.Y,
			})
		}
	}
	return resp
}

func statsToResponse(st core.Stats) StatsResponse {
	resp := StatsResponse{
		Connections: st.Connections,
		Sessions:    st.Sessions,
		Rooms:       len(st.Rooms),
	}
	for _, r := range st.Rooms {
		resp.Members += r.Count()
	}
	return resp
}
