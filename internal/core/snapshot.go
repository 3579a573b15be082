package core

import (
	"cmp"
	"slices"

	"github.com/vovakirdan/tgsessions/internal/datadir"
	"github.com/vovakirdan/tgsessions/internal/tdlib"
)

// ClientInfo describes one registry record.
type ClientInfo struct {
	ID              int32                `json:"id"`
	Database        datadir.DatabaseInfo `json:"database"`
	State           string               `json:"state"`
	MaybeAuthorized bool                 `json:"maybe_authorized,omitempty"`
}

// SessionInfo describes one visible session.
type SessionInfo struct {
	Index    int                  `json:"index"`
	ClientID int32                `json:"client_id"`
	Database datadir.DatabaseInfo `json:"database"`
	Me       *tdlib.User          `json:"me,omitempty"`
	Active   bool                 `json:"active"`
}

// Snapshot is a copy of the manager state.
type Snapshot struct {
	Surface      string        `json:"surface"`
	Active       int           `json:"active"`
	Clients      []ClientInfo  `json:"clients"`
	Sessions     []SessionInfo `json:"sessions"`
	RecentlyUsed []string      `json:"recently_used"`
}

// Snapshot copies the current state. Clients are ordered by handle.
func (m *Manager) Snapshot() Snapshot {
	snap := Snapshot{
		Surface:      m.surface.String(),
		Active:       m.active,
		Clients:      make([]ClientInfo, 0, len(m.clients)),
		Sessions:     make([]SessionInfo, 0, len(m.sessions)),
		RecentlyUsed: append([]string{}, m.recentlyUsed...),
	}
	for id, c := range m.clients {
		snap.Clients = append(snap.Clients, ClientInfo{
			ID:              id,
			Database:        c.database(),
			State:           c.State.Kind.String(),
			MaybeAuthorized: c.State.Kind == ClientAuthorizing && c.State.MaybeAuthorized,
		})
	}
	slices.SortFunc(snap.Clients, func(a, b ClientInfo) int { return cmp.Compare(a.ID, b.ID) })

	for i, s := range m.sessions {
		snap.Sessions = append(snap.Sessions, SessionInfo{
			Index:    i,
			ClientID: s.ClientID(),
			Database: s.DatabaseInfo(),
			Me:       s.Me(),
			Active:   i == m.active,
		})
	}
	return snap
}
