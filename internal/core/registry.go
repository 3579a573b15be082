package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/vovakirdan/tgsessions/internal/datadir"
	"github.com/vovakirdan/tgsessions/internal/tdlib"
)

// notificationGroupCountMax enables notification groups for logged in clients.
const notificationGroupCountMax = 5

func (m *Manager) register(id int32, info datadir.DatabaseInfo, state ClientState) bool {
	if _, ok := m.clients[id]; ok {
		m.fail(fmt.Errorf("register client %d: %w", id, ErrDuplicateClient))
		return false
	}
	m.clients[id] = &Client{
		ID:      id,
		Session: m.newSession(id, info),
		State:   state,
	}
	return true
}

// AddExistingSession registers a client for a database found at startup. The client is
// expected to reach Ready without user input.
func (m *Manager) AddExistingSession(info datadir.DatabaseInfo) int32 {
	id := m.runtime.CreateClient()
	if !m.register(id, info, ClientState{Kind: ClientAuthorizing, MaybeAuthorized: true}) {
		return id
	}
	m.logger.Debug().Int32("client_id", id).Str("database", info.DirectoryBaseName).Msg("resuming session")
	m.sendLogLevel(id)
	return id
}

// AddNewSession registers a client for a fresh database and hands it to the login flow.
func (m *Manager) AddNewSession(useTestDC bool) int32 {
	id := m.runtime.CreateClient()
	info := datadir.DatabaseInfo{
		DirectoryBaseName: m.namer.Next(),
		UseTestDC:         useTestDC,
	}
	if !m.register(id, info, ClientState{Kind: ClientAuthorizing}) {
		return id
	}
	m.logger.Info().Int32("client_id", id).Str("database", info.DirectoryBaseName).Bool("test_dc", useTestDC).Msg("new session")

	m.login.LoginClient(id, info)
	m.setSurface(SurfaceLogin)
	m.sendLogLevel(id)
	return id
}

// HandleUpdate dispatches an update of client id.
func (m *Manager) HandleUpdate(update tdlib.Update, id int32) {
	switch update.Kind {
	case tdlib.UpdateAuthorizationState:
		if update.AuthorizationState == nil {
			m.logger.Warn().Int32("client_id", id).Msg("authorization update without state")
			return
		}
		m.handleAuthorizationState(*update.AuthorizationState, id)
	default:
		client, ok := m.clients[id]
		if !ok {
			m.fail(fmt.Errorf("%s update for client %d: %w", update.Kind, id, ErrUnknownClient))
			return
		}
		client.Session.HandleUpdate(update)
	}
}

// AddLoggedInSession fetches the profile of a Ready client and adds its session to the
// visible set. With visible set, or when nothing else is shown and no client is still
// authorizing, the session becomes the active one.
func (m *Manager) AddLoggedInSession(id int32, info datadir.DatabaseInfo, visible bool) {
	client, ok := m.clients[id]
	if !ok {
		m.logger.Warn().Int32("client_id", id).Str("database", info.DirectoryBaseName).Msg("logged in client is not registered")
		return
	}
	session := client.Session

	await(m, func(ctx context.Context) (tdlib.User, error) {
		return m.runtime.GetMe(ctx, id)
	}, func(me tdlib.User, err error) {
		if err != nil {
			m.logger.Error().Err(err).Int32("client_id", id).Msg("failed to fetch own profile")
			return
		}
		client, ok := m.clients[id]
		if !ok || client.Session != session {
			m.logger.Warn().Int32("client_id", id).Msg("client vanished before its profile arrived")
			return
		}
		if client.State.Kind != ClientAuthorizing {
			m.logger.Warn().Int32("client_id", id).Stringer("state", client.State.Kind).Msg("client left Ready before its profile arrived")
			return
		}

		session.SetMe(me)
		m.spawn("fetch chats", id, session.FetchChats)

		m.sessions = append(m.sessions, session)
		client.State = ClientState{Kind: ClientLoggedIn}
		added := len(m.sessions) - 1

		switch {
		case visible:
			m.autoSelected = false
			m.selectSession(added)
			m.setSurface(SurfaceSessions)
		case m.surface != SurfaceSessions && !m.anyAuthorizing():
			m.autoSelected = true
			m.selectSession(m.bestRanked())
			m.setSurface(SurfaceSessions)
		case m.autoSelected && m.outranks(added, m.active):
			m.selectSession(added)
		case m.active == NoSession:
			m.selectSession(added)
		}

		m.spawn("enable notifications", id, func(ctx context.Context) error {
			return m.runtime.SetOption(ctx, id, "notification_group_count_max", tdlib.IntOption(notificationGroupCountMax))
		})
	})
}

func (m *Manager) anyAuthorizing() bool {
	for _, c := range m.clients {
		if c.State.Kind == ClientAuthorizing {
			return true
		}
	}
	return false
}

// SwitchToSessions shows the visible sessions and selects index unless it is NoSession.
func (m *Manager) SwitchToSessions(index int) error {
	if index != NoSession && (index < 0 || index >= len(m.sessions)) {
		return fmt.Errorf("session %d: %w", index, ErrNoSuchSession)
	}
	m.setSurface(SurfaceSessions)
	if index != NoSession {
		m.autoSelected = false
		m.selectSession(index)
	}
	return nil
}

// SessionIndexFor returns the index of the visible session logged in with the given
// environment and phone number. Only digits of both numbers are compared.
func (m *Manager) SessionIndexFor(useTestDC bool, phoneNumberDigits string) (int, bool) {
	want := PhoneDigits(phoneNumberDigits)
	if want == "" {
		return 0, false
	}
	for i, s := range m.sessions {
		me := s.Me()
		if me == nil || s.DatabaseInfo().UseTestDC != useTestDC {
			continue
		}
		if PhoneDigits(me.PhoneNumber) == want {
			return i, true
		}
	}
	return 0, false
}

// HasSessions reports whether any session is visible.
func (m *Manager) HasSessions() bool {
	return len(m.sessions) > 0
}

// LoggedInUsers returns the own profiles of all visible sessions.
func (m *Manager) LoggedInUsers() []tdlib.User {
	users := make([]tdlib.User, 0, len(m.sessions))
	for _, s := range m.sessions {
		if me := s.Me(); me != nil {
			users = append(users, *me)
		}
	}
	return users
}

// PhoneDigits keeps the ASCII digits of a phone number.
func PhoneDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}
