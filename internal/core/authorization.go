package core

import (
	"context"
	"fmt"

	"github.com/vovakirdan/tgsessions/internal/tdlib"
)

func (m *Manager) handleAuthorizationState(state tdlib.AuthorizationState, id int32) {
	client, ok := m.clients[id]
	if !ok {
		m.logger.Warn().Int32("client_id", id).Stringer("state", state.Kind).Msg("authorization state for unknown client")
		return
	}

	switch state.Kind {
	case tdlib.AuthorizationStateClosed:
		delete(m.clients, id)
		m.logger.Debug().Int32("client_id", id).Stringer("prior", client.State.Kind).Msg("client closed")
		if client.State.Kind == ClientLoggingOut {
			m.removeDatabase(client)
		}
		return
	case tdlib.AuthorizationStateLoggingOut:
		m.setSessionLoggingOut(client)
		client.State = ClientState{Kind: ClientLoggingOut}
		return
	}

	if client.State.Kind != ClientAuthorizing {
		return
	}
	if !client.State.MaybeAuthorized {
		m.login.SetAuthorizationState(id, state)
		return
	}
	m.resume(client, state)
}

// resume satisfies the authorization steps of a client restored from disk.
func (m *Manager) resume(client *Client, state tdlib.AuthorizationState) {
	id := client.ID
	info := client.database()

	switch state.Kind {
	case tdlib.AuthorizationStateWaitTdlibParameters:
		params := m.params.For(m.layout.DatabaseDir(info), info.UseTestDC)
		await(m, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, m.runtime.SetTdlibParameters(ctx, id, params)
		}, func(_ struct{}, err error) {
			if err != nil {
				m.fail(fmt.Errorf("send tdlib parameters to client %d: %w", id, err))
			}
		})
	case tdlib.AuthorizationStateWaitEncryptionKey:
		await(m, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, m.runtime.CheckDatabaseEncryptionKey(ctx, id, "")
		}, func(_ struct{}, err error) {
			if err != nil {
				m.fail(fmt.Errorf("send encryption key to client %d: %w", id, err))
			}
		})
	case tdlib.AuthorizationStateReady:
		isLastUsed := len(m.recentlyUsed) > 0 && m.recentlyUsed[len(m.recentlyUsed)-1] == info.DirectoryBaseName
		m.AddLoggedInSession(id, info, isLastUsed)
	default:
		// The database needs user input after all. Only a lone resumed session in the
		// configured environment can be handed to the login flow.
		if info.UseTestDC == m.testDC && m.initialSessionsToHandle == 1 {
			m.logger.Info().Int32("client_id", id).Stringer("state", state.Kind).Msg("resumed session needs login")
			client.State.MaybeAuthorized = false
			m.login.LoginClient(id, info)
			m.setSurface(SurfaceLogin)
			m.login.SetAuthorizationState(id, state)
			return
		}
		m.logger.Warn().Int32("client_id", id).Stringer("state", state.Kind).Str("database", info.DirectoryBaseName).Msg("resumed session is not authorized, logging out")
		m.spawn("log out", id, func(ctx context.Context) error {
			return m.runtime.LogOut(ctx, id)
		})
	}
}

// setSessionLoggingOut drops a logged in session from the visible set and picks the most
// recently used remaining one, or starts a new login when none is left.
func (m *Manager) setSessionLoggingOut(client *Client) {
	if client.State.Kind != ClientLoggedIn {
		return
	}

	name := client.database().DirectoryBaseName
	if idx := m.indexOfSession(client.Session); idx >= 0 {
		m.removeSession(idx)
	}
	if !removeName(&m.recentlyUsed, name) {
		m.logger.Warn().Str("database", name).Msg("logging out session missing from recently used sessions")
	}

	if len(m.sessions) > 0 {
		next := 0
		if n := len(m.recentlyUsed); n > 0 {
			if idx := m.indexOfDatabase(m.recentlyUsed[n-1]); idx >= 0 {
				next = idx
			}
		}
		m.autoSelected = false
		m.selectSession(next)
	} else {
		m.AddNewSession(m.testDC)
	}

	m.saveRecentlyUsed()
}

func (m *Manager) removeDatabase(client *Client) {
	info := client.database()
	logger := m.logger.With().Int32("client_id", client.ID).Str("database", info.DirectoryBaseName).Logger()
	go func() {
		if err := m.layout.RemoveDatabase(info); err != nil {
			logger.Error().Err(err).Msg("failed to remove database directory")
			return
		}
		logger.Info().Msg("database directory removed")
	}()
}
