package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/vovakirdan/tgsessions/internal/tdlib"
	"golang.org/x/sync/errgroup"
)

func (m *Manager) setOnline(ctx context.Context, id int32, online bool) error {
	return m.runtime.SetOption(ctx, id, "online", tdlib.BoolOption(online))
}

// activeLoggedInClientID returns the client of the active session while sessions are shown.
func (m *Manager) activeLoggedInClientID() (int32, bool) {
	if m.surface != SurfaceSessions || m.active == NoSession {
		return 0, false
	}
	return m.sessions[m.active].ClientID(), true
}

// SetActiveClientOnline sets the online status of the active session's client.
func (m *Manager) SetActiveClientOnline(online bool) {
	id, ok := m.activeLoggedInClientID()
	if !ok {
		return
	}
	m.spawn("set online", id, func(ctx context.Context) error {
		return m.setOnline(ctx, id, online)
	})
}

// transferOnlineStatus marks the given client online and every other logged in client offline.
func (m *Manager) transferOnlineStatus(activeID int32) {
	for id, c := range m.clients {
		if c.State.Kind != ClientLoggedIn {
			continue
		}
		online := id == activeID
		m.spawn("set online", id, func(ctx context.Context) error {
			return m.setOnline(ctx, id, online)
		})
	}
}

// CloseClients sets every authorizing or logged in client offline and closes it. It blocks
// until all clients have answered and is meant for shutdown; it works whether or not Run is
// still executing.
func (m *Manager) CloseClients(ctx context.Context) error {
	var ids []int32
	collect := func() {
		for id, c := range m.clients {
			if c.State.Kind == ClientAuthorizing || c.State.Kind == ClientLoggedIn {
				ids = append(ids, id)
			}
		}
	}
	if err := m.Call(ctx, collect); err != nil {
		if !errors.Is(err, ErrNotRunning) && !errors.Is(err, ErrStopped) {
			return fmt.Errorf("collect clients: %w", err)
		}
		// Nothing else touches the registry without a running loop.
		collect()
	}

	var g errgroup.Group
	for _, id := range ids {
		g.Go(func() error {
			logger := m.logger.With().Int32("client_id", id).Logger()
			if err := m.setOnline(ctx, id, false); err != nil {
				logger.Warn().Err(err).Msg("failed to set client offline")
			}
			if err := m.runtime.Close(ctx, id); err != nil {
				logger.Warn().Err(err).Msg("failed to close client")
				return fmt.Errorf("close client %d: %w", id, err)
			}
			return nil
		})
	}
	return g.Wait()
}
