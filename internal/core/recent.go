package core

import (
	"context"
	"slices"
)

func (m *Manager) indexOfSession(s Session) int {
	return slices.IndexFunc(m.sessions, func(other Session) bool { return other == s })
}

func (m *Manager) indexOfDatabase(name string) int {
	return slices.IndexFunc(m.sessions, func(s Session) bool {
		return s.DatabaseInfo().DirectoryBaseName == name
	})
}

// removeSession drops a session from the visible set without selecting a replacement.
func (m *Manager) removeSession(idx int) {
	m.sessions = slices.Delete(m.sessions, idx, idx+1)
	switch {
	case m.active == idx:
		m.active = NoSession
	case m.active > idx:
		m.active--
	}
}

func (m *Manager) selectSession(idx int) {
	if idx == m.active || idx < 0 || idx >= len(m.sessions) {
		return
	}
	m.active = idx
	m.onActiveSessionChanged()
}

func (m *Manager) setSurface(s Surface) {
	if s == m.surface {
		return
	}
	m.surface = s
	if s == SurfaceSessions {
		m.onActiveSessionChanged()
	}
}

// onActiveSessionChanged hands the online status to the active session and, while sessions
// are shown, moves it to the end of the recently used order.
func (m *Manager) onActiveSessionChanged() {
	if m.active == NoSession {
		return
	}
	session := m.sessions[m.active]
	m.transferOnlineStatus(session.ClientID())

	if m.surface == SurfaceSessions {
		name := session.DatabaseInfo().DirectoryBaseName
		removeName(&m.recentlyUsed, name)
		m.recentlyUsed = append(m.recentlyUsed, name)
		m.saveRecentlyUsed()
	}
}

// rank orders sessions by their position in the recently used order found at startup.
// Sessions missing from it rank lowest; ties go to the greater directory name.
func (m *Manager) rank(idx int) (int, string) {
	name := m.sessions[idx].DatabaseInfo().DirectoryBaseName
	r, ok := m.initialRank[name]
	if !ok {
		r = -1
	}
	return r, name
}

func (m *Manager) outranks(idx, other int) bool {
	if other == NoSession {
		return true
	}
	r1, n1 := m.rank(idx)
	r2, n2 := m.rank(other)
	if r1 != r2 {
		return r1 > r2
	}
	return n1 > n2
}

func (m *Manager) bestRanked() int {
	best := NoSession
	for i := range m.sessions {
		if m.outranks(i, best) {
			best = i
		}
	}
	return best
}

func (m *Manager) saveRecentlyUsed() {
	if m.settings == nil {
		return
	}
	ctx, cancel := context.WithTimeout(m.ctx, settingsTimeout)
	defer cancel()
	if err := m.settings.SaveRecentlyUsedSessions(ctx, slices.Clone(m.recentlyUsed)); err != nil {
		m.logger.Warn().Err(err).Msg("failed to save recently used sessions")
	}
}

func removeName(names *[]string, name string) bool {
	idx := slices.Index(*names, name)
	if idx < 0 {
		return false
	}
	*names = slices.Delete(*names, idx, idx+1)
	return true
}
