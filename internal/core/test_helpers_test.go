package core

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/tgsessions/internal/datadir"
	"github.com/vovakirdan/tgsessions/internal/session"
	"github.com/vovakirdan/tgsessions/internal/tdlib"
	"github.com/vovakirdan/tgsessions/internal/tdlib/tdlibtest"
)

type loginCall struct {
	ClientID int32
	Info     datadir.DatabaseInfo
}

type stateCall struct {
	ClientID int32
	State    tdlib.AuthorizationStateKind
}

type fakeLogin struct {
	mu      sync.Mutex
	clients []loginCall
	states  []stateCall
}

func (l *fakeLogin) LoginClient(id int32, info datadir.DatabaseInfo) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clients = append(l.clients, loginCall{ClientID: id, Info: info})
}

func (l *fakeLogin) SetAuthorizationState(id int32, state tdlib.AuthorizationState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, stateCall{ClientID: id, State: state.Kind})
}

func (l *fakeLogin) loginCalls() []loginCall {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.clients)
}

func (l *fakeLogin) stateCalls() []stateCall {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.states)
}

type memSettings struct {
	mu    sync.Mutex
	names []string
	saves int
}

func (s *memSettings) RecentlyUsedSessions(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.names), nil
}

func (s *memSettings) SaveRecentlyUsedSessions(_ context.Context, names []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names = slices.Clone(names)
	s.saves++
	return nil
}

func (s *memSettings) saved() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.names)
}

type harness struct {
	t        *testing.T
	root     string
	rt       *tdlibtest.Runtime
	login    *fakeLogin
	settings *memSettings
	m        *Manager

	cancel context.CancelFunc
	errc   chan error
}

func newHarness(t *testing.T, recentlyUsed []string, configure func(*Options)) *harness {
	t.Helper()

	logger := zerolog.New(nil)
	h := &harness{
		t:        t,
		root:     t.TempDir(),
		rt:       tdlibtest.NewRuntime(),
		login:    &fakeLogin{},
		settings: &memSettings{names: recentlyUsed},
		errc:     make(chan error, 1),
	}
	h.rt.AutoLogOut = true

	opts := Options{
		Runtime:  h.rt,
		Login:    h.login,
		Settings: h.settings,
		NewSession: func(id int32, info datadir.DatabaseInfo) Session {
			return session.New(id, info, h.rt, &logger)
		},
		DataDir:    h.root,
		Parameters: tdlib.ParametersTemplate{APIID: 1, APIHash: "hash", SystemLanguageCode: "en"},
		Verbosity:  2,
	}
	if configure != nil {
		configure(&opts)
	}
	h.m = NewManager(opts, &logger)
	return h
}

func (h *harness) addDatabase(name, marker string) {
	h.t.Helper()
	dir := filepath.Join(h.root, name)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		h.t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, marker), []byte("binlog"), 0o600); err != nil {
		h.t.Fatalf("write marker: %v", err)
	}
}

func (h *harness) start() {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	h.cancel = cancel
	h.t.Cleanup(cancel)
	go func() { h.errc <- h.m.Run(ctx) }()
	eventually(h.t, func() bool { return h.m.running.Load() })
}

func (h *harness) stop() error {
	h.t.Helper()
	h.cancel()
	return h.wait()
}

func (h *harness) wait() error {
	h.t.Helper()
	select {
	case err := <-h.errc:
		return err
	case <-time.After(3 * time.Second):
		h.t.Fatalf("manager did not stop")
		return nil
	}
}

func (h *harness) snapshot() Snapshot {
	h.t.Helper()
	var snap Snapshot
	if err := h.m.Call(context.Background(), func() { snap = h.m.Snapshot() }); err != nil {
		h.t.Fatalf("snapshot: %v", err)
	}
	return snap
}

func (h *harness) waitClients(n int) Snapshot {
	h.t.Helper()
	var snap Snapshot
	eventually(h.t, func() bool {
		snap = h.snapshot()
		return len(snap.Clients) == n
	})
	return snap
}

func (h *harness) waitSessions(n int) Snapshot {
	h.t.Helper()
	var snap Snapshot
	eventually(h.t, func() bool {
		snap = h.snapshot()
		return len(snap.Sessions) == n
	})
	return snap
}

// resume walks a restored client through the silent authorization steps.
func (h *harness) resume(id int32) {
	h.rt.EmitState(id, tdlib.AuthorizationStateWaitTdlibParameters)
	h.rt.EmitState(id, tdlib.AuthorizationStateWaitEncryptionKey)
	h.rt.EmitState(id, tdlib.AuthorizationStateReady)
}

func (h *harness) clientState(id int32) (ClientInfo, bool) {
	h.t.Helper()
	for _, c := range h.snapshot().Clients {
		if c.ID == id {
			return c, true
		}
	}
	return ClientInfo{}, false
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

func countOnline(calls []tdlibtest.Call, id int32, online bool) int {
	n := 0
	for _, c := range calls {
		if c.ClientID != id || c.Args[0] != "online" {
			continue
		}
		if c.Args[1].(tdlib.OptionValue).Boolean == online {
			n++
		}
	}
	return n
}

func hasOnline(calls []tdlibtest.Call, id int32, online bool) bool {
	return countOnline(calls, id, online) > 0
}
