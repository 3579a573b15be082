package core

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/tgsessions/internal/datadir"
	"github.com/vovakirdan/tgsessions/internal/tdlib"
)

// NoSession selects no particular session in SwitchToSessions.
const NoSession = -1

const settingsTimeout = 5 * time.Second

// Surface is what the user currently looks at.
type Surface int

const (
	SurfaceNone Surface = iota
	SurfaceLogin
	SurfaceSessions
)

func (s Surface) String() string {
	switch s {
	case SurfaceLogin:
		return "login"
	case SurfaceSessions:
		return "sessions"
	default:
		return "none"
	}
}

// Options wire a Manager to its collaborators.
type Options struct {
	Runtime    Runtime
	Login      Login
	Settings   SettingsStore
	NewSession SessionFactory

	// DataDir is the root holding one database directory per account.
	DataDir string
	// Parameters is completed per database and sent to clients resuming silently.
	Parameters tdlib.ParametersTemplate
	// TestDC is the environment used for new accounts.
	TestDC bool
	// Verbosity is the log verbosity level sent to every new client.
	Verbosity int
	// Namer generates database names. Defaults to a namer below DataDir.
	Namer *datadir.Namer
}

// Manager owns the client registry, the visible sessions and the recently used order.
// All of its state is confined to the goroutine executing Run; other goroutines reach it
// through Post and Call.
type Manager struct {
	runtime    Runtime
	login      Login
	settings   SettingsStore
	newSession SessionFactory
	layout     datadir.Layout
	params     tdlib.ParametersTemplate
	testDC     bool
	verbosity  int
	namer      *datadir.Namer
	logger     *zerolog.Logger

	tasks   chan func()
	done    chan struct{}
	running atomic.Bool
	ctx     context.Context
	err     error

	clients                 map[int32]*Client
	recentlyUsed            []string
	initialRank             map[string]int
	initialSessionsToHandle int
	sessions                []Session
	active                  int
	autoSelected            bool
	surface                 Surface
}

// NewManager creates a manager. Run starts it.
func NewManager(opts Options, logger *zerolog.Logger) *Manager {
	namer := opts.Namer
	if namer == nil {
		namer = datadir.NewNamer(opts.DataDir, nil)
	}
	return &Manager{
		runtime:    opts.Runtime,
		login:      opts.Login,
		settings:   opts.Settings,
		newSession: opts.NewSession,
		layout:     datadir.Layout{Root: opts.DataDir},
		params:     opts.Parameters,
		testDC:     opts.TestDC,
		verbosity:  opts.Verbosity,
		namer:      namer,
		logger:     logger,
		tasks:      make(chan func(), 64),
		done:       make(chan struct{}),
		ctx:        context.Background(),
		clients:    make(map[int32]*Client),
		active:     NoSession,
	}
}

// SetLogin attaches the login collaborator. It must be called before Run.
func (m *Manager) SetLogin(login Login) {
	m.login = login
}

// Run analyzes the data directory, restores or creates sessions and processes updates and
// posted work until ctx is done. It returns the first fatal error.
func (m *Manager) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(m.done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	m.ctx = ctx

	go m.analyzeDataDir(ctx)

	updates := m.runtime.Updates()
	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Msg("session manager stopped")
			return nil
		case fn := <-m.tasks:
			fn()
		case env, ok := <-updates:
			if !ok {
				m.logger.Warn().Msg("runtime update stream closed")
				updates = nil
				continue
			}
			m.HandleUpdate(env.Update, env.ClientID)
		}
		if m.err != nil {
			m.logger.Error().Err(m.err).Msg("session manager failed")
			return m.err
		}
	}
}

// Post queues fn for execution on the loop. It reports false once the loop has stopped.
// Post must not be called from the loop itself.
func (m *Manager) Post(fn func()) bool {
	select {
	case m.tasks <- fn:
		return true
	case <-m.done:
		return false
	}
}

// Call runs fn on the loop and waits for it to finish.
func (m *Manager) Call(ctx context.Context, fn func()) error {
	if !m.running.Load() {
		return ErrNotRunning
	}
	finished := make(chan struct{})
	task := func() {
		defer close(finished)
		fn()
	}

	select {
	case m.tasks <- task:
	case <-m.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return nil
	case <-m.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fail records a fatal error; Run returns it after the current task.
func (m *Manager) fail(err error) {
	if m.err == nil {
		m.err = err
	}
}

// await runs work off the loop and delivers its result to then on the loop, exactly once.
func await[T any](m *Manager, work func(ctx context.Context) (T, error), then func(T, error)) {
	ctx := m.ctx
	go func() {
		v, err := work(ctx)
		if !m.Post(func() { then(v, err) }) {
			m.logger.Debug().Msg("completion dropped after shutdown")
		}
	}()
}

// spawn runs a call whose outcome only matters for the log.
func (m *Manager) spawn(op string, id int32, work func(ctx context.Context) error) {
	ctx := m.ctx
	go func() {
		if err := work(ctx); err != nil {
			m.logger.Warn().Err(err).Int32("client_id", id).Str("op", op).Msg("client request failed")
		}
	}()
}

func (m *Manager) analyzeDataDir(ctx context.Context) {
	var loader datadir.RecentlyUsedLoader
	if m.settings != nil {
		loader = m.settings
	}
	state, err := datadir.Analyze(ctx, m.layout.Root, loader, m.logger)
	m.Post(func() { m.onDataDirAnalyzed(state, err) })
}

func (m *Manager) onDataDirAnalyzed(state datadir.State, err error) {
	if err != nil {
		m.fail(fmt.Errorf("initialize data directory: %w", err))
		return
	}

	switch state.Kind {
	case datadir.Empty:
		m.logger.Info().Str("path", m.layout.Root).Msg("no sessions found, starting login")
		m.AddNewSession(m.testDC)
	case datadir.HasSessions:
		m.recentlyUsed = state.RecentlyUsed
		m.initialRank = make(map[string]int, len(state.RecentlyUsed))
		for i, name := range state.RecentlyUsed {
			m.initialRank[name] = i
		}
		m.initialSessionsToHandle = len(state.Databases)
		m.logger.Info().Int("sessions", len(state.Databases)).Msg("resuming sessions")
		for _, info := range state.Databases {
			m.AddExistingSession(info)
		}
	}
}

func (m *Manager) sendLogLevel(id int32) {
	level := m.verbosity
	m.spawn("set log verbosity", id, func(ctx context.Context) error {
		return m.runtime.SetLogVerbosityLevel(ctx, id, level)
	})
}
