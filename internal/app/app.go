package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/tgsessions/internal/auth"
	"github.com/vovakirdan/tgsessions/internal/config"
	"github.com/vovakirdan/tgsessions/internal/core"
	"github.com/vovakirdan/tgsessions/internal/datadir"
	"github.com/vovakirdan/tgsessions/internal/log"
	"github.com/vovakirdan/tgsessions/internal/login"
	"github.com/vovakirdan/tgsessions/internal/session"
	"github.com/vovakirdan/tgsessions/internal/store"
	"github.com/vovakirdan/tgsessions/internal/store/sqlite"
	"github.com/vovakirdan/tgsessions/internal/tdlib"
	transporthttp "github.com/vovakirdan/tgsessions/internal/transport/http"
	"github.com/vovakirdan/tgsessions/internal/transport/tdws"
)

const (
	controlIssuer   = "tgsessiond"
	controlAudience = "control"
)

// ErrGatewayClosed is returned when the gateway connection ends while the daemon runs.
var ErrGatewayClosed = errors.New("gateway connection ended")

// App wires together core and transport layers.
type App struct {
	gateway         *tdws.Client
	manager         *core.Manager
	flow            *login.Flow
	server          *stdhttp.Server
	store           store.Store
	shutdownTimeout time.Duration
	closeTimeout    time.Duration
	log             *zerolog.Logger
}

// ControlJWT returns the token configuration of the control API, or nil when no secret is set.
func ControlJWT(cfg *config.Config, ttl time.Duration) *auth.JWTConfig {
	if cfg.ControlSecret == "" {
		return nil
	}
	return &auth.JWTConfig{
		Secret:   []byte(cfg.ControlSecret),
		Issuer:   controlIssuer,
		Audience: controlAudience,
		TTL:      ttl,
	}
}

// New connects to the gateway and constructs the application with provided configuration.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.SettingsPath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("settings_path", cfg.SettingsPath).Msg("settings store initialized")

	gateway, err := tdws.Dial(ctx, cfg.GatewayURL, cfg.MaxMessageBytes, logger)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	logger.Info().Str("gateway", cfg.GatewayURL).Msg("connected to gateway")

	params := tdlib.ParametersTemplate{
		APIID:              cfg.APIID,
		APIHash:            cfg.APIHash,
		SystemLanguageCode: config.SystemLanguageCode(),
		DeviceModel:        cfg.DeviceModel,
		ApplicationVersion: cfg.AppVersion,
	}

	flow := login.New(gateway, login.NewTerminal(os.Stdin, os.Stdout), params, cfg.DataDir, logger)
	manager := core.NewManager(core.Options{
		Runtime:  gateway,
		Login:    flow,
		Settings: st,
		NewSession: func(id int32, info datadir.DatabaseInfo) core.Session {
			return session.New(id, info, gateway, logger)
		},
		DataDir:    cfg.DataDir,
		Parameters: params,
		TestDC:     cfg.TestDC,
		Verbosity:  log.TDLibVerbosity(logger.GetLevel()),
	}, logger)

	a := &App{
		gateway:         gateway,
		manager:         manager,
		flow:            flow,
		store:           st,
		shutdownTimeout: cfg.ShutdownTimeout,
		closeTimeout:    cfg.CloseTimeout,
		log:             logger,
	}
	if cfg.ControlAddr != "" {
		jwtCfg := ControlJWT(cfg, 0)
		if jwtCfg == nil {
			logger.Warn().Str("addr", cfg.ControlAddr).Msg("control API runs without authentication")
		}
		a.server = transporthttp.NewServer(manager, cfg, jwtCfg, logger)
	}
	return a, nil
}

// Run starts the session manager, the gateway reader and the control API, and blocks until
// context cancellation or a fatal error. Clients are closed before it returns.
func (a *App) Run(ctx context.Context) error {
	// The gateway outlives ctx so that clients can still be closed on shutdown.
	gatewayCtx, stopGateway := context.WithCancel(context.WithoutCancel(ctx))
	defer stopGateway()
	gatewayErr := make(chan error, 1)
	go func() { gatewayErr <- a.gateway.Run(gatewayCtx) }()

	a.flow.Attach(ctx, a.manager)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.manager.Run(gctx)
	})
	g.Go(func() error {
		select {
		case err := <-gatewayErr:
			if err == nil {
				err = ErrGatewayClosed
			}
			return fmt.Errorf("gateway: %w", err)
		case <-gctx.Done():
			return nil
		}
	})
	if a.server != nil {
		g.Go(func() error {
			a.log.Info().Str("addr", a.server.Addr).Msg("control API listening")
			if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
				return fmt.Errorf("control API: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
			defer cancel()

			a.log.Info().Msg("shutting down control API")
			return a.server.Shutdown(shutdownCtx)
		})
	}

	err := g.Wait()
	a.cleanup()
	return err
}

// cleanup closes clients, the gateway and the store.
func (a *App) cleanup() {
	// The manager no longer reads updates.
	a.gateway.DiscardUpdates()

	closeCtx, cancel := context.WithTimeout(context.Background(), a.closeTimeout)
	defer cancel()
	if err := a.manager.CloseClients(closeCtx); err != nil {
		a.log.Warn().Err(err).Msg("failed to close clients")
	} else {
		a.log.Info().Msg("clients closed")
	}

	if err := a.gateway.Disconnect(); err != nil {
		a.log.Debug().Err(err).Msg("gateway disconnect")
	}

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
