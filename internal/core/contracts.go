package core

import (
	"context"

	"github.com/vovakirdan/tgsessions/internal/datadir"
	"github.com/vovakirdan/tgsessions/internal/tdlib"
)

// Runtime is the protocol runtime the manager drives.
type Runtime interface {
	CreateClient() int32
	Updates() <-chan tdlib.Envelope

	SetLogVerbosityLevel(ctx context.Context, id int32, level int) error
	SetTdlibParameters(ctx context.Context, id int32, params tdlib.Parameters) error
	CheckDatabaseEncryptionKey(ctx context.Context, id int32, key string) error
	GetMe(ctx context.Context, id int32) (tdlib.User, error)
	SetOption(ctx context.Context, id int32, name string, value tdlib.OptionValue) error
	LogOut(ctx context.Context, id int32) error
	Close(ctx context.Context, id int32) error
}

// Login drives interactive authorization of one client at a time.
type Login interface {
	// LoginClient starts the interactive flow for a client.
	LoginClient(id int32, info datadir.DatabaseInfo)
	// SetAuthorizationState advances the flow with a new state of the client.
	SetAuthorizationState(id int32, state tdlib.AuthorizationState)
}

// Session is the runtime representation of one account.
type Session interface {
	ClientID() int32
	DatabaseInfo() datadir.DatabaseInfo
	Me() *tdlib.User
	SetMe(user tdlib.User)
	HandleUpdate(update tdlib.Update)
	FetchChats(ctx context.Context) error
}

// SessionFactory creates the session object of a newly registered client.
type SessionFactory func(id int32, info datadir.DatabaseInfo) Session

// SettingsStore persists the recently used order.
type SettingsStore interface {
	RecentlyUsedSessions(ctx context.Context) ([]string, error)
	SaveRecentlyUsedSessions(ctx context.Context, names []string) error
}
