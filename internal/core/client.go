package core

import "github.com/vovakirdan/tgsessions/internal/datadir"

// ClientStateKind is the lifecycle stage of a client.
type ClientStateKind int

const (
	// ClientAuthorizing means the client has not reached Ready yet.
	ClientAuthorizing ClientStateKind = iota
	// ClientLoggedIn means the client is Ready and its session is visible.
	ClientLoggedIn
	// ClientLoggingOut means the client is tearing down; its database is deleted once Closed.
	ClientLoggingOut
)

func (k ClientStateKind) String() string {
	switch k {
	case ClientAuthorizing:
		return "authorizing"
	case ClientLoggedIn:
		return "logged_in"
	case ClientLoggingOut:
		return "logging_out"
	default:
		return "unknown"
	}
}

// ClientState is the lifecycle state of a client record.
type ClientState struct {
	Kind ClientStateKind
	// MaybeAuthorized is meaningful for ClientAuthorizing only. It is set for databases
	// found at startup that are expected to resume without user input.
	MaybeAuthorized bool
}

// Client is the registry record of one protocol client.
type Client struct {
	ID      int32
	Session Session
	State   ClientState
}

func (c *Client) database() datadir.DatabaseInfo {
	return c.Session.DatabaseInfo()
}
