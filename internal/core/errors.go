package core

import "errors"

var (
	// ErrUnknownClient is fatal: a non-authorization update arrived for a handle without a record.
	ErrUnknownClient = errors.New("unknown client")
	// ErrDuplicateClient is fatal: the runtime handed out a handle that is still registered.
	ErrDuplicateClient = errors.New("duplicate client handle")
	// ErrNoSuchSession is returned for a session index outside the visible set.
	ErrNoSuchSession = errors.New("no such session")
	// ErrNotRunning is returned by Call before Run was started.
	ErrNotRunning = errors.New("manager is not running")
	// ErrStopped is returned by Call after Run has returned.
	ErrStopped = errors.New("manager stopped")
	// ErrAlreadyRunning is returned by a second Run.
	ErrAlreadyRunning = errors.New("manager already running")
)
