// Package tdlibtest provides an in-memory protocol runtime for tests.
package tdlibtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/vovakirdan/tgsessions/internal/tdlib"
)

// Call records one request made to the Runtime.
type Call struct {
	ClientID int32
	Method   string
	Args     []any
}

// Runtime is a scripted stand-in for the gateway client. Handles are allocated from 1.
// Every request is recorded; failures are configured per method with FailOn.
type Runtime struct {
	// AutoLogOut makes LogOut emit LoggingOut followed by Closed for the client.
	AutoLogOut bool
	// AutoClose makes Close emit Closed for the client.
	AutoClose bool

	updates chan tdlib.Envelope

	mu     sync.Mutex
	next   int32
	calls  []Call
	errs   map[string]error
	users  map[int32]tdlib.User
	closed map[int32]bool
}

// NewRuntime creates a runtime with room for buffered updates.
func NewRuntime() *Runtime {
	return &Runtime{
		updates: make(chan tdlib.Envelope, 256),
		errs:    make(map[string]error),
		users:   make(map[int32]tdlib.User),
		closed:  make(map[int32]bool),
	}
}

// FailOn makes every later call of method return err. A nil err clears the failure.
func (r *Runtime) FailOn(method string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.errs, method)
		return
	}
	r.errs[method] = err
}

// SetMe sets the profile GetMe returns for a client.
func (r *Runtime) SetMe(id int32, user tdlib.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[id] = user
}

// Emit delivers an update for a client.
func (r *Runtime) Emit(id int32, update tdlib.Update) {
	r.updates <- tdlib.Envelope{ClientID: id, Update: update}
}

// EmitState delivers an authorization state update for a client.
func (r *Runtime) EmitState(id int32, kind tdlib.AuthorizationStateKind) {
	r.Emit(id, tdlib.NewAuthorizationStateUpdate(tdlib.State(kind)))
}

// Updates implements the runtime contract.
func (r *Runtime) Updates() <-chan tdlib.Envelope {
	return r.updates
}

// Created returns the number of handles allocated so far.
func (r *Runtime) Created() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int(r.next)
}

// Calls returns the recorded calls of method, or all calls when method is empty.
func (r *Runtime) Calls(method string) []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Call
	for _, c := range r.calls {
		if method == "" || c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// CallsFor returns the recorded calls of method for one client.
func (r *Runtime) CallsFor(method string, id int32) []Call {
	var out []Call
	for _, c := range r.Calls(method) {
		if c.ClientID == id {
			out = append(out, c)
		}
	}
	return out
}

func (r *Runtime) record(id int32, method string, args ...any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{ClientID: id, Method: method, Args: args})
	if r.closed[id] {
		return &tdlib.Error{Code: 500, Message: "Request aborted"}
	}
	return r.errs[method]
}

// CreateClient allocates the next handle.
func (r *Runtime) CreateClient() int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	return r.next
}

func (r *Runtime) SetLogVerbosityLevel(_ context.Context, id int32, level int) error {
	return r.record(id, "setLogVerbosityLevel", level)
}

func (r *Runtime) SetTdlibParameters(_ context.Context, id int32, params tdlib.Parameters) error {
	return r.record(id, "setTdlibParameters", params)
}

func (r *Runtime) CheckDatabaseEncryptionKey(_ context.Context, id int32, key string) error {
	return r.record(id, "checkDatabaseEncryptionKey", key)
}

func (r *Runtime) GetMe(_ context.Context, id int32) (tdlib.User, error) {
	if err := r.record(id, "getMe"); err != nil {
		return tdlib.User{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		user = tdlib.User{ID: int64(id) * 1000, FirstName: fmt.Sprintf("user%d", id)}
	}
	return user, nil
}

func (r *Runtime) SetOption(_ context.Context, id int32, name string, value tdlib.OptionValue) error {
	return r.record(id, "setOption", name, value)
}

func (r *Runtime) LoadChats(_ context.Context, id int32, limit int) error {
	if err := r.record(id, "loadChats", limit); err != nil {
		return err
	}
	// Everything is loaded after the first page.
	if len(r.CallsFor("loadChats", id)) > 1 {
		return &tdlib.Error{Code: 404, Message: "Not Found"}
	}
	return nil
}

func (r *Runtime) LogOut(_ context.Context, id int32) error {
	if err := r.record(id, "logOut"); err != nil {
		return err
	}
	if r.AutoLogOut {
		r.EmitState(id, tdlib.AuthorizationStateLoggingOut)
		r.markClosed(id)
		r.EmitState(id, tdlib.AuthorizationStateClosed)
	}
	return nil
}

func (r *Runtime) Close(_ context.Context, id int32) error {
	if err := r.record(id, "close"); err != nil {
		return err
	}
	if r.AutoClose {
		r.markClosed(id)
		r.EmitState(id, tdlib.AuthorizationStateClosed)
	}
	return nil
}

func (r *Runtime) markClosed(id int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed[id] = true
}

func (r *Runtime) SetAuthenticationPhoneNumber(_ context.Context, id int32, phone string) error {
	return r.record(id, "setAuthenticationPhoneNumber", phone)
}

func (r *Runtime) CheckAuthenticationCode(_ context.Context, id int32, code string) error {
	return r.record(id, "checkAuthenticationCode", code)
}

func (r *Runtime) RegisterUser(_ context.Context, id int32, firstName, lastName string) error {
	return r.record(id, "registerUser", firstName, lastName)
}

func (r *Runtime) CheckAuthenticationPassword(_ context.Context, id int32, password string) error {
	return r.record(id, "checkAuthenticationPassword", password)
}

func (r *Runtime) RequestQrCodeAuthentication(_ context.Context, id int32, otherUserIDs []int64) error {
	return r.record(id, "requestQrCodeAuthentication", otherUserIDs)
}

func (r *Runtime) RequestAuthenticationPasswordRecovery(_ context.Context, id int32) error {
	return r.record(id, "requestAuthenticationPasswordRecovery")
}

func (r *Runtime) RecoverAuthenticationPassword(_ context.Context, id int32, code string) error {
	return r.record(id, "recoverAuthenticationPassword", code)
}

func (r *Runtime) DeleteAccount(_ context.Context, id int32, reason string) error {
	return r.record(id, "deleteAccount", reason)
}
