package login

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/vovakirdan/tgsessions/internal/core"
	"github.com/vovakirdan/tgsessions/internal/datadir"
	"github.com/vovakirdan/tgsessions/internal/tdlib"
	"github.com/vovakirdan/tgsessions/internal/tdlib/tdlibtest"
)

type question struct {
	Prompt
	reply chan string
}

// scriptPrompter hands every question to the test, which answers it explicitly.
type scriptPrompter struct {
	questions chan question

	mu      sync.Mutex
	notices []string
}

func newScriptPrompter() *scriptPrompter {
	return &scriptPrompter{questions: make(chan question, 16)}
}

func (p *scriptPrompter) Ask(ctx context.Context, pr Prompt) (string, error) {
	q := question{Prompt: pr, reply: make(chan string, 1)}
	p.questions <- q
	select {
	case answer := <-q.reply:
		return answer, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (p *scriptPrompter) Notify(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notices = append(p.notices, message)
}

func (p *scriptPrompter) notified(substr string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, n := range p.notices {
		if strings.Contains(n, substr) {
			return true
		}
	}
	return false
}

// fakeManager runs posted functions on its own loop, like the session manager.
type fakeManager struct {
	tasks chan func()

	hasSessions bool
	indexes     map[string]int
	users       []tdlib.User
	switched    []int
	added       []bool
	loggedIn    []int32
}

func newFakeManager(t *testing.T) *fakeManager {
	m := &fakeManager{tasks: make(chan func(), 64), indexes: make(map[string]int)}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		for {
			select {
			case fn := <-m.tasks:
				fn()
			case <-ctx.Done():
				return
			}
		}
	}()
	return m
}

func (m *fakeManager) Post(fn func()) bool {
	m.tasks <- fn
	return true
}

// do runs fn on the loop and waits for it.
func (m *fakeManager) do(fn func()) {
	done := make(chan struct{})
	m.Post(func() {
		fn()
		close(done)
	})
	<-done
}

func (m *fakeManager) HasSessions() bool { return m.hasSessions }

func (m *fakeManager) SessionIndexFor(useTestDC bool, digits string) (int, bool) {
	idx, ok := m.indexes[digits]
	return idx, ok
}

func (m *fakeManager) SwitchToSessions(index int) error {
	m.switched = append(m.switched, index)
	return nil
}

func (m *fakeManager) AddNewSession(useTestDC bool) int32 {
	m.added = append(m.added, useTestDC)
	return 99
}

func (m *fakeManager) AddLoggedInSession(id int32, _ datadir.DatabaseInfo, visible bool) {
	if visible {
		m.loggedIn = append(m.loggedIn, id)
	}
}

func (m *fakeManager) LoggedInUsers() []tdlib.User { return m.users }

type flowHarness struct {
	t  *testing.T
	rt *tdlibtest.Runtime
	p  *scriptPrompter
	m  *fakeManager
	f  *Flow
}

const clientID int32 = 1

func newFlowHarness(t *testing.T, configure func(*fakeManager)) *flowHarness {
	t.Helper()

	logger := zerolog.New(nil)
	h := &flowHarness{
		t:  t,
		rt: tdlibtest.NewRuntime(),
		p:  newScriptPrompter(),
		m:  newFakeManager(t),
	}
	if configure != nil {
		configure(h.m)
	}
	h.f = New(h.rt, h.p, tdlib.ParametersTemplate{APIID: 1, APIHash: "hash"}, t.TempDir(), &logger)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h.f.Attach(ctx, h.m)
	h.m.do(func() { h.f.LoginClient(clientID, datadir.DatabaseInfo{DirectoryBaseName: "db1", UseTestDC: false}) })
	return h
}

func (h *flowHarness) state(s tdlib.AuthorizationState) {
	h.m.do(func() { h.f.SetAuthorizationState(clientID, s) })
}

func (h *flowHarness) expect(label string) question {
	h.t.Helper()
	select {
	case q := <-h.p.questions:
		require.Truef(h.t, strings.HasPrefix(q.Label, label), "got prompt %q, want %q", q.Label, label)
		return q
	case <-time.After(2 * time.Second):
		h.t.Fatalf("no prompt %q", label)
		return question{}
	}
}

func (h *flowHarness) answer(label, answer string) {
	h.t.Helper()
	h.expect(label).reply <- answer
}

func (h *flowHarness) waitCall(method string) tdlibtest.Call {
	h.t.Helper()
	var calls []tdlibtest.Call
	require.Eventually(h.t, func() bool {
		calls = h.rt.CallsFor(method, clientID)
		return len(calls) > 0
	}, 2*time.Second, 5*time.Millisecond, "no %s call", method)
	return calls[len(calls)-1]
}

// onLoop reads manager state on its loop.
func (h *flowHarness) onLoop(fn func(m *fakeManager) bool) bool {
	var ok bool
	h.m.do(func() { ok = fn(h.m) })
	return ok
}

func TestParametersAreSentForDatabase(t *testing.T) {
	h := newFlowHarness(t, nil)

	h.state(tdlib.State(tdlib.AuthorizationStateWaitTdlibParameters))
	call := h.waitCall("setTdlibParameters")
	params := call.Args[0].(tdlib.Parameters)
	require.True(t, strings.HasSuffix(params.DatabaseDirectory, "db1"))
	require.Equal(t, int32(1), params.APIID)
	require.False(t, params.UseTestDC)

	h.state(tdlib.State(tdlib.AuthorizationStateWaitEncryptionKey))
	require.Equal(t, "", h.waitCall("checkDatabaseEncryptionKey").Args[0])
}

func TestPhoneCodeAndReady(t *testing.T) {
	h := newFlowHarness(t, nil)

	h.state(tdlib.State(tdlib.AuthorizationStateWaitPhoneNumber))
	h.answer("Phone number", "+1 555 0100")
	require.Equal(t, "+1 555 0100", h.waitCall("setAuthenticationPhoneNumber").Args[0])

	h.state(tdlib.AuthorizationState{
		Kind:     tdlib.AuthorizationStateWaitCode,
		CodeInfo: &tdlib.CodeInfo{PhoneNumber: "+15550100", CodeType: "authenticationCodeTypeSms"},
	})
	q := h.expect("Code")
	require.Contains(t, q.Hint, "SMS")
	q.reply <- "12345"
	require.Equal(t, "12345", h.waitCall("checkAuthenticationCode").Args[0])

	h.state(tdlib.State(tdlib.AuthorizationStateReady))
	require.True(t, h.onLoop(func(m *fakeManager) bool { return len(m.loggedIn) == 1 && m.loggedIn[0] == clientID }))
}

func TestRejectedPhoneNumberIsAskedAgain(t *testing.T) {
	h := newFlowHarness(t, nil)
	h.rt.FailOn("setAuthenticationPhoneNumber", &tdlib.Error{Code: 400, Message: "PHONE_NUMBER_INVALID"})

	h.state(tdlib.State(tdlib.AuthorizationStateWaitPhoneNumber))
	h.answer("Phone number", "123")
	h.expect("Phone number")
	require.True(t, h.p.notified("PHONE_NUMBER_INVALID"))
}

func TestEmptyPhoneNumberGoesBackToSessions(t *testing.T) {
	h := newFlowHarness(t, func(m *fakeManager) { m.hasSessions = true })

	h.state(tdlib.State(tdlib.AuthorizationStateWaitPhoneNumber))
	q := h.expect("Phone number")
	require.Contains(t, q.Hint, "go back")
	q.reply <- ""

	h.waitCall("logOut")
	require.Eventually(t, func() bool {
		return h.onLoop(func(m *fakeManager) bool { return len(m.switched) == 1 && m.switched[0] == core.NoSession })
	}, 2*time.Second, 5*time.Millisecond)
}

func TestEmptyPhoneNumberWithoutSessionsAsksAgain(t *testing.T) {
	h := newFlowHarness(t, nil)

	h.state(tdlib.State(tdlib.AuthorizationStateWaitPhoneNumber))
	h.answer("Phone number", "")
	h.expect("Phone number")
	require.Empty(t, h.rt.Calls("logOut"))
}

func TestAlreadyLoggedInAccountSwitchesToIt(t *testing.T) {
	h := newFlowHarness(t, func(m *fakeManager) {
		m.hasSessions = true
		m.indexes["15550100"] = 2
	})

	h.state(tdlib.State(tdlib.AuthorizationStateWaitPhoneNumber))
	h.answer("Phone number", "+1 (555) 0100")

	h.waitCall("logOut")
	require.Empty(t, h.rt.Calls("setAuthenticationPhoneNumber"))
	require.True(t, h.p.notified("already logged in"))
	require.True(t, h.onLoop(func(m *fakeManager) bool { return len(m.switched) == 1 && m.switched[0] == 2 }))
}

func TestQRCodeLoginAndCancel(t *testing.T) {
	h := newFlowHarness(t, func(m *fakeManager) {
		m.hasSessions = true
		m.users = []tdlib.User{{ID: 7}, {ID: 8}}
	})

	h.state(tdlib.State(tdlib.AuthorizationStateWaitPhoneNumber))
	h.answer("Phone number", "QR")
	require.Equal(t, []int64{7, 8}, h.waitCall("requestQrCodeAuthentication").Args[0])

	h.state(tdlib.AuthorizationState{Kind: tdlib.AuthorizationStateWaitOtherDeviceConfirmation, Link: "tg://login?token=abc"})
	require.True(t, h.p.notified("tg://login?token=abc"))
	h.answer("Waiting for confirmation", "")

	h.waitCall("logOut")
	require.True(t, h.onLoop(func(m *fakeManager) bool { return len(m.added) == 1 && !m.added[0] }))
}

func TestNewLinkReplacesPendingConfirmation(t *testing.T) {
	h := newFlowHarness(t, nil)

	h.state(tdlib.AuthorizationState{Kind: tdlib.AuthorizationStateWaitOtherDeviceConfirmation, Link: "tg://one"})
	stale := h.expect("Waiting for confirmation")
	h.state(tdlib.AuthorizationState{Kind: tdlib.AuthorizationStateWaitOtherDeviceConfirmation, Link: "tg://two"})
	h.expect("Waiting for confirmation")

	// The first prompt was cancelled; a late answer to it is not delivered.
	stale.reply <- ""
	h.m.do(func() {})
	require.Empty(t, h.rt.Calls("logOut"))
	require.True(t, h.p.notified("tg://two"))
}

func TestEmptyCodeReturnsToPhoneNumber(t *testing.T) {
	h := newFlowHarness(t, nil)

	h.state(tdlib.State(tdlib.AuthorizationStateWaitCode))
	h.answer("Code", "")
	h.expect("Phone number")
}

func TestRegistrationRequiresAcceptedTerms(t *testing.T) {
	h := newFlowHarness(t, nil)
	tos := &tdlib.TermsOfService{Text: "Be nice.", ShowPopup: true}

	h.state(tdlib.AuthorizationState{Kind: tdlib.AuthorizationStateWaitRegistration, TermsOfService: tos})
	require.True(t, h.p.notified("Be nice."))
	h.answer("Accept the terms of service?", "n")
	h.expect("Phone number")
	require.Empty(t, h.rt.Calls("registerUser"))

	h.state(tdlib.AuthorizationState{Kind: tdlib.AuthorizationStateWaitRegistration, TermsOfService: tos})
	h.answer("Accept the terms of service?", "y")
	h.answer("First name", "Ada")
	h.answer("Last name", "Lovelace")
	call := h.waitCall("registerUser")
	require.Equal(t, []any{"Ada", "Lovelace"}, call.Args)
}

func TestPasswordIsChecked(t *testing.T) {
	h := newFlowHarness(t, nil)

	h.state(tdlib.AuthorizationState{Kind: tdlib.AuthorizationStateWaitPassword, PasswordHint: "pet"})
	q := h.expect("Password")
	require.True(t, q.Secret)
	require.Contains(t, q.Hint, "pet")
	q.reply <- "rex"
	require.Equal(t, "rex", h.waitCall("checkAuthenticationPassword").Args[0])
}

func TestPasswordRecovery(t *testing.T) {
	h := newFlowHarness(t, nil)
	waitPassword := tdlib.AuthorizationState{
		Kind:                        tdlib.AuthorizationStateWaitPassword,
		HasRecoveryEmailAddress:     true,
		RecoveryEmailAddressPattern: "a***@example.com",
	}

	h.state(waitPassword)
	h.answer("Password", "")
	h.answer("Forgot password", "r")
	h.waitCall("requestAuthenticationPasswordRecovery")

	q := h.expect("Recovery code")
	require.Contains(t, q.Hint, "a***@example.com")
	// The repeated state caused by the recovery request does not restart the step.
	h.state(waitPassword)
	h.rt.FailOn("recoverAuthenticationPassword", &tdlib.Error{Code: 400, Message: passwordRecoveryExpired})
	q.reply <- "000000"

	h.expect("Password")
	require.True(t, h.p.notified(passwordRecoveryExpired))

	// An expired code is requested again.
	h.rt.FailOn("recoverAuthenticationPassword", nil)
	h.answer("Password", "")
	h.answer("Forgot password", "r")
	require.Eventually(t, func() bool {
		return len(h.rt.Calls("requestAuthenticationPasswordRecovery")) == 2
	}, 2*time.Second, 5*time.Millisecond)
	h.answer("Recovery code", "111111")
	require.Equal(t, "111111", h.waitCall("recoverAuthenticationPassword").Args[0])
}

func TestLostPasswordDeletesAccountAfterConfirmation(t *testing.T) {
	h := newFlowHarness(t, nil)

	h.state(tdlib.State(tdlib.AuthorizationStateWaitPassword))
	h.answer("Password", "")
	h.answer("Forgot password", "d")
	h.answer("Delete the account?", "no")
	h.expect("Password").reply <- ""
	h.answer("Forgot password", "d")
	h.answer("Delete the account?", "yes")

	call := h.waitCall("deleteAccount")
	require.Equal(t, "cloud password lost and not recoverable", call.Args[0])
}

func TestStatesOfOtherClientsAreIgnored(t *testing.T) {
	h := newFlowHarness(t, nil)

	h.m.do(func() { h.f.SetAuthorizationState(clientID+1, tdlib.State(tdlib.AuthorizationStateWaitPhoneNumber)) })
	h.state(tdlib.State(tdlib.AuthorizationStateWaitCode))
	h.expect("Code")
}
