// Package login walks one client at a time through interactive authorization.
package login

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/tgsessions/internal/core"
	"github.com/vovakirdan/tgsessions/internal/datadir"
	"github.com/vovakirdan/tgsessions/internal/tdlib"
)

const passwordRecoveryExpired = "PASSWORD_RECOVERY_EXPIRED"

// Runtime is the part of the protocol runtime the login flow needs.
type Runtime interface {
	SetTdlibParameters(ctx context.Context, id int32, params tdlib.Parameters) error
	CheckDatabaseEncryptionKey(ctx context.Context, id int32, key string) error
	SetAuthenticationPhoneNumber(ctx context.Context, id int32, phone string) error
	CheckAuthenticationCode(ctx context.Context, id int32, code string) error
	RegisterUser(ctx context.Context, id int32, firstName, lastName string) error
	CheckAuthenticationPassword(ctx context.Context, id int32, password string) error
	RequestQrCodeAuthentication(ctx context.Context, id int32, otherUserIDs []int64) error
	RequestAuthenticationPasswordRecovery(ctx context.Context, id int32) error
	RecoverAuthenticationPassword(ctx context.Context, id int32, code string) error
	DeleteAccount(ctx context.Context, id int32, reason string) error
	LogOut(ctx context.Context, id int32) error
}

// Manager is the session manager the flow reports to. Apart from Post, its methods are
// only called on the manager's loop.
type Manager interface {
	Post(fn func()) bool
	HasSessions() bool
	SessionIndexFor(useTestDC bool, phoneNumberDigits string) (int, bool)
	SwitchToSessions(index int) error
	AddNewSession(useTestDC bool) int32
	AddLoggedInSession(id int32, info datadir.DatabaseInfo, visible bool)
	LoggedInUsers() []tdlib.User
}

// Flow implements the manager's login collaborator on top of a Prompter. Its state is
// confined to the manager's loop; prompts and requests run on their own goroutines and
// report back through Manager.Post.
type Flow struct {
	runtime  Runtime
	prompter Prompter
	params   tdlib.ParametersTemplate
	layout   datadir.Layout
	logger   *zerolog.Logger

	manager Manager
	base    context.Context

	clientID int32
	info     datadir.DatabaseInfo
	active   bool

	// generation changes with every authorization state; answers to older prompts are dropped.
	generation uint64
	stepCtx    context.Context
	cancel     context.CancelFunc

	recovering      bool
	recoveryExpired bool
	password        tdlib.AuthorizationState
}

// New creates a login flow. Attach connects it to the manager.
func New(runtime Runtime, prompter Prompter, params tdlib.ParametersTemplate, dataDir string, logger *zerolog.Logger) *Flow {
	return &Flow{
		runtime:  runtime,
		prompter: prompter,
		params:   params,
		layout:   datadir.Layout{Root: dataDir},
		logger:   logger,
		base:     context.Background(),
		stepCtx:  context.Background(),
	}
}

// Attach sets the manager and the context outstanding prompts and requests run under.
func (f *Flow) Attach(ctx context.Context, manager Manager) {
	f.base = ctx
	f.stepCtx = ctx
	f.manager = manager
}

// LoginClient starts the interactive flow for a client, abandoning any previous one.
func (f *Flow) LoginClient(id int32, info datadir.DatabaseInfo) {
	f.advance()
	f.clientID = id
	f.info = info
	f.active = true
	f.recovering = false
	f.logger.Debug().Int32("client_id", id).Str("database", info.DirectoryBaseName).Msg("login started")
}

// SetAuthorizationState runs the step belonging to state.
func (f *Flow) SetAuthorizationState(id int32, state tdlib.AuthorizationState) {
	if !f.active || id != f.clientID {
		f.logger.Debug().Int32("client_id", id).Stringer("state", state.Kind).Msg("state for inactive login ignored")
		return
	}
	// Requesting password recovery reports WaitPassword again.
	if state.Kind == tdlib.AuthorizationStateWaitPassword && f.recovering {
		return
	}

	f.advance()
	f.recovering = false

	switch state.Kind {
	case tdlib.AuthorizationStateWaitTdlibParameters:
		params := f.params.For(f.layout.DatabaseDir(f.info), f.info.UseTestDC)
		f.request("Sending parameters failed", func(ctx context.Context, id int32) error {
			return f.runtime.SetTdlibParameters(ctx, id, params)
		}, nil)
	case tdlib.AuthorizationStateWaitEncryptionKey:
		f.request("Opening the database failed", func(ctx context.Context, id int32) error {
			return f.runtime.CheckDatabaseEncryptionKey(ctx, id, "")
		}, nil)
	case tdlib.AuthorizationStateWaitPhoneNumber:
		f.askPhoneNumber()
	case tdlib.AuthorizationStateWaitCode:
		f.askCode(state.CodeInfo)
	case tdlib.AuthorizationStateWaitOtherDeviceConfirmation:
		f.showQRCode(state.Link)
	case tdlib.AuthorizationStateWaitRegistration:
		f.askRegistration(state.TermsOfService)
	case tdlib.AuthorizationStateWaitPassword:
		f.password = state
		f.recoveryExpired = true
		f.askPassword()
	case tdlib.AuthorizationStateReady:
		f.active = false
		f.manager.AddLoggedInSession(f.clientID, f.info, true)
	default:
		f.logger.Debug().Int32("client_id", id).Stringer("state", state.Kind).Msg("no login step")
	}
}

func (f *Flow) advance() {
	f.generation++
	if f.cancel != nil {
		f.cancel()
	}
	f.stepCtx, f.cancel = context.WithCancel(f.base)
}

// ask shows p on a worker goroutine and runs then with the answer on the loop, unless the
// flow moved on meanwhile.
func (f *Flow) ask(p Prompt, then func(answer string)) {
	gen, ctx := f.generation, f.stepCtx
	go func() {
		answer, err := f.prompter.Ask(ctx, p)
		f.manager.Post(func() {
			if gen != f.generation {
				return
			}
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					f.logger.Error().Err(err).Str("prompt", p.Label).Msg("reading answer failed")
				}
				return
			}
			then(strings.TrimSpace(answer))
		})
	}()
}

// request sends a login request. A failure is shown to the user and retry, if set, runs on
// the loop. Success needs no handling: the next authorization state follows.
func (f *Flow) request(failure string, work func(ctx context.Context, id int32) error, retry func(err error)) {
	gen, ctx, id := f.generation, f.stepCtx, f.clientID
	go func() {
		err := work(ctx, id)
		if err == nil {
			return
		}
		f.manager.Post(func() {
			if gen != f.generation {
				return
			}
			f.logger.Warn().Err(err).Int32("client_id", id).Msg(failure)
			f.prompter.Notify(fmt.Sprintf("%s: %s", failure, errorMessage(err)))
			if retry != nil {
				retry(err)
			}
		})
	}()
}

// abandon logs the pending client out; the manager removes it once it is closed.
func (f *Flow) abandon() {
	id := f.clientID
	f.active = false
	f.advance()
	go func() {
		if err := f.runtime.LogOut(f.base, id); err != nil {
			f.logger.Warn().Err(err).Int32("client_id", id).Msg("failed to log out abandoned client")
		}
	}()
}

func (f *Flow) askPhoneNumber() {
	hint := "international format, \"qr\" to scan a code from another device"
	if f.manager.HasSessions() {
		hint += ", empty to go back"
	}
	f.ask(Prompt{Label: "Phone number", Hint: hint}, func(answer string) {
		switch {
		case answer == "":
			if !f.manager.HasSessions() {
				f.askPhoneNumber()
				return
			}
			f.abandon()
			if err := f.manager.SwitchToSessions(core.NoSession); err != nil {
				f.logger.Warn().Err(err).Msg("switch to sessions")
			}
		case strings.EqualFold(answer, "qr"):
			f.requestQRCode()
		default:
			f.sendPhoneNumber(answer)
		}
	})
}

func (f *Flow) sendPhoneNumber(phone string) {
	if idx, ok := f.manager.SessionIndexFor(f.info.UseTestDC, core.PhoneDigits(phone)); ok {
		f.prompter.Notify("This account is already logged in.")
		f.abandon()
		if err := f.manager.SwitchToSessions(idx); err != nil {
			f.logger.Warn().Err(err).Msg("switch to sessions")
		}
		return
	}
	f.request("Sending the phone number failed", func(ctx context.Context, id int32) error {
		return f.runtime.SetAuthenticationPhoneNumber(ctx, id, phone)
	}, func(error) { f.askPhoneNumber() })
}

func (f *Flow) requestQRCode() {
	users := f.manager.LoggedInUsers()
	others := make([]int64, 0, len(users))
	for _, u := range users {
		others = append(others, u.ID)
	}
	f.request("Requesting a QR code failed", func(ctx context.Context, id int32) error {
		return f.runtime.RequestQrCodeAuthentication(ctx, id, others)
	}, func(error) { f.askPhoneNumber() })
}

func (f *Flow) showQRCode(link string) {
	f.prompter.Notify("Confirm the login on another device by opening this link: " + link)
	f.ask(Prompt{Label: "Waiting for confirmation", Hint: "press Enter to cancel"}, func(string) {
		// The client keeps sending new links until it is logged out.
		useTestDC := f.info.UseTestDC
		f.abandon()
		f.manager.AddNewSession(useTestDC)
	})
}

func (f *Flow) askCode(info *tdlib.CodeInfo) {
	hint := "empty to change the phone number"
	if info != nil {
		hint = fmt.Sprintf("sent to %s via %s, %s", info.PhoneNumber, codeTypeName(info.CodeType), hint)
	}
	f.ask(Prompt{Label: "Code", Hint: hint}, func(code string) {
		if code == "" {
			f.askPhoneNumber()
			return
		}
		f.request("Checking the code failed", func(ctx context.Context, id int32) error {
			return f.runtime.CheckAuthenticationCode(ctx, id, code)
		}, func(error) { f.askCode(info) })
	})
}

func (f *Flow) askRegistration(tos *tdlib.TermsOfService) {
	if tos != nil && tos.Text != "" {
		f.prompter.Notify("Terms of service:\n" + tos.Text)
	}

	register := func() {
		f.ask(Prompt{Label: "First name", Hint: "empty to change the phone number"}, func(first string) {
			if first == "" {
				f.askPhoneNumber()
				return
			}
			f.ask(Prompt{Label: "Last name", Hint: "optional"}, func(last string) {
				f.request("Registration failed", func(ctx context.Context, id int32) error {
					return f.runtime.RegisterUser(ctx, id, first, last)
				}, func(error) { f.askRegistration(nil) })
			})
		})
	}

	if tos == nil || !tos.ShowPopup {
		register()
		return
	}
	f.ask(Prompt{Label: "Accept the terms of service?", Hint: "y/N"}, func(answer string) {
		if !isYes(answer) {
			f.prompter.Notify("The terms of service must be accepted to register.")
			f.askPhoneNumber()
			return
		}
		register()
	})
}

func (f *Flow) askPassword() {
	f.recovering = false
	hint := "empty if you forgot it"
	if f.password.PasswordHint != "" {
		hint = "hint: " + f.password.PasswordHint + ", " + hint
	}
	f.ask(Prompt{Label: "Password", Hint: hint, Secret: true}, func(password string) {
		if password == "" {
			f.forgotPassword()
			return
		}
		f.request("Checking the password failed", func(ctx context.Context, id int32) error {
			return f.runtime.CheckAuthenticationPassword(ctx, id, password)
		}, func(error) { f.askPassword() })
	})
}

func (f *Flow) forgotPassword() {
	label := "Forgot password: [d]elete the account"
	if f.password.HasRecoveryEmailAddress {
		label = "Forgot password: [r]ecover by e-mail or [d]elete the account"
	}
	f.ask(Prompt{Label: label, Hint: "empty to go back"}, func(answer string) {
		switch strings.ToLower(answer) {
		case "r", "recover":
			if f.password.HasRecoveryEmailAddress {
				f.recoverPassword()
				return
			}
			f.forgotPassword()
		case "d", "delete":
			f.confirmDeleteAccount()
		case "":
			f.askPassword()
		default:
			f.forgotPassword()
		}
	})
}

func (f *Flow) recoverPassword() {
	f.recovering = true
	if !f.recoveryExpired {
		f.askRecoveryCode()
		return
	}

	gen, ctx, id := f.generation, f.stepCtx, f.clientID
	go func() {
		err := f.runtime.RequestAuthenticationPasswordRecovery(ctx, id)
		f.manager.Post(func() {
			if gen != f.generation {
				return
			}
			if err != nil {
				f.logger.Warn().Err(err).Int32("client_id", id).Msg("password recovery request failed")
				f.prompter.Notify("Requesting a recovery code failed: " + errorMessage(err))
				f.askPassword()
				return
			}
			f.recoveryExpired = false
			f.askRecoveryCode()
		})
	}()
}

func (f *Flow) askRecoveryCode() {
	hint := "empty to go back"
	if p := f.password.RecoveryEmailAddressPattern; p != "" {
		hint = "sent to " + p + ", " + hint
	}
	f.ask(Prompt{Label: "Recovery code", Hint: hint}, func(code string) {
		if code == "" {
			f.askPassword()
			return
		}
		f.request("Recovering the password failed", func(ctx context.Context, id int32) error {
			return f.runtime.RecoverAuthenticationPassword(ctx, id, code)
		}, func(err error) {
			var tdErr *tdlib.Error
			if errors.As(err, &tdErr) && tdErr.Message == passwordRecoveryExpired {
				f.recoveryExpired = true
				f.askPassword()
				return
			}
			f.askRecoveryCode()
		})
	})
}

func (f *Flow) confirmDeleteAccount() {
	f.prompter.Notify("Deleting the account loses all chats and messages, along with any media and files shared.")
	f.ask(Prompt{Label: "Delete the account?", Hint: "y/N"}, func(answer string) {
		if !isYes(answer) {
			f.askPassword()
			return
		}
		f.request("Deleting the account failed", func(ctx context.Context, id int32) error {
			return f.runtime.DeleteAccount(ctx, id, "cloud password lost and not recoverable")
		}, func(error) { f.askPassword() })
	})
}

func errorMessage(err error) string {
	var tdErr *tdlib.Error
	if errors.As(err, &tdErr) {
		return tdErr.Message
	}
	return err.Error()
}

func codeTypeName(t string) string {
	switch t {
	case "authenticationCodeTypeTelegramMessage":
		return "Telegram"
	case "authenticationCodeTypeSms":
		return "SMS"
	case "authenticationCodeTypeCall":
		return "phone call"
	case "authenticationCodeTypeFlashCall":
		return "flash call"
	case "authenticationCodeTypeFragment":
		return "Fragment"
	default:
		return strings.TrimPrefix(t, "authenticationCodeType")
	}
}

func isYes(answer string) bool {
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true
	}
	return false
}
