package tdlib

// AuthorizationStateKind enumerates the authorization states a client passes through.
type AuthorizationStateKind int

const (
	// AuthorizationStateUnknown is a state this module does not model. Type is set.
	AuthorizationStateUnknown AuthorizationStateKind = iota
	AuthorizationStateWaitTdlibParameters
	AuthorizationStateWaitEncryptionKey
	AuthorizationStateWaitPhoneNumber
	AuthorizationStateWaitCode
	AuthorizationStateWaitOtherDeviceConfirmation
	AuthorizationStateWaitRegistration
	AuthorizationStateWaitPassword
	AuthorizationStateReady
	AuthorizationStateLoggingOut
	AuthorizationStateClosing
	AuthorizationStateClosed
)

var authorizationStateTypes = map[AuthorizationStateKind]string{
	AuthorizationStateWaitTdlibParameters:         "authorizationStateWaitTdlibParameters",
	AuthorizationStateWaitEncryptionKey:           "authorizationStateWaitEncryptionKey",
	AuthorizationStateWaitPhoneNumber:             "authorizationStateWaitPhoneNumber",
	AuthorizationStateWaitCode:                    "authorizationStateWaitCode",
	AuthorizationStateWaitOtherDeviceConfirmation: "authorizationStateWaitOtherDeviceConfirmation",
	AuthorizationStateWaitRegistration:            "authorizationStateWaitRegistration",
	AuthorizationStateWaitPassword:                "authorizationStateWaitPassword",
	AuthorizationStateReady:                       "authorizationStateReady",
	AuthorizationStateLoggingOut:                  "authorizationStateLoggingOut",
	AuthorizationStateClosing:                     "authorizationStateClosing",
	AuthorizationStateClosed:                      "authorizationStateClosed",
}

// String returns the TDLib type name of the kind.
func (k AuthorizationStateKind) String() string {
	if name, ok := authorizationStateTypes[k]; ok {
		return name
	}
	return "authorizationStateUnknown"
}

// AuthorizationState is the current authorization step of a client.
type AuthorizationState struct {
	Kind AuthorizationStateKind
	// Type is the TDLib @type, kept for unknown states.
	Type string

	// WaitEncryptionKey
	IsEncrypted bool
	// WaitCode
	CodeInfo *CodeInfo
	// WaitOtherDeviceConfirmation
	Link string
	// WaitRegistration
	TermsOfService *TermsOfService
	// WaitPassword
	PasswordHint                string
	HasRecoveryEmailAddress     bool
	RecoveryEmailAddressPattern string
}

// CodeInfo describes where an authentication code was sent.
type CodeInfo struct {
	PhoneNumber string
	// CodeType is the TDLib type of the delivery method, e.g. authenticationCodeTypeSms.
	CodeType string
	Timeout  int
}

// TermsOfService must be accepted before a new account is registered.
type TermsOfService struct {
	Text       string
	MinUserAge int
	ShowPopup  bool
}

// State builds a payload-less state of the given kind.
func State(kind AuthorizationStateKind) AuthorizationState {
	return AuthorizationState{Kind: kind, Type: kind.String()}
}
