package tdlib

import "encoding/json"

// UpdateKind tells which payload of an Update is set.
type UpdateKind int

const (
	// UpdateOther is any update this module does not model. Type and Raw are set.
	UpdateOther UpdateKind = iota
	// UpdateAuthorizationState carries a new authorization state of a client.
	UpdateAuthorizationState
	// UpdateUser carries fresh information about a user.
	UpdateUser
	// UpdateUserStatus reports a change of a user's online status.
	UpdateUserStatus
	// UpdateNewChat announces a chat the client now knows about.
	UpdateNewChat
	// UpdateChatTitle reports a changed chat title.
	UpdateChatTitle
	// UpdateOption reports the value of a client option.
	UpdateOption
)

func (k UpdateKind) String() string {
	switch k {
	case UpdateAuthorizationState:
		return "authorization_state"
	case UpdateUser:
		return "user"
	case UpdateUserStatus:
		return "user_status"
	case UpdateNewChat:
		return "new_chat"
	case UpdateChatTitle:
		return "chat_title"
	case UpdateOption:
		return "option"
	default:
		return "other"
	}
}

// Update is an inbound event of one client. Exactly the fields belonging to Kind are set.
type Update struct {
	Kind UpdateKind

	AuthorizationState *AuthorizationState
	User               *User
	UserID             int64 // UpdateUserStatus
	Online             bool  // UpdateUserStatus
	Chat               *Chat // UpdateNewChat, UpdateChatTitle (ID and Title only)
	OptionName         string
	OptionValue        OptionValue

	// Type is the TDLib @type of the update, set for every kind.
	Type string
	// Raw keeps the undecoded object for UpdateOther.
	Raw json.RawMessage
}

// Envelope tags an update with the client handle it belongs to.
type Envelope struct {
	ClientID int32
	Update   Update
}

// NewAuthorizationStateUpdate wraps a state into an Update.
func NewAuthorizationStateUpdate(state AuthorizationState) Update {
	return Update{
		Kind:               UpdateAuthorizationState,
		AuthorizationState: &state,
		Type:               "updateAuthorizationState",
	}
}
