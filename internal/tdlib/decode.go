package tdlib

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Header is the routing part of every TDLib JSON object.
type Header struct {
	Type     string `json:"@type"`
	Extra    string `json:"@extra,omitempty"`
	ClientID int32  `json:"@client_id,omitempty"`
}

// IsUpdate reports whether the object is an update rather than a response.
func (h Header) IsUpdate() bool {
	return strings.HasPrefix(h.Type, "update")
}

type typed struct {
	Type string `json:"@type"`
}

type formattedText struct {
	Text string `json:"text"`
}

type authorizationStateJSON struct {
	Type        string `json:"@type"`
	IsEncrypted bool   `json:"is_encrypted"`
	CodeInfo    *struct {
		PhoneNumber string `json:"phone_number"`
		Type        typed  `json:"type"`
		Timeout     int    `json:"timeout"`
	} `json:"code_info"`
	Link           string `json:"link"`
	TermsOfService *struct {
		Text       formattedText `json:"text"`
		MinUserAge int           `json:"min_user_age"`
		ShowPopup  bool          `json:"show_popup"`
	} `json:"terms_of_service"`
	PasswordHint                string `json:"password_hint"`
	HasRecoveryEmailAddress     bool   `json:"has_recovery_email_address"`
	RecoveryEmailAddressPattern string `json:"recovery_email_address_pattern"`
}

var authorizationStateKinds = func() map[string]AuthorizationStateKind {
	kinds := make(map[string]AuthorizationStateKind, len(authorizationStateTypes))
	for kind, name := range authorizationStateTypes {
		kinds[name] = kind
	}
	return kinds
}()

// DecodeAuthorizationState decodes a TDLib authorizationState object.
func DecodeAuthorizationState(data []byte) (AuthorizationState, error) {
	var raw authorizationStateJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return AuthorizationState{}, fmt.Errorf("decode authorization state: %w", err)
	}

	state := AuthorizationState{
		Kind: authorizationStateKinds[raw.Type],
		Type: raw.Type,
	}

	switch state.Kind {
	case AuthorizationStateWaitEncryptionKey:
		state.IsEncrypted = raw.IsEncrypted
	case AuthorizationStateWaitCode:
		if raw.CodeInfo != nil {
			state.CodeInfo = &CodeInfo{
				PhoneNumber: raw.CodeInfo.PhoneNumber,
				CodeType:    raw.CodeInfo.Type.Type,
				Timeout:     raw.CodeInfo.Timeout,
			}
		}
	case AuthorizationStateWaitOtherDeviceConfirmation:
		state.Link = raw.Link
	case AuthorizationStateWaitRegistration:
		if raw.TermsOfService != nil {
			state.TermsOfService = &TermsOfService{
				Text:       raw.TermsOfService.Text.Text,
				MinUserAge: raw.TermsOfService.MinUserAge,
				ShowPopup:  raw.TermsOfService.ShowPopup,
			}
		}
	case AuthorizationStateWaitPassword:
		state.PasswordHint = raw.PasswordHint
		state.HasRecoveryEmailAddress = raw.HasRecoveryEmailAddress
		state.RecoveryEmailAddressPattern = raw.RecoveryEmailAddressPattern
	}

	return state, nil
}

type chatJSON struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	Type  typed  `json:"type"`
}

type userJSON struct {
	ID          int64  `json:"id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Username    string `json:"username"`
	PhoneNumber string `json:"phone_number"`
	Usernames   *struct {
		ActiveUsernames []string `json:"active_usernames"`
	} `json:"usernames"`
}

// DecodeUser decodes a TDLib user object. Both the legacy username field and the newer
// usernames object are understood.
func DecodeUser(data []byte) (User, error) {
	var raw userJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return User{}, fmt.Errorf("decode user: %w", err)
	}
	user := User{
		ID:          raw.ID,
		FirstName:   raw.FirstName,
		LastName:    raw.LastName,
		Username:    raw.Username,
		PhoneNumber: raw.PhoneNumber,
	}
	if user.Username == "" && raw.Usernames != nil && len(raw.Usernames.ActiveUsernames) > 0 {
		user.Username = raw.Usernames.ActiveUsernames[0]
	}
	return user, nil
}

// DecodeUpdate decodes a TDLib update object. Unmodelled updates come back as UpdateOther.
func DecodeUpdate(data []byte) (Update, error) {
	var head typed
	if err := json.Unmarshal(data, &head); err != nil {
		return Update{}, fmt.Errorf("decode update header: %w", err)
	}

	update := Update{Type: head.Type}

	switch head.Type {
	case "updateAuthorizationState":
		var raw struct {
			State json.RawMessage `json:"authorization_state"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return Update{}, fmt.Errorf("decode %s: %w", head.Type, err)
		}
		state, err := DecodeAuthorizationState(raw.State)
		if err != nil {
			return Update{}, err
		}
		update.Kind = UpdateAuthorizationState
		update.AuthorizationState = &state
	case "updateUser":
		var raw struct {
			User json.RawMessage `json:"user"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return Update{}, fmt.Errorf("decode %s: %w", head.Type, err)
		}
		user, err := DecodeUser(raw.User)
		if err != nil {
			return Update{}, err
		}
		update.Kind = UpdateUser
		update.User = &user
	case "updateUserStatus":
		var raw struct {
			UserID int64 `json:"user_id"`
			Status typed `json:"status"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return Update{}, fmt.Errorf("decode %s: %w", head.Type, err)
		}
		update.Kind = UpdateUserStatus
		update.UserID = raw.UserID
		update.Online = raw.Status.Type == "userStatusOnline"
	case "updateNewChat":
		var raw struct {
			Chat chatJSON `json:"chat"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return Update{}, fmt.Errorf("decode %s: %w", head.Type, err)
		}
		update.Kind = UpdateNewChat
		update.Chat = &Chat{ID: raw.Chat.ID, Title: raw.Chat.Title, Type: raw.Chat.Type.Type}
	case "updateChatTitle":
		var raw struct {
			ChatID int64  `json:"chat_id"`
			Title  string `json:"title"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return Update{}, fmt.Errorf("decode %s: %w", head.Type, err)
		}
		update.Kind = UpdateChatTitle
		update.Chat = &Chat{ID: raw.ChatID, Title: raw.Title}
	case "updateOption":
		var raw struct {
			Name  string      `json:"name"`
			Value OptionValue `json:"value"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return Update{}, fmt.Errorf("decode %s: %w", head.Type, err)
		}
		update.Kind = UpdateOption
		update.OptionName = raw.Name
		update.OptionValue = raw.Value
	default:
		update.Kind = UpdateOther
		update.Raw = append(json.RawMessage(nil), data...)
	}

	return update, nil
}
