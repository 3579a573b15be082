package tdws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vovakirdan/tgsessions/internal/tdlib"
)

func (c *Client) SetLogVerbosityLevel(ctx context.Context, id int32, level int) error {
	return c.call(ctx, id, "setLogVerbosityLevel", map[string]any{"new_verbosity_level": level})
}

// SetTdlibParameters sends the parameters flattened into the request, as TDLib 1.8.6+ expects.
func (c *Client) SetTdlibParameters(ctx context.Context, id int32, params tdlib.Parameters) error {
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode parameters: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("encode parameters: %w", err)
	}
	return c.call(ctx, id, "setTdlibParameters", fields)
}

func (c *Client) CheckDatabaseEncryptionKey(ctx context.Context, id int32, key string) error {
	return c.call(ctx, id, "checkDatabaseEncryptionKey", map[string]any{"encryption_key": key})
}

func (c *Client) GetMe(ctx context.Context, id int32) (tdlib.User, error) {
	data, err := c.Send(ctx, id, "getMe", nil)
	if err != nil {
		return tdlib.User{}, err
	}
	return tdlib.DecodeUser(data)
}

func (c *Client) SetOption(ctx context.Context, id int32, name string, value tdlib.OptionValue) error {
	return c.call(ctx, id, "setOption", map[string]any{"name": name, "value": value})
}

// LoadChats asks for the next page of the main chat list. A 404 error means every chat is
// already known.
func (c *Client) LoadChats(ctx context.Context, id int32, limit int) error {
	return c.call(ctx, id, "loadChats", map[string]any{
		"chat_list": map[string]any{"@type": "chatListMain"},
		"limit":     limit,
	})
}

func (c *Client) LogOut(ctx context.Context, id int32) error {
	return c.call(ctx, id, "logOut", nil)
}

func (c *Client) Close(ctx context.Context, id int32) error {
	return c.call(ctx, id, "close", nil)
}

func (c *Client) SetAuthenticationPhoneNumber(ctx context.Context, id int32, phone string) error {
	return c.call(ctx, id, "setAuthenticationPhoneNumber", map[string]any{"phone_number": phone})
}

func (c *Client) CheckAuthenticationCode(ctx context.Context, id int32, code string) error {
	return c.call(ctx, id, "checkAuthenticationCode", map[string]any{"code": code})
}

func (c *Client) RegisterUser(ctx context.Context, id int32, firstName, lastName string) error {
	return c.call(ctx, id, "registerUser", map[string]any{"first_name": firstName, "last_name": lastName})
}

func (c *Client) CheckAuthenticationPassword(ctx context.Context, id int32, password string) error {
	return c.call(ctx, id, "checkAuthenticationPassword", map[string]any{"password": password})
}

func (c *Client) RequestQrCodeAuthentication(ctx context.Context, id int32, otherUserIDs []int64) error {
	if otherUserIDs == nil {
		otherUserIDs = []int64{}
	}
	return c.call(ctx, id, "requestQrCodeAuthentication", map[string]any{"other_user_ids": otherUserIDs})
}

func (c *Client) RequestAuthenticationPasswordRecovery(ctx context.Context, id int32) error {
	return c.call(ctx, id, "requestAuthenticationPasswordRecovery", nil)
}

func (c *Client) RecoverAuthenticationPassword(ctx context.Context, id int32, code string) error {
	return c.call(ctx, id, "recoverAuthenticationPassword", map[string]any{"recovery_code": code})
}

func (c *Client) DeleteAccount(ctx context.Context, id int32, reason string) error {
	return c.call(ctx, id, "deleteAccount", map[string]any{"reason": reason})
}
