package tdlib

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// User is the subset of a TDLib user this module keeps.
type User struct {
	ID          int64  `json:"id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Username    string `json:"username,omitempty"`
	PhoneNumber string `json:"phone_number"`
}

// Chat is the subset of a TDLib chat this module keeps.
type Chat struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	// Type is the TDLib type of the chat kind, e.g. chatTypePrivate.
	Type string `json:"type"`
}

// OptionValueKind enumerates TDLib option value variants.
type OptionValueKind int

const (
	OptionValueEmpty OptionValueKind = iota
	OptionValueBoolean
	OptionValueInteger
	OptionValueString
)

// OptionValue is the value of a client option.
type OptionValue struct {
	Kind    OptionValueKind
	Boolean bool
	Integer int64
	String  string
}

// BoolOption builds a boolean option value.
func BoolOption(v bool) OptionValue {
	return OptionValue{Kind: OptionValueBoolean, Boolean: v}
}

// IntOption builds an integer option value.
func IntOption(v int64) OptionValue {
	return OptionValue{Kind: OptionValueInteger, Integer: v}
}

type optionValueJSON struct {
	Type  string          `json:"@type"`
	Value json.RawMessage `json:"value,omitempty"`
}

// MarshalJSON encodes the value in TDLib JSON. Integers are sent as strings, as TDLib
// expects for int64 fields.
func (v OptionValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case OptionValueBoolean:
		return json.Marshal(map[string]any{"@type": "optionValueBoolean", "value": v.Boolean})
	case OptionValueInteger:
		return json.Marshal(map[string]any{"@type": "optionValueInteger", "value": strconv.FormatInt(v.Integer, 10)})
	case OptionValueString:
		return json.Marshal(map[string]any{"@type": "optionValueString", "value": v.String})
	default:
		return json.Marshal(map[string]any{"@type": "optionValueEmpty"})
	}
}

// UnmarshalJSON decodes a TDLib option value. Integers are accepted as strings or numbers.
func (v *OptionValue) UnmarshalJSON(data []byte) error {
	var raw optionValueJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch raw.Type {
	case "optionValueBoolean":
		*v = OptionValue{Kind: OptionValueBoolean}
		return json.Unmarshal(raw.Value, &v.Boolean)
	case "optionValueInteger":
		*v = OptionValue{Kind: OptionValueInteger}
		var s string
		if err := json.Unmarshal(raw.Value, &s); err == nil {
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return fmt.Errorf("parse integer option: %w", err)
			}
			v.Integer = n
			return nil
		}
		return json.Unmarshal(raw.Value, &v.Integer)
	case "optionValueString":
		*v = OptionValue{Kind: OptionValueString}
		return json.Unmarshal(raw.Value, &v.String)
	case "optionValueEmpty", "":
		*v = OptionValue{Kind: OptionValueEmpty}
		return nil
	default:
		return fmt.Errorf("unknown option value type %q", raw.Type)
	}
}

// Parameters configure a client database. They are sent on WaitTdlibParameters.
type Parameters struct {
	UseTestDC              bool   `json:"use_test_dc"`
	DatabaseDirectory      string `json:"database_directory"`
	UseMessageDatabase     bool   `json:"use_message_database"`
	UseSecretChats         bool   `json:"use_secret_chats"`
	APIID                  int32  `json:"api_id"`
	APIHash                string `json:"api_hash"`
	SystemLanguageCode     string `json:"system_language_code"`
	DeviceModel            string `json:"device_model"`
	ApplicationVersion     string `json:"application_version"`
	EnableStorageOptimizer bool   `json:"enable_storage_optimizer"`
}

// ParametersTemplate holds the process-wide part of Parameters.
type ParametersTemplate struct {
	APIID              int32
	APIHash            string
	SystemLanguageCode string
	DeviceModel        string
	ApplicationVersion string
}

// For returns parameters for the database stored in dir.
func (t ParametersTemplate) For(dir string, useTestDC bool) Parameters {
	return Parameters{
		UseTestDC:              useTestDC,
		DatabaseDirectory:      dir,
		UseMessageDatabase:     true,
		UseSecretChats:         true,
		APIID:                  t.APIID,
		APIHash:                t.APIHash,
		SystemLanguageCode:     t.SystemLanguageCode,
		DeviceModel:            t.DeviceModel,
		ApplicationVersion:     t.ApplicationVersion,
		EnableStorageOptimizer: true,
	}
}

// Error is an error object returned by TDLib for a request.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("tdlib error %d: %s", e.Code, e.Message)
}
