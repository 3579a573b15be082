package config

import (
	"os"
	"strings"
	"time"

	"golang.org/x/text/language"
)

// Config holds daemon configuration values.
type Config struct {
	DataDir         string `mapstructure:"data_dir" yaml:"data_dir"`
	SettingsPath    string `mapstructure:"settings_path" yaml:"settings_path"`
	TestDC          bool   `mapstructure:"test_dc" yaml:"test_dc"`
	LogLevel        string `mapstructure:"log_level" yaml:"log_level"`
	GatewayURL      string `mapstructure:"gateway_url" yaml:"gateway_url"`
	MaxMessageBytes int64  `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`

	APIID       int32  `mapstructure:"api_id" yaml:"api_id"`
	APIHash     string `mapstructure:"api_hash" yaml:"api_hash"`
	DeviceModel string `mapstructure:"device_model" yaml:"device_model"`
	AppVersion  string `mapstructure:"app_version" yaml:"app_version"`

	// ControlAddr enables the control API when set.
	ControlAddr       string        `mapstructure:"control_addr" yaml:"control_addr"`
	ControlSecret     string        `mapstructure:"control_secret" yaml:"control_secret"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	CloseTimeout      time.Duration `mapstructure:"close_timeout" yaml:"close_timeout"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		DataDir:           "tdata",
		SettingsPath:      "tgsessions.db",
		LogLevel:          "info",
		GatewayURL:        "ws://127.0.0.1:8090/td",
		MaxMessageBytes:   16 << 20,
		DeviceModel:       "Desktop",
		AppVersion:        "0.1.0",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		CloseTimeout:      10 * time.Second,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.DataDir != "" {
		c.DataDir = other.DataDir
	}
	if other.SettingsPath != "" {
		c.SettingsPath = other.SettingsPath
	}
	if other.TestDC {
		c.TestDC = true
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.GatewayURL != "" {
		c.GatewayURL = other.GatewayURL
	}
	if other.MaxMessageBytes != 0 {
		c.MaxMessageBytes = other.MaxMessageBytes
	}
	if other.APIID != 0 {
		c.APIID = other.APIID
	}
	if other.APIHash != "" {
		c.APIHash = other.APIHash
	}
	if other.DeviceModel != "" {
		c.DeviceModel = other.DeviceModel
	}
	if other.AppVersion != "" {
		c.AppVersion = other.AppVersion
	}
	if other.ControlAddr != "" {
		c.ControlAddr = other.ControlAddr
	}
	if other.ControlSecret != "" {
		c.ControlSecret = other.ControlSecret
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.CloseTimeout != 0 {
		c.CloseTimeout = other.CloseTimeout
	}
}

// SystemLanguageCode returns the base language of the user's locale, "en" when unknown.
func SystemLanguageCode() string {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if code := languageCode(os.Getenv(key)); code != "" {
			return code
		}
	}
	return "en"
}

// languageCode turns a POSIX locale such as "de_DE.UTF-8" into "de".
func languageCode(locale string) string {
	if i := strings.IndexAny(locale, ".@"); i >= 0 {
		locale = locale[:i]
	}
	if locale == "" || locale == "C" || locale == "POSIX" {
		return ""
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return ""
	}
	base, conf := tag.Base()
	if conf == language.No {
		return ""
	}
	return base.String()
}
