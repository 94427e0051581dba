package adapters

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"bambu-display/application"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// ConfigError names the configuration option that is missing or malformed.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s %s", e.Field, e.Reason)
}

var requiredStringFields = []string{
	"device_type",
	"serial",
	"host",
	"access_code",
	"auth_token_file",
	"region",
	"email",
	"username",
	"password",
}

var requiredGeometryFields = []string{"top", "left", "width", "height"}

// LoadSettings validates a host configuration section and converts it to
// Settings. Keys are matched case-insensitively.
func LoadSettings(section map[string]any) (application.Settings, error) {
	v := viper.New()
	v.SetDefault("onboarding_port", application.DefaultOnboardingPort)
	v.SetDefault("onboarding_host", "")
	v.SetDefault("mqtt_port", application.DefaultMQTTPort)
	v.SetDefault("cover_width", application.DefaultCoverWidth)
	v.SetDefault("qr_code_width", application.DefaultQRCodeWidth)

	if err := v.MergeConfigMap(section); err != nil {
		return application.Settings{}, fmt.Errorf("config: %w", err)
	}

	values := make(map[string]string, len(requiredStringFields))
	for _, field := range requiredStringFields {
		if !v.IsSet(field) {
			return application.Settings{}, &ConfigError{Field: field, Reason: "is required"}
		}
		s, err := cast.ToStringE(v.Get(field))
		if err != nil {
			return application.Settings{}, &ConfigError{Field: field, Reason: "must be a string"}
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return application.Settings{}, &ConfigError{Field: field, Reason: "is required"}
		}
		values[field] = s
	}

	geometry := make(map[string]int, len(requiredGeometryFields))
	for _, field := range requiredGeometryFields {
		if !v.IsSet(field) {
			return application.Settings{}, &ConfigError{Field: field, Reason: "is required"}
		}
		n, err := intField(v, field)
		if err != nil {
			return application.Settings{}, err
		}
		geometry[field] = n
	}
	for _, field := range []string{"top", "left"} {
		if geometry[field] < 0 {
			return application.Settings{}, &ConfigError{Field: field, Reason: "must not be negative"}
		}
	}
	for _, field := range []string{"width", "height"} {
		if geometry[field] == 0 || geometry[field] < -1 {
			return application.Settings{}, &ConfigError{Field: field, Reason: "must be positive or -1"}
		}
	}

	optional := make(map[string]int)
	for _, field := range []string{"onboarding_port", "mqtt_port", "cover_width", "qr_code_width"} {
		n, err := intField(v, field)
		if err != nil {
			return application.Settings{}, err
		}
		if n <= 0 {
			return application.Settings{}, &ConfigError{Field: field, Reason: "must be positive"}
		}
		optional[field] = n
	}

	tokenFile, err := resolveTokenPath(values["auth_token_file"])
	if err != nil {
		return application.Settings{}, &ConfigError{Field: "auth_token_file", Reason: err.Error()}
	}

	return application.Settings{
		DeviceType: values["device_type"],
		Serial:     values["serial"],
		Host:       values["host"],
		AccessCode: values["access_code"],
		TokenFile:  tokenFile,
		Region:     values["region"],
		Email:      values["email"],
		Username:   values["username"],
		Password:   values["password"],
		Display: application.Rect{
			Top:    geometry["top"],
			Left:   geometry["left"],
			Width:  geometry["width"],
			Height: geometry["height"],
		},
		MQTTPort:    optional["mqtt_port"],
		CoverWidth:  optional["cover_width"],
		QRCodeWidth: optional["qr_code_width"],
		Onboarding: application.OnboardingSettings{
			Host: strings.TrimSpace(v.GetString("onboarding_host")),
			Port: optional["onboarding_port"],
		},
	}, nil
}

func intField(v *viper.Viper, field string) (int, error) {
	raw := v.Get(field)
	if s, ok := raw.(string); ok {
		raw = strings.TrimSpace(s)
	}
	n, err := cast.ToIntE(raw)
	if err != nil {
		return 0, &ConfigError{Field: field, Reason: "must be an integer"}
	}
	return n, nil
}

// resolveTokenPath anchors relative paths at the home directory.
func resolveTokenPath(path string) (string, error) {
	if filepath.IsAbs(path) {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot resolve relative path: %w", err)
	}
	return filepath.Join(home, path), nil
}
