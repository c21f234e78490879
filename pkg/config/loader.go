package config

import (
	"fmt"
	"io"
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const maxSettingsFileSize = 1024 * 1024 // 1MB

// envKeys maps BL_* environment variables to settings paths. Only listed
// variables are honored; everything else under BL_ is ignored.
var envKeys = map[string]string{
	"BL_NAME":                             "name",
	"BL_WORKSPACE":                        "workspace",
	"BL_BASE_URL":                         "base_url",
	"BL_ENABLE_OPENTELEMETRY":             "enable_opentelemetry",
	"BL_CLIENT_CREDENTIALS":               "authentication.client.credentials",
	"BL_TELEMETRY_ENDPOINT":               "telemetry.endpoint",
	"BL_TELEMETRY_PROTOCOL":               "telemetry.protocol",
	"BL_TELEMETRY_INSECURE":               "telemetry.insecure",
	"BL_TELEMETRY_METRIC_EXPORT_INTERVAL": "telemetry.metric_export_interval",
	"BL_TELEMETRY_SHUTDOWN_TIMEOUT":       "telemetry.shutdown_timeout",
	"BL_SERVER_HOST":                      "server.host",
	"BL_SERVER_PORT":                      "server.port",
	"BL_SERVER_SHUTDOWN_TIMEOUT":          "server.shutdown_timeout",
}

// Load loads settings from BL_* environment variables over defaults.
func Load() (*Settings, error) {
	return LoadWithFile("")
}

// LoadWithFile loads settings from a YAML file, then overrides with BL_*
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (BL_WORKSPACE, BL_CLIENT_CREDENTIALS, ...)
//  2. YAML settings file (settingsPath, skipped when empty or absent)
//  3. Defaults from NewDefaultSettings
func LoadWithFile(settingsPath string) (*Settings, error) {
	k := koanf.New(".")

	if settingsPath != "" {
		if _, err := os.Stat(settingsPath); err == nil {
			content, err := readSettingsFile(settingsPath)
			if err != nil {
				return nil, err
			}
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to parse settings file %s: %w", settingsPath, err)
			}
		}
	}

	// Environment overrides. The transformer consults the explicit key table;
	// returning "" drops unrecognized variables.
	if err := k.Load(env.Provider("BL_", ".", func(s string) string {
		return envKeys[s]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	settings := NewDefaultSettings()
	if err := k.Unmarshal("", settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}

	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("settings validation failed: %w", err)
	}

	return settings, nil
}

// readSettingsFile reads the file through one descriptor so the size check
// and the read cannot race.
func readSettingsFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open settings file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat settings file: %w", err)
	}
	if info.Size() > maxSettingsFileSize {
		return nil, fmt.Errorf("settings file too large: %d bytes (max %d)", info.Size(), maxSettingsFileSize)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}
	return content, nil
}
