// Package config provides settings loading for the Beamlit telemetry SDK.
//
// Settings are loaded from an optional YAML file, then overridden by BL_*
// environment variables. Loading is explicit: the host application calls
// Load (or LoadWithFile) once at startup and passes the resulting Settings
// to the auth and telemetry packages.
package config

import (
	"fmt"
	"net/url"
	"time"
)

// Settings holds the workspace configuration consumed by the telemetry
// bootstrap. Treated as read-only after Load.
type Settings struct {
	// Name identifies the service, sent as the service.name resource attribute.
	Name string `koanf:"name"`
	// Workspace is the tenant identifier, sent as a header and resource attribute.
	Workspace string `koanf:"workspace"`
	// BaseURL is the root of the Beamlit control plane. The OAuth token
	// endpoint lives at {BaseURL}/oauth/token.
	BaseURL string `koanf:"base_url"`
	// EnableOpenTelemetry is the master switch for all telemetry signals.
	EnableOpenTelemetry bool `koanf:"enable_opentelemetry"`

	Authentication AuthenticationSettings `koanf:"authentication"`
	Telemetry      TelemetrySettings      `koanf:"telemetry"`
	Server         ServerSettings         `koanf:"server"`
}

// AuthenticationSettings holds credential material.
type AuthenticationSettings struct {
	Client ClientSettings `koanf:"client"`
}

// ClientSettings holds the client-credentials pair.
type ClientSettings struct {
	// Credentials is a base64-encoded "client_id:client_secret" string.
	// Empty means telemetry auth is disabled.
	Credentials Secret `koanf:"credentials"`
}

// TelemetrySettings controls OTLP export transport.
type TelemetrySettings struct {
	// Endpoint is the collector address (host:port). When empty, the host of
	// BaseURL is used with the default OTLP port.
	Endpoint string `koanf:"endpoint"`
	// Protocol selects the OTLP transport: "grpc" (default) or "http/protobuf".
	Protocol string `koanf:"protocol"`
	// Insecure disables TLS on the exporter connection. Only honored for
	// local collectors.
	Insecure             bool     `koanf:"insecure"`
	MetricExportInterval Duration `koanf:"metric_export_interval"`
	ShutdownTimeout      Duration `koanf:"shutdown_timeout"`
}

// ServerSettings holds the host application's HTTP server configuration.
type ServerSettings struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// NewDefaultSettings returns settings with production defaults. Telemetry is
// disabled until a workspace opts in.
func NewDefaultSettings() *Settings {
	return &Settings{
		Name:                "beamlit-app",
		Workspace:           "",
		BaseURL:             "https://api.beamlit.com/v0",
		EnableOpenTelemetry: false,
		Telemetry: TelemetrySettings{
			Protocol:             "grpc",
			Insecure:             false,
			MetricExportInterval: Duration(15 * time.Second),
			ShutdownTimeout:      Duration(5 * time.Second),
		},
		Server: ServerSettings{
			Host:            "localhost",
			Port:            8080,
			ShutdownTimeout: Duration(10 * time.Second),
		},
	}
}

// Validate checks settings for errors.
func (s *Settings) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	u, err := url.Parse(s.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("base_url must be an absolute URL, got %q", s.BaseURL)
	}

	if s.EnableOpenTelemetry && s.Workspace == "" {
		return fmt.Errorf("workspace is required when telemetry is enabled")
	}

	switch s.Telemetry.Protocol {
	case "", "grpc", "http/protobuf":
	default:
		return fmt.Errorf("telemetry.protocol must be \"grpc\" or \"http/protobuf\", got %q", s.Telemetry.Protocol)
	}

	if s.Telemetry.MetricExportInterval.Duration() <= 0 {
		return fmt.Errorf("telemetry.metric_export_interval must be positive")
	}
	if s.Telemetry.ShutdownTimeout.Duration() <= 0 {
		return fmt.Errorf("telemetry.shutdown_timeout must be positive")
	}

	if s.Server.Port < 1 || s.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", s.Server.Port)
	}

	return nil
}

// TokenURL returns the OAuth token endpoint for this workspace.
func (s *Settings) TokenURL() string {
	return s.BaseURL + "/oauth/token"
}
