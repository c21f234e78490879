package telemetry

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/beamlit/telemetry-go/pkg/config"
)

// defaultOTLPPort is appended when the collector endpoint is derived from the
// control-plane base URL.
const defaultOTLPPort = "4317"

// Config holds telemetry bootstrap configuration. Build one with
// FromSettings; the zero value is not usable.
type Config struct {
	Enabled     bool
	Endpoint    string
	Protocol    string // "grpc" or "http/protobuf"
	ServiceName string
	Workspace   string

	// Insecure disables TLS on the exporter connection. Only honored for
	// local collectors, see Validate.
	Insecure bool
	// TLSSkipVerify accepts collector certificates signed by internal CAs.
	TLSSkipVerify bool

	MetricExportInterval config.Duration
	ShutdownTimeout      config.Duration
}

// FromSettings derives the telemetry configuration from workspace settings.
// When no explicit collector endpoint is configured, the control-plane host
// is used with the default OTLP port.
func FromSettings(s *config.Settings) *Config {
	endpoint := s.Telemetry.Endpoint
	if endpoint == "" {
		endpoint = baseURLHost(s.BaseURL) + ":" + defaultOTLPPort
	}

	protocol := s.Telemetry.Protocol
	if protocol == "" {
		protocol = "grpc"
	}

	return &Config{
		Enabled:              s.EnableOpenTelemetry,
		Endpoint:             endpoint,
		Protocol:             protocol,
		ServiceName:          s.Name,
		Workspace:            s.Workspace,
		Insecure:             s.Telemetry.Insecure,
		MetricExportInterval: s.Telemetry.MetricExportInterval,
		ShutdownTimeout:      s.Telemetry.ShutdownTimeout,
	}
}

// Validate checks configuration for errors.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required when telemetry is enabled")
	}

	if c.ServiceName == "" {
		return fmt.Errorf("service name is required when telemetry is enabled")
	}

	if c.Workspace == "" {
		return fmt.Errorf("workspace is required when telemetry is enabled")
	}

	switch c.Protocol {
	case "grpc", "http/protobuf":
	default:
		return fmt.Errorf("protocol must be \"grpc\" or \"http/protobuf\", got %q", c.Protocol)
	}

	if c.Insecure && !c.isLocalEndpoint() {
		return fmt.Errorf("insecure connections to remote endpoints are not allowed; use TLS or a local endpoint")
	}

	if c.MetricExportInterval.Duration() <= 0 {
		return fmt.Errorf("metric export interval must be positive")
	}

	if c.ShutdownTimeout.Duration() <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}

	return nil
}

// isLocalEndpoint checks if the endpoint is a local address.
func (c *Config) isLocalEndpoint() bool {
	host := c.Endpoint
	if idx := strings.LastIndex(host, ":"); idx != -1 && !strings.Contains(host[idx:], "]") {
		host = host[:idx]
	}
	host = strings.Trim(host, "[]")

	return host == "localhost" ||
		host == "::1" ||
		strings.HasPrefix(host, "127.")
}

// baseURLHost extracts the hostname from the control-plane base URL.
func baseURLHost(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Hostname() == "" {
		return stripScheme(baseURL)
	}
	return u.Hostname()
}

// stripScheme removes http:// or https:// from an endpoint. The OTLP HTTP
// exporters expect host:port, not full URLs.
func stripScheme(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "https://")
	endpoint = strings.TrimPrefix(endpoint, "http://")
	return endpoint
}
