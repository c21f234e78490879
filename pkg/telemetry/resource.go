package telemetry

import (
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"github.com/beamlit/telemetry-go/pkg/config"
)

// ErrSettingsNotLoaded is returned when resource attributes are requested
// before settings have been loaded.
var ErrSettingsNotLoaded = errors.New("telemetry: settings not loaded")

// newResource creates the resource attached to all signals.
//
// A standalone resource avoids schema URL conflicts with resource.Default(),
// which may use a different semconv version.
func newResource(cfg *Config) *resource.Resource {
	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceNamespace(cfg.Workspace),
		attribute.String("service.workspace", cfg.Workspace),
	)
}

// ResourceAttributes returns the ambient resource attributes plus the
// workspace and service identity from settings.
func ResourceAttributes(s *config.Settings) ([]attribute.KeyValue, error) {
	if s == nil {
		return nil, ErrSettingsNotLoaded
	}

	defaults := resource.Default().Attributes()
	attrs := make([]attribute.KeyValue, 0, len(defaults)+2)
	attrs = append(attrs, defaults...)
	attrs = append(attrs,
		attribute.String("workspace", s.Workspace),
		semconv.ServiceName(s.Name),
	)
	return attrs, nil
}
