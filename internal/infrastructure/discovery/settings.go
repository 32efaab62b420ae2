package discovery

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/platformbridge/backend/internal/domain/integration"
)

// ErrPortNotConfigured is returned when the settings file has no usable port
var ErrPortNotConfigured = errors.New("web server port not configured")

// SettingsPortProvider reads the host web server port from the host
// settings file. Callers fall back to their default port on error.
type SettingsPortProvider struct {
	path string
}

// NewSettingsPortProvider creates a provider over the settings file at path
func NewSettingsPortProvider(path string) *SettingsPortProvider {
	return &SettingsPortProvider{path: path}
}

type hostSettings struct {
	WebServerPort int `yaml:"webServerPort"`
}

// LoopbackPort returns the configured webServerPort
func (p *SettingsPortProvider) LoopbackPort() (int, error) {
	if p.path == "" {
		return 0, ErrPortNotConfigured
	}
	raw, err := os.ReadFile(p.path)
	if err != nil {
		return 0, fmt.Errorf("read settings file: %w", err)
	}
	var settings hostSettings
	if err := yaml.Unmarshal(raw, &settings); err != nil {
		return 0, fmt.Errorf("decode settings file: %w", err)
	}
	if settings.WebServerPort <= 0 || settings.WebServerPort > 65535 {
		return 0, ErrPortNotConfigured
	}
	return settings.WebServerPort, nil
}

var _ integration.PortProvider = (*SettingsPortProvider)(nil)
