// Package integration runs the startup detection pass and reports which
// sibling integrations are available and compatible.
package integration

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/platformbridge/backend/internal/domain/integration"
)

// Scanner is the registry surface the startup pass needs
type Scanner interface {
	integration.Detector
	Scan(ctx context.Context) []integration.PlatformID
}

// CompatibilityWarning is an operator-visible report of a sibling whose
// version does not satisfy the supported range
type CompatibilityWarning struct {
	Platform integration.PlatformID `json:"platform"`
	Version  string                 `json:"version,omitempty"`
	Required string                 `json:"required"`
	Reason   string                 `json:"reason"`
	Critical bool                   `json:"critical"`
}

// PlatformStatus summarises one available platform
type PlatformStatus struct {
	Platform   integration.PlatformID               `json:"platform"`
	Home       bool                                 `json:"home"`
	Info       *integration.DetectedIntegrationInfo `json:"info,omitempty"`
	Required   string                               `json:"required,omitempty"`
	Compatible bool                                 `json:"compatible"`
	Reason     string                               `json:"reason,omitempty"`
}

// StartupReport is the outcome of a detection pass
type StartupReport struct {
	ScannedAt             time.Time              `json:"scanned_at"`
	Platforms             []PlatformStatus       `json:"platforms"`
	CompatibilityWarnings []CompatibilityWarning `json:"compatibility_warnings"`
}

// HasCriticalWarnings reports whether any warning is critical
func (r *StartupReport) HasCriticalWarnings() bool {
	for _, w := range r.CompatibilityWarnings {
		if w.Critical {
			return true
		}
	}
	return false
}

// StartupService scans for siblings and checks their versions.
// Incompatible siblings stay dispatchable; they are only reported.
type StartupService struct {
	registry Scanner
	mappings []integration.IntegrationMapping
	logger   *zap.Logger
	now      func() time.Time
}

// NewStartupService creates a StartupService over the registry
func NewStartupService(registry Scanner, logger *zap.Logger) *StartupService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StartupService{
		registry: registry,
		mappings: integration.KnownIntegrations,
		logger:   logger,
		now:      time.Now,
	}
}

// Initialize runs a scan and builds the startup report
func (s *StartupService) Initialize(ctx context.Context) *StartupReport {
	s.registry.Scan(ctx)
	report := s.Report()
	for _, w := range report.CompatibilityWarnings {
		s.logger.Error("Incompatible integration detected",
			zap.String("platform", w.Platform.String()),
			zap.String("version", w.Version),
			zap.String("required", w.Required),
			zap.String("reason", w.Reason),
		)
	}
	s.logger.Info("Integration startup complete",
		zap.Int("platforms", len(report.Platforms)),
		zap.Int("warnings", len(report.CompatibilityWarnings)),
	)
	return report
}

// Report describes the current registry state without scanning
func (s *StartupService) Report() *StartupReport {
	report := &StartupReport{
		ScannedAt:             s.now(),
		Platforms:             make([]PlatformStatus, 0),
		CompatibilityWarnings: make([]CompatibilityWarning, 0),
	}

	for _, platform := range s.registry.AvailablePlatforms() {
		if platform.IsHome() {
			report.Platforms = append(report.Platforms, PlatformStatus{
				Platform:   platform,
				Home:       true,
				Compatible: true,
			})
			continue
		}

		status := PlatformStatus{Platform: platform, Compatible: true}
		if info, ok := s.registry.GetInfo(platform); ok {
			status.Info = &info
		}
		mapping, ok := integration.MappingFor(s.mappings, platform)
		if ok && mapping.SemverRange != "" {
			status.Required = mapping.SemverRange
			result := s.registry.CheckCompatibility(platform, mapping.SemverRange)
			status.Compatible = result.Compatible
			status.Reason = result.Reason
			if !result.Compatible {
				w := CompatibilityWarning{
					Platform: platform,
					Required: mapping.SemverRange,
					Reason:   result.Reason,
					Critical: true,
				}
				if status.Info != nil {
					w.Version = status.Info.Version
				}
				report.CompatibilityWarnings = append(report.CompatibilityWarnings, w)
			}
		}
		report.Platforms = append(report.Platforms, status)
	}
	return report
}
