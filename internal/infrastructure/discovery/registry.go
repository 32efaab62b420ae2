// Package discovery finds the sibling integration scripts running on the
// host and answers detection and version compatibility queries about them.
package discovery

import (
	"context"
	"fmt"
	"sync"

	"github.com/Masterminds/semver/v3"
	"go.uber.org/zap"

	"github.com/platformbridge/backend/internal/domain/integration"
)

// Registry maps platforms to the sibling scripts detected for them.
//
// Entries are written by Scan and cleared by Reset. Calling Reset while a
// Scan or dispatch is in flight is memory safe but may make a platform look
// not installed to that dispatch; callers should only reset when idle.
type Registry struct {
	lister   integration.ScriptLister
	versions integration.VersionLoader
	mappings []integration.IntegrationMapping
	logger   *zap.Logger
	onScan   func(ctx context.Context, detected int)

	mu       sync.RWMutex
	detected map[integration.PlatformID]integration.DetectedIntegrationInfo
	order    []integration.PlatformID
}

// Option configures a Registry
type Option func(*Registry)

// WithMappings replaces the known integration table
func WithMappings(mappings []integration.IntegrationMapping) Option {
	return func(r *Registry) {
		r.mappings = mappings
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithScanHook registers a callback run after every completed scan
func WithScanHook(fn func(ctx context.Context, detected int)) Option {
	return func(r *Registry) {
		r.onScan = fn
	}
}

// NewRegistry creates a Registry backed by the host collaborators
func NewRegistry(lister integration.ScriptLister, versions integration.VersionLoader, opts ...Option) *Registry {
	r := &Registry{
		lister:   lister,
		versions: versions,
		mappings: integration.KnownIntegrations,
		logger:   zap.NewNop(),
		detected: make(map[integration.PlatformID]integration.DetectedIntegrationInfo),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Scan lists the running scripts and records every one that matches a known
// integration. It returns the platforms matched by this scan. Failures are
// logged and leave the detection map untouched.
func (r *Registry) Scan(ctx context.Context) []integration.PlatformID {
	manifests, err := r.lister.ListInstalledScripts(ctx)
	if err != nil {
		r.logger.Error("Failed to list installed scripts", zap.Error(err))
		return nil
	}
	if len(manifests) == 0 {
		r.logger.Warn("No installed scripts found, no integrations detected")
		return nil
	}

	type match struct {
		platform integration.PlatformID
		info     integration.DetectedIntegrationInfo
	}
	var matches []match
	for _, manifest := range manifests {
		mapping, ok := r.Identify(manifest)
		if !ok {
			continue
		}
		version := ""
		if manifest.FileName != "" {
			version = r.versions.LoadVersion(manifest.FileName)
		}
		matches = append(matches, match{
			platform: mapping.PlatformID,
			info: integration.DetectedIntegrationInfo{
				ScriptName: manifest.Name,
				Version:    version,
				ScriptID:   manifest.ID,
			},
		})
		r.logger.Info("Detected integration",
			zap.String("platform", mapping.PlatformID.String()),
			zap.String("script", manifest.Name),
			zap.String("version", version),
		)
	}

	r.mu.Lock()
	platforms := make([]integration.PlatformID, 0, len(matches))
	for _, m := range matches {
		if _, seen := r.detected[m.platform]; !seen {
			r.order = append(r.order, m.platform)
		}
		r.detected[m.platform] = m.info
		platforms = append(platforms, m.platform)
	}
	total := len(r.detected)
	r.mu.Unlock()

	r.logger.Info("Integration scan complete",
		zap.Int("scripts", len(manifests)),
		zap.Int("matched", len(matches)),
		zap.Int("detected", total),
	)
	if r.onScan != nil {
		r.onScan(ctx, total)
	}
	return platforms
}

// Identify returns the first mapping whose manifest name or script id
// matches the manifest, in table order.
func (r *Registry) Identify(manifest integration.ScriptManifest) (integration.IntegrationMapping, bool) {
	for _, m := range r.mappings {
		if manifest.Name != "" && m.ManifestName == manifest.Name {
			return m, true
		}
		if manifest.ID != "" && m.ScriptID == manifest.ID {
			return m, true
		}
	}
	return integration.IntegrationMapping{}, false
}

// IsDetected reports whether a sibling was detected for platform
func (r *Registry) IsDetected(platform integration.PlatformID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.detected[platform]
	return ok
}

// GetInfo returns what the scans learned about platform
func (r *Registry) GetInfo(platform integration.PlatformID) (integration.DetectedIntegrationInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.detected[platform]
	return info, ok
}

// AvailablePlatforms returns the home platform followed by every detected
// platform in first-detection order.
func (r *Registry) AvailablePlatforms() []integration.PlatformID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	platforms := make([]integration.PlatformID, 0, len(r.order)+1)
	platforms = append(platforms, integration.HomePlatform)
	return append(platforms, r.order...)
}

// CheckCompatibility evaluates the detected version of platform against a
// semver range such as ">= 0.10.0". The result is advisory only.
func (r *Registry) CheckCompatibility(platform integration.PlatformID, requiredRange string) integration.CompatibilityResult {
	info, ok := r.GetInfo(platform)
	if !ok {
		return integration.CompatibilityResult{Reason: "not detected"}
	}
	if !info.HasVersion() {
		return integration.CompatibilityResult{Reason: "no version information"}
	}

	constraint, err := semver.NewConstraint(requiredRange)
	if err != nil {
		return r.incompatible(platform, info.Version, requiredRange, fmt.Sprintf("invalid version range %q: %v", requiredRange, err))
	}
	version, err := semver.NewVersion(info.Version)
	if err != nil {
		return r.incompatible(platform, info.Version, requiredRange, fmt.Sprintf("invalid version %q: %v", info.Version, err))
	}
	if !constraint.Check(version) {
		return r.incompatible(platform, info.Version, requiredRange, fmt.Sprintf("version %s does not satisfy %s", info.Version, requiredRange))
	}
	return integration.CompatibilityResult{Compatible: true}
}

func (r *Registry) incompatible(platform integration.PlatformID, version, requiredRange, reason string) integration.CompatibilityResult {
	r.logger.Warn("Integration version is incompatible",
		zap.String("platform", platform.String()),
		zap.String("version", version),
		zap.String("required", requiredRange),
		zap.String("reason", reason),
	)
	return integration.CompatibilityResult{Reason: reason}
}

// Reset forgets every detected integration
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detected = make(map[integration.PlatformID]integration.DetectedIntegrationInfo)
	r.order = nil
}

var _ integration.Detector = (*Registry)(nil)
