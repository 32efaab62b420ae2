package integration

import "context"

// ScriptLister lists the sibling scripts currently running on the host.
// It may fail; a nil or empty result means nothing is running.
type ScriptLister interface {
	ListInstalledScripts(ctx context.Context) ([]ScriptManifest, error)
}

// VersionLoader loads the advertised version of a sibling script.
// It is best effort and returns an empty string when the version is unknown.
type VersionLoader interface {
	LoadVersion(fileName string) string
}

// PortProvider resolves the loopback port the host web server listens on
type PortProvider interface {
	LoopbackPort() (int, error)
}

// Detector answers detection and compatibility queries about siblings
type Detector interface {
	IsDetected(platform PlatformID) bool
	GetInfo(platform PlatformID) (DetectedIntegrationInfo, bool)
	AvailablePlatforms() []PlatformID
	CheckCompatibility(platform PlatformID, requiredRange string) CompatibilityResult
}
