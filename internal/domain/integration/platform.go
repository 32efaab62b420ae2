package integration

import "strings"

// PlatformID identifies a streaming platform
type PlatformID string

const (
	PlatformTwitch  PlatformID = "twitch"
	PlatformKick    PlatformID = "kick"
	PlatformYouTube PlatformID = "youtube"
)

// HomePlatform is the platform whose operations always run in-process
const HomePlatform = PlatformTwitch

// String returns the string representation of the platform
func (p PlatformID) String() string {
	return string(p)
}

// IsHome reports whether p is the home platform
func (p PlatformID) IsHome() bool {
	return p == HomePlatform
}

// ParsePlatformID normalizes a platform identifier taken from user input
func ParsePlatformID(s string) (PlatformID, error) {
	p := PlatformID(strings.ToLower(strings.TrimSpace(s)))
	if p == "" {
		return "", ErrInvalidPlatform
	}
	return p, nil
}

// IntegrationMapping describes one non-home platform the system can route to.
// Rows are static and never mutated after process start.
type IntegrationMapping struct {
	PlatformID   PlatformID
	ManifestName string
	ScriptID     string
	SemverRange  string
	RoutingID    string
}

// KnownIntegrations lists every supported sibling integration in match order
var KnownIntegrations = []IntegrationMapping{
	{
		PlatformID:   PlatformKick,
		ManifestName: "Kick Integration",
		ScriptID:     "kick-integration",
		SemverRange:  ">= 0.10.0",
		RoutingID:    "kick",
	},
	{
		PlatformID:   PlatformYouTube,
		ManifestName: "YouTube Integration",
		ScriptID:     "youtube-integration",
		SemverRange:  ">= 0.1.0",
		RoutingID:    "youtube",
	},
}

// MappingFor returns the first mapping row for the given platform
func MappingFor(mappings []IntegrationMapping, platform PlatformID) (IntegrationMapping, bool) {
	for _, m := range mappings {
		if m.PlatformID == platform {
			return m, true
		}
	}
	return IntegrationMapping{}, false
}

// RoutingIDFor maps a platform to its HTTP namespace.
// Unmapped platforms route under their own identifier.
func RoutingIDFor(mappings []IntegrationMapping, platform PlatformID) string {
	if m, ok := MappingFor(mappings, platform); ok && m.RoutingID != "" {
		return m.RoutingID
	}
	return string(platform)
}

// ScriptManifest is the opaque description of a running sibling script
type ScriptManifest struct {
	Name     string `json:"name" yaml:"name"`
	ID       string `json:"id,omitempty" yaml:"id,omitempty"`
	FileName string `json:"fileName,omitempty" yaml:"fileName,omitempty"`
}

// DetectedIntegrationInfo records what a scan learned about one sibling.
// Version and ScriptID are empty when unknown.
type DetectedIntegrationInfo struct {
	ScriptName string `json:"scriptName"`
	Version    string `json:"version,omitempty"`
	ScriptID   string `json:"scriptId,omitempty"`
}

// HasVersion reports whether a version was loaded for the sibling
func (i DetectedIntegrationInfo) HasVersion() bool {
	return i.Version != ""
}

// CompatibilityResult is the outcome of a semver range check
type CompatibilityResult struct {
	Compatible bool   `json:"compatible"`
	Reason     string `json:"reason,omitempty"`
}
