package discovery

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/platformbridge/backend/internal/domain/integration"
)

// FileVersionLoader reads the version a sibling script advertises in its
// manifest file under the scripts directory.
type FileVersionLoader struct {
	dir    string
	logger *zap.Logger
}

// NewFileVersionLoader creates a loader rooted at dir
func NewFileVersionLoader(dir string, logger *zap.Logger) *FileVersionLoader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileVersionLoader{dir: dir, logger: logger}
}

type scriptVersionDoc struct {
	Version  string `yaml:"version"`
	Manifest struct {
		Version string `yaml:"version"`
	} `yaml:"manifest"`
}

// LoadVersion returns the version advertised for fileName, or "" when it
// cannot be determined.
//
// A JSON or YAML fileName is read directly. Any other script file is paired
// with a sidecar named <stem>.manifest.json, .yaml or .yml.
func (l *FileVersionLoader) LoadVersion(fileName string) string {
	name := filepath.Clean(fileName)
	if fileName == "" || !filepath.IsLocal(name) {
		return ""
	}

	for _, candidate := range versionCandidates(name) {
		raw, err := os.ReadFile(filepath.Join(l.dir, candidate))
		if err != nil {
			continue
		}
		var doc scriptVersionDoc
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			l.logger.Debug("Failed to decode script manifest",
				zap.String("file", candidate),
				zap.Error(err),
			)
			continue
		}
		if v := strings.TrimSpace(doc.Version); v != "" {
			return v
		}
		if v := strings.TrimSpace(doc.Manifest.Version); v != "" {
			return v
		}
	}
	l.logger.Debug("No version found for script", zap.String("file", fileName))
	return ""
}

func versionCandidates(name string) []string {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".json", ".yaml", ".yml":
		return []string{name}
	}
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	return []string{
		stem + ".manifest.json",
		stem + ".manifest.yaml",
		stem + ".manifest.yml",
	}
}

var _ integration.VersionLoader = (*FileVersionLoader)(nil)
