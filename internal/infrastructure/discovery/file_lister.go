package discovery

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/platformbridge/backend/internal/domain/integration"
)

// FileScriptLister reads the running-scripts list the host keeps on disk.
//
// The document is either a bare list of manifests or a map with a
// "scripts" key. JSON documents are accepted as well.
type FileScriptLister struct {
	path string
}

// NewFileScriptLister creates a lister over the scripts file at path
func NewFileScriptLister(path string) *FileScriptLister {
	return &FileScriptLister{path: path}
}

// Path returns the scripts file location
func (l *FileScriptLister) Path() string {
	return l.path
}

// ListInstalledScripts returns every manifest in the scripts file.
// A missing file means no scripts are running.
func (l *FileScriptLister) ListInstalledScripts(ctx context.Context) ([]integration.ScriptManifest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read scripts file: %w", err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode scripts file: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}

	var manifests []integration.ScriptManifest
	root := doc.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		if err := root.Decode(&manifests); err != nil {
			return nil, fmt.Errorf("decode scripts list: %w", err)
		}
	case yaml.MappingNode:
		var wrapped struct {
			Scripts []integration.ScriptManifest `yaml:"scripts"`
		}
		if err := root.Decode(&wrapped); err != nil {
			return nil, fmt.Errorf("decode scripts map: %w", err)
		}
		manifests = wrapped.Scripts
	default:
		return nil, fmt.Errorf("decode scripts file: unexpected document kind %d", root.Kind)
	}
	return manifests, nil
}

var _ integration.ScriptLister = (*FileScriptLister)(nil)
