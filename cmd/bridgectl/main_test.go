package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func installKick(t *testing.T, version string) {
	t.Helper()
	dir := t.TempDir()
	scripts := filepath.Join(dir, "running.yaml")
	require.NoError(t, os.WriteFile(scripts, []byte("- name: Kick Integration\n  fileName: kick.js\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "kick.manifest.yaml"), []byte("version: "+version+"\n"), 0o644))

	t.Setenv("PBR_DISCOVERY_SCRIPTS_FILE", scripts)
	t.Setenv("PBR_DISCOVERY_SCRIPTS_DIR", dir)
}

func TestRun_UsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown command", []string{"frobnicate"}},
		{"probe without platform", []string{"probe"}},
		{"scan with extra argument", []string{"scan", "kick"}},
		{"bad timeout", []string{"--timeout", "soon", "scan"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := run(tt.args, &stdout, &stderr)
			assert.Equal(t, 1, code)
			assert.NotEmpty(t, stderr.String())
		})
	}
}

func TestRun_ScanCompatible(t *testing.T) {
	installKick(t, "0.10.5")

	var stdout, stderr bytes.Buffer
	code := run([]string{"scan"}, &stdout, &stderr)

	require.Equal(t, 0, code, stderr.String())
	var report map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &report), stdout.String())
	assert.Contains(t, stdout.String(), `"kick"`)
}

func TestRun_ScanIncompatibleExitsTwo(t *testing.T) {
	installKick(t, "0.9.0")

	var stdout, stderr bytes.Buffer
	code := run([]string{"scan"}, &stdout, &stderr)

	assert.Equal(t, 2, code)
	assert.Contains(t, stderr.String(), "incompatible")
	assert.Contains(t, stdout.String(), "0.9.0")
}

func TestRun_ProbeInvalidPlatform(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"probe", "  "}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Empty(t, stdout.String())
}
