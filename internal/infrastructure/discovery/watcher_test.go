package discovery

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformbridge/backend/internal/domain/integration"
)

type countingScanner struct {
	scans atomic.Int32
}

func (c *countingScanner) Scan(ctx context.Context) []integration.PlatformID {
	c.scans.Add(1)
	return nil
}

func TestWatcher_RescansOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "running.yaml")
	scanner := &countingScanner{}

	w, err := NewWatcher(path, scanner, nil, 20*time.Millisecond)
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.NoError(t, os.WriteFile(path, []byte("- name: Kick Integration\n"), 0o644))
	assert.Eventually(t, func() bool { return scanner.scans.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("x"), 0o644))
	time.Sleep(100 * time.Millisecond)
	before := scanner.scans.Load()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, before, scanner.scans.Load())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
}
