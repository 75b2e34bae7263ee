package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchDebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "peertrust.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a: 1\n"), 0644))

	var calls atomic.Int32
	w := New(path, func() { calls.Add(1) }).WithDebounce(150 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx) }()

	// Give the watcher time to register the directory
	time.Sleep(100 * time.Millisecond)
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(path, []byte("a: 2\n"), 0644))
	}

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestWatchIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "peertrust.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a: 1\n"), 0644))

	var calls atomic.Int32
	w := New(path, func() { calls.Add(1) }).WithDebounce(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Watch(ctx)

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("b: 1\n"), 0644))
	time.Sleep(200 * time.Millisecond)

	assert.Equal(t, int32(0), calls.Load())
}

func TestWatchMissingDirectory(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "gone", "peertrust.yaml"), func() {})
	assert.Error(t, w.Watch(context.Background()))
}
