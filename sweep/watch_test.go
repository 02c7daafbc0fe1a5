package sweep

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/exportsync/errors"
)

func TestWatchSweepsOnArrival(t *testing.T) {
	dir := t.TempDir()
	var runs atomic.Int32

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, dir, 50*time.Millisecond, func(context.Context) error {
			runs.Add(1)
			return nil
		}, zaptest.NewLogger(t).Sugar())
	}()

	require.Eventually(t, func() bool { return runs.Load() == 1 }, 2*time.Second, 10*time.Millisecond, "initial sweep")

	// a burst of arrivals collapses into one sweep
	for _, n := range []string{"A.xlsx", "B.xlsx", "C.xlsx"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("x"), 0644))
	}
	require.Eventually(t, func() bool { return runs.Load() == 2 }, 2*time.Second, 10*time.Millisecond)

	// unrelated files do not trigger a sweep
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(2), runs.Load())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestWatchStopsOnAuthFailure(t *testing.T) {
	err := Watch(context.Background(), t.TempDir(), time.Second, func(context.Context) error {
		return errors.Wrap(errors.ErrAuthFailure, "upload ACME")
	}, nil)
	assert.True(t, errors.Is(err, errors.ErrAuthFailure))
}

func TestWatchMissingFolder(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "absent"), time.Second,
		func(context.Context) error { return nil }, nil)
	assert.Error(t, err)
}

func TestIsArtifactArrival(t *testing.T) {
	assert.True(t, isArtifactArrival(fsnotify.Event{Name: "/d/A.xlsx", Op: fsnotify.Create}))
	assert.True(t, isArtifactArrival(fsnotify.Event{Name: "/d/A.XLSX", Op: fsnotify.Write}))
	assert.False(t, isArtifactArrival(fsnotify.Event{Name: "/d/A.xlsx.part", Op: fsnotify.Create}))
	assert.False(t, isArtifactArrival(fsnotify.Event{Name: "/d/A.xlsx", Op: fsnotify.Remove}))
	assert.False(t, isArtifactArrival(fsnotify.Event{Name: "/d/A.xlsx", Op: fsnotify.Rename}))
}
