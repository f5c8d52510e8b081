package janitor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"driveshare/config"
	"driveshare/core/utils"
)

func TestRunOnceRemovesStaleEntries(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "doc-1_100")
	fresh := filepath.Join(dir, "doc-2_200")
	require.NoError(t, os.MkdirAll(old, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(old, "original.pdf"), []byte("%PDF"), 0o600))
	require.NoError(t, os.MkdirAll(fresh, 0o755))

	now := time.Now()
	require.NoError(t, os.Chtimes(old, now.Add(-2*time.Hour), now.Add(-2*time.Hour)))

	s := NewScheduler(config.JanitorConfig{Enabled: true, MaxAge: time.Hour}, dir, utils.NewNopLogger())
	s.now = func() time.Time { return now }
	n, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
	_, err = os.Stat(old)
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(fresh)
	require.NoError(t, err)
}

func TestRunOnceMissingDir(t *testing.T) {
	s := NewScheduler(config.JanitorConfig{Enabled: true}, filepath.Join(t.TempDir(), "missing"), utils.NewNopLogger())
	n, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestStartStop(t *testing.T) {
	s := NewScheduler(config.JanitorConfig{Enabled: true, Spec: "@every 1h"}, t.TempDir(), utils.NewNopLogger())
	require.NoError(t, s.StartWithContext(context.Background()))
	require.NoError(t, s.StartWithContext(context.Background()))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.StopWithContext(ctx))
	require.NoError(t, s.StopWithContext(ctx))
}

func TestStartRejectsBadSpec(t *testing.T) {
	s := NewScheduler(config.JanitorConfig{Enabled: true, Spec: "not a spec"}, t.TempDir(), utils.NewNopLogger())
	require.Error(t, s.StartWithContext(context.Background()))
}

func TestDisabledIsNoop(t *testing.T) {
	s := NewScheduler(config.JanitorConfig{}, t.TempDir(), utils.NewNopLogger())
	require.NoError(t, s.StartWithContext(context.Background()))
	require.NoError(t, s.StopWithContext(context.Background()))
}
