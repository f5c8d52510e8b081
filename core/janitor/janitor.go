// Package janitor removes signing build directories left behind by crashed
// or interrupted requests.
package janitor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"driveshare/config"
	"driveshare/core/utils"
)

type Scheduler struct {
	cfg    config.JanitorConfig
	dir    string
	logger *utils.Logger
	now    func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	running bool
}

func NewScheduler(cfg config.JanitorConfig, buildDir string, logger *utils.Logger) *Scheduler {
	return &Scheduler{cfg: cfg, dir: buildDir, logger: logger, now: time.Now}
}

func (s *Scheduler) StartWithContext(ctx context.Context) error {
	if s == nil || !s.cfg.Enabled || s.dir == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	c := cron.New()
	spec := s.cfg.Spec
	if spec == "" {
		spec = "@every 15m"
	}
	if _, err := c.AddFunc(spec, func() {
		if runCtx.Err() != nil {
			return
		}
		if _, err := s.RunOnce(runCtx); err != nil {
			s.logger.Errorf("janitor: %v", err)
		}
	}); err != nil {
		cancel()
		return err
	}
	c.Start()
	s.cron = c
	s.cancel = cancel
	s.running = true
	return nil
}

func (s *Scheduler) StopWithContext(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	c, cancel, wasRunning := s.cron, s.cancel, s.running
	s.cron, s.cancel, s.running = nil, nil, false
	s.mu.Unlock()
	if !wasRunning {
		return nil
	}
	cancel()
	stopped := c.Stop()
	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce removes entries of the build directory older than MaxAge and
// returns how many were removed.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	maxAge := s.cfg.MaxAge
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	cutoff := s.now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(s.dir, e.Name())
		if err := os.RemoveAll(path); err != nil {
			s.logger.Errorf("janitor remove %s: %v", path, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		s.logger.Printf("janitor removed %d stale build entries", removed)
	}
	return removed, nil
}
