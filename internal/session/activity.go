package session

import (
	"context"
	"time"

	"github.com/involy/involy/internal/pkg/logger"
)

// IdleWatcher polls the manager's last-activity instant on a fixed interval
// and forces a sign-out once the idle timeout elapses. Activity events call
// Manager.Touch; the watcher itself never records activity.
type IdleWatcher struct {
	manager  *Manager
	timeout  time.Duration
	interval time.Duration
	logger   *logger.Logger
	now      func() time.Time
}

// NewIdleWatcher creates a watcher with the given idle timeout and poll
// interval.
func NewIdleWatcher(m *Manager, timeout, interval time.Duration, log *logger.Logger) *IdleWatcher {
	return &IdleWatcher{
		manager:  m,
		timeout:  timeout,
		interval: interval,
		logger:   log,
		now:      time.Now,
	}
}

// Run polls until the context is cancelled
func (w *IdleWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick()
		}
	}
}

// tick performs one idle check
func (w *IdleWatcher) tick() {
	if !w.manager.IsAuthenticated() {
		return
	}
	idle := w.now().Sub(w.manager.LastActivity())
	if idle >= w.timeout {
		w.logger.Infof("Idle for %s, signing out", idle.Round(time.Second))
		w.manager.SignOut()
	}
}
