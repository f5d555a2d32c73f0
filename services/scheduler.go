package services

import (
	"context"
	"sync"
	"time"
)

// PeriodicTask runs fn on a fixed interval until Stop is called.
type PeriodicTask struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func StartPeriodic(interval time.Duration, fn func(ctx context.Context)) *PeriodicTask {
	ctx, cancel := context.WithCancel(context.Background())
	task := &PeriodicTask{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(task.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	}()

	return task
}

// Stop cancels the task and blocks until any running tick has returned.
// Safe to call more than once and on a nil task.
func (t *PeriodicTask) Stop() {
	if t == nil {
		return
	}
	t.once.Do(t.cancel)
	<-t.done
}
