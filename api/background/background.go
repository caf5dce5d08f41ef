// Package background runs fire-and-forget work that must not outlive a
// graceful shutdown.
package background

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

var ErrShuttingDown = errors.New("background: shutting down")

type Background struct {
	log      logrus.FieldLogger
	wg       sync.WaitGroup
	mu       sync.Mutex
	stopping bool
}

func New(log logrus.FieldLogger) *Background {
	return &Background{log: log}
}

// Run starts fn on its own goroutine. Panics are logged, not propagated.
func (b *Background) Run(name string, fn func()) error {
	b.mu.Lock()
	if b.stopping {
		b.mu.Unlock()
		return ErrShuttingDown
	}
	b.wg.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				b.log.WithField("task", name).Error(fmt.Sprintf("background task panicked: %v", rec))
			}
		}()

		fn()
	}()
	return nil
}

// Shutdown refuses new tasks and waits for the running ones.
func (b *Background) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	b.stopping = true
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
