package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Poller drives the engine on a fixed cadence until stopped. A cycle
// error does not terminate the loop; it is logged and followed by the
// longer backoff interval before the next attempt.
type Poller struct {
	engine   *Engine
	logger   *slog.Logger
	interval time.Duration
	backoff  time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewPoller constructs a Poller.
func NewPoller(engine *Engine, logger *slog.Logger, interval, backoff time.Duration) *Poller {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if backoff <= 0 {
		backoff = interval * 2
	}
	return &Poller{
		engine:   engine,
		logger:   logger,
		interval: interval,
		backoff:  backoff,
	}
}

// Run executes the poll loop until the context is cancelled. The stop
// signal is honored during the inter-cycle sleep, not just between full
// intervals.
func (p *Poller) Run(ctx context.Context) error {
	log := p.log()
	log.Info("poll loop started", slog.Duration("interval", p.interval))
	for {
		_, err := p.engine.ProcessDocuments(ctx)
		wait := p.interval
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		default:
			log.Error("reconciliation cycle failed", slog.Any("error", err))
			wait = p.backoff
		}
		select {
		case <-ctx.Done():
			log.Info("poll loop stopped")
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Start launches the loop in the background. It fails when the loop is
// already running.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return ErrPollerRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done
	p.running = true
	go func() {
		defer close(done)
		_ = p.Run(runCtx)
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()
	return nil
}

// Stop cancels a running loop and waits for it to exit.
func (p *Poller) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return ErrPollerStopped
	}
	cancel := p.cancel
	done := p.done
	p.mu.Unlock()

	cancel()
	<-done
	return nil
}

// Running reports whether the background loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Poller) log() *slog.Logger {
	if p.logger != nil {
		return p.logger
	}
	return slog.Default()
}
