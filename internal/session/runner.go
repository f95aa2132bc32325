package session

import (
	"log/slog"
	"sync"
	"time"
)

// Runner drives the controller's Step on a fixed cadence. The interval
// function is consulted after every tick so configuration reloads take
// effect live.
type Runner struct {
	controller *Controller
	interval   func() time.Duration
	stopChan   chan struct{}
	doneChan   chan struct{}
	startOnce  sync.Once
	stopOnce   sync.Once
}

// NewRunner creates a runner for the controller. The interval function
// returns the tick cadence.
func NewRunner(c *Controller, interval func() time.Duration) *Runner {
	return &Runner{
		controller: c,
		interval:   interval,
		stopChan:   make(chan struct{}),
		doneChan:   make(chan struct{}),
	}
}

// Start launches the tick loop.
func (r *Runner) Start() {
	r.startOnce.Do(func() {
		slog.Info("session tick loop started", "interval", r.interval())
		go r.run()
	})
}

// Stop halts the tick loop and waits for the in-flight tick to finish.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopChan)
	})
	<-r.doneChan
}

func (r *Runner) run() {
	defer close(r.doneChan)

	timer := time.NewTimer(r.interval())
	defer timer.Stop()

	for {
		select {
		case <-r.stopChan:
			return
		case now := <-timer.C:
			r.controller.Step(now)
			timer.Reset(r.interval())
		}
	}
}
