package main

import (
	"fmt"
	"sync/atomic"
	"time"
)

const progressUpdateInterval = 100 * time.Millisecond

// ProgressPrinter displays a single-line progress message with elapsed time.
//
// Usage:
//
//	p := NewProgressPrinter("Scanning", "Starting")
//	p.Start()
//	defer p.Stop()
//
// A ProgressPrinter is single-use: Start may be called at most once and the
// instance cannot be restarted after Stop.
type ProgressPrinter struct {
	prefix    string
	phase     atomic.Value // current phase name
	startTime time.Time
	stopChan  chan struct{}
	done      chan struct{}
	started   atomic.Bool
	stopped   atomic.Bool
}

// NewProgressPrinter creates a progress printer showing elapsed time.
func NewProgressPrinter(prefix, phase string) *ProgressPrinter {
	p := &ProgressPrinter{prefix: prefix}
	p.phase.Store(phase)
	return p
}

// SetPhase updates the displayed phase name.
func (p *ProgressPrinter) SetPhase(phase string) {
	p.phase.Store(phase)
}

// Start begins displaying progress updates in a background goroutine.
// Panics if called more than once.
func (p *ProgressPrinter) Start() {
	if !p.started.CompareAndSwap(false, true) {
		panic("ProgressPrinter.Start called more than once")
	}

	p.stopChan = make(chan struct{})
	p.done = make(chan struct{})
	p.startTime = time.Now()

	fmt.Printf("\r%s (%s...)   ", p.prefix, p.phase.Load().(string))

	go func() {
		defer close(p.done)
		ticker := time.NewTicker(progressUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-p.stopChan:
				return
			case <-ticker.C:
				elapsed := int(time.Since(p.startTime).Seconds())
				if elapsed > 0 {
					fmt.Printf("\r%s (%s %ds)   ", p.prefix, p.phase.Load().(string), elapsed)
				} else {
					fmt.Printf("\r%s (%s...)   ", p.prefix, p.phase.Load().(string))
				}
			}
		}
	}()
}

// Stop terminates the display and clears the progress line. Safe to call
// more than once; only the first call has effect.
func (p *ProgressPrinter) Stop() {
	if !p.started.Load() || !p.stopped.CompareAndSwap(false, true) {
		return
	}
	close(p.stopChan)
	<-p.done
	fmt.Print("\r\033[K")
}
