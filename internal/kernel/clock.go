package kernel

import "time"

// TickerClock drives a kernel's tick counter from wall time, standing in
// for a hardware timer interrupt. Each period elapsed calls Kernel.Tick
// from its own goroutine, which is exactly the interrupt-context contract.
type TickerClock struct {
	k      *Kernel
	period time.Duration
	stop   chan struct{}
	done   chan struct{}
}

// NewTickerClock creates a clock ticking every period. The clock is
// stopped until Start.
func NewTickerClock(k *Kernel, period time.Duration) *TickerClock {
	if period <= 0 {
		period = time.Millisecond
	}
	return &TickerClock{k: k, period: period}
}

// Start begins delivering ticks.
func (c *TickerClock) Start() {
	if c.stop != nil {
		return
	}
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go func() {
		t := time.NewTicker(c.period)
		defer t.Stop()
		defer close(c.done)
		for {
			select {
			case <-t.C:
				c.k.Tick()
			case <-c.stop:
				return
			}
		}
	}()
}

// Stop halts tick delivery and waits for the clock goroutine to exit.
func (c *TickerClock) Stop() {
	if c.stop == nil {
		return
	}
	close(c.stop)
	<-c.done
	c.stop = nil
	c.done = nil
}
