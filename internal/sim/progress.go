package sim

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Reporter hands the latest completion fraction from the simulation thread
// to a rendering goroutine through a single slot. Publish overwrites any
// unread value and the render loop reads destructively, so stale fractions
// are dropped by design: only the freshest matters.
type Reporter struct {
	mu      sync.Mutex
	value   float64
	present bool

	w        io.Writer
	interval time.Duration

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewReporter(w io.Writer) *Reporter {
	if w == nil {
		w = io.Discard
	}
	return &Reporter{
		w:        w,
		interval: 40 * time.Millisecond,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Publish stores fraction (clamped to [0,1]) as the newest value. It never
// blocks the caller.
func (r *Reporter) Publish(fraction float64) {
	if fraction < 0 {
		fraction = 0
	} else if fraction > 1 {
		fraction = 1
	}
	r.mu.Lock()
	r.value = fraction
	r.present = true
	r.mu.Unlock()
}

func (r *Reporter) take() (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.present {
		return 0, false
	}
	r.present = false
	return r.value, true
}

// Start launches the render loop. The lifecycle is one-shot: Start once at
// simulation init, Stop once at the end, no restart.
func (r *Reporter) Start() {
	go func() {
		defer close(r.done)
		for {
			if v, ok := r.take(); ok {
				fmt.Fprintf(r.w, "\rCompleted: %6.2f%%", v*100)
			}
			select {
			case <-r.stop:
				return
			case <-time.After(r.interval):
			}
		}
	}()
}

// Stop signals the render loop and waits for it to exit. An in-flight render
// is never interrupted mid-output.
func (r *Reporter) Stop() {
	r.stopOnce.Do(func() {
		close(r.stop)
	})
	<-r.done
}
