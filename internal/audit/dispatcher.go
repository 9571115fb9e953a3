package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/restartcheck/restartcheck/internal/probe"
)

// outcome is what a worker delivers for one probe: either a result or an
// error, never both.
type outcome struct {
	result probe.Result
	err    error
}

// Handle is the future for one submitted probe. It resolves exactly once.
type Handle struct {
	done chan outcome
}

// ProbeJob pairs a submitted node with the handle its answer arrives on.
type ProbeJob struct {
	Node   NodeTarget
	Handle *Handle
}

// Dispatcher runs probes on a fixed pool of workers. The pool size is the
// throttle limit: it is allocated once at construction and never grows, so
// at most that many probes execute at any instant regardless of fleet size.
type Dispatcher struct {
	prober  probe.Prober
	timeout time.Duration
	ctx     context.Context
	jobs    chan ProbeJob
	wg      sync.WaitGroup

	inFlight atomic.Int64
	peak     atomic.Int64
}

// NewDispatcher starts limit workers sharing prober. Each probe runs under
// its own timeout derived from ctx, so cancelling ctx makes in-flight probes
// fail fast while still resolving every handle.
//
// limit must be within the throttle bounds; validate before calling.
func NewDispatcher(ctx context.Context, prober probe.Prober, limit int, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	d := &Dispatcher{
		prober:  prober,
		timeout: timeout,
		ctx:     ctx,
		jobs:    make(chan ProbeJob),
	}
	d.wg.Add(limit)
	for i := 0; i < limit; i++ {
		go d.worker()
	}
	return d
}

// Submit hands node to an idle worker and returns immediately with the
// handle. When every worker is busy it blocks until one frees up, so
// submissions never queue up ahead of the pool.
//
// Submit must not be called after Shutdown.
func (d *Dispatcher) Submit(node NodeTarget) *Handle {
	h := &Handle{done: make(chan outcome, 1)}
	d.jobs <- ProbeJob{Node: node, Handle: h}
	return h
}

// Shutdown stops intake and waits for in-flight probes to finish.
func (d *Dispatcher) Shutdown() {
	close(d.jobs)
	d.wg.Wait()
}

// Peak reports the highest number of probes seen executing at once.
func (d *Dispatcher) Peak() int {
	return int(d.peak.Load())
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for job := range d.jobs {
		cur := d.inFlight.Add(1)
		for {
			p := d.peak.Load()
			if cur <= p {
				break
			}
			if d.peak.CompareAndSwap(p, cur) {
				probePeakInFlight.Set(float64(cur))
				break
			}
		}
		probesInFlight.Inc()

		res, err := d.checkOne(job.Node)
		job.Handle.done <- outcome{result: res, err: err}

		probesInFlight.Dec()
		d.inFlight.Add(-1)
	}
}

// checkOne runs a single probe under the configured timeout. A panicking
// prober is converted into a failure so one bad node cannot kill a worker
// and wedge every handle behind it.
func (d *Dispatcher) checkOne(node NodeTarget) (res probe.Result, err error) {
	ctx, cancel := context.WithTimeout(d.ctx, d.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			res = probe.Result{}
			err = probe.Errorf(probe.KindUnexpected, "probe panicked: %v", r)
		}
	}()
	return d.prober.Check(ctx, node.ProbeAddress())
}
