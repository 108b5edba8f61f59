package queue

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/swarmworks/hivegate/src/models"
	"github.com/swarmworks/hivegate/src/registry"
	"github.com/swarmworks/hivegate/src/router"
)

// State of a queue entry. At most one entry holds StateDispatched at any
// time; the single worker owns the only active slot.
type State int

const (
	StateQueued State = iota
	StateDispatched
	StateCompleted
	StateFailed
)

// Outcome is what an entry's completion handle resolves to. Exactly one of
// Response or Err is set; the wire layer never sees a partial success.
type Outcome struct {
	Response *models.ChatResponse
	Backend  string
	Err      error
}

// Entry is one unit of queued work: the immutable request envelope plus
// the bookkeeping the dispatcher needs. Never persisted; a restart drops
// queued work by design.
type Entry struct {
	ID         string
	Request    *models.ChatRequest
	Priority   models.Priority
	Complexity models.Complexity
	Backend    string // explicit override, usually empty
	EnqueuedAt time.Time

	retries int // 0 or 1, one fallback attempt at most
	state   State
	done    chan Outcome
}

func NewEntry(req *models.ChatRequest, priority models.Priority, complexity models.Complexity, backend string) *Entry {
	if priority != models.PriorityHigh {
		priority = models.PriorityLow
	}
	return &Entry{
		ID:         uuid.NewString(),
		Request:    req,
		Priority:   priority,
		Complexity: complexity,
		Backend:    backend,
		done:       make(chan Outcome, 1),
	}
}

// Wait blocks until the dispatcher resolves this entry. Abandoning the
// wait does not retract the entry; the work still executes, since it may
// already be billed on the backend side.
func (e *Entry) Wait() Outcome {
	return <-e.done
}

func (e *Entry) State() State {
	return e.state
}

type Config struct {
	Capacity       int           // admission ceiling, default 100
	RequestTimeout time.Duration // bounds the backend invocation only
}

type counters struct {
	total            int64
	highPriority     int64
	lowPriority      int64
	completed        int64
	failed           int64
	promptTokens     int64
	completionTokens int64
	latencyMs        float64
	peakDepth        int
}

// Dispatcher owns the bounded two-tier queue and the single active work
// slot that serializes access to the accelerator. One long-lived worker
// pulls entries, asks the router for a backend, invokes it, and retries
// once against an alternative on connection or timeout failure.
type Dispatcher struct {
	reg    *registry.Registry
	router *router.Router

	capacity int
	timeout  time.Duration

	mu           sync.Mutex
	high         []*Entry
	low          []*Entry
	inFlight     int
	shuttingDown bool
	stats        counters

	notify chan struct{}
	halted chan struct{}
}

func NewDispatcher(reg *registry.Registry, rt *router.Router, cfg Config) *Dispatcher {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 100
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 300 * time.Second
	}
	return &Dispatcher{
		reg:      reg,
		router:   rt,
		capacity: cfg.Capacity,
		timeout:  cfg.RequestTimeout,
		notify:   make(chan struct{}, 1),
		halted:   make(chan struct{}),
	}
}

// Enqueue admits an entry or rejects it without touching the queue.
func (d *Dispatcher) Enqueue(e *Entry) error {
	d.mu.Lock()
	if d.shuttingDown {
		d.mu.Unlock()
		return models.ErrShuttingDown
	}
	depth := len(d.high) + len(d.low)
	if depth >= d.capacity {
		d.mu.Unlock()
		return models.ErrQueueFull
	}

	e.state = StateQueued
	e.EnqueuedAt = time.Now()
	if e.Priority == models.PriorityHigh {
		d.high = append(d.high, e)
		d.stats.highPriority++
	} else {
		d.low = append(d.low, e)
		d.stats.lowPriority++
	}
	d.stats.total++
	if depth+1 > d.stats.peakDepth {
		d.stats.peakDepth = depth + 1
	}
	d.mu.Unlock()

	d.wake()
	return nil
}

func (d *Dispatcher) wake() {
	select {
	case d.notify <- struct{}{}:
	default:
	}
}

// Run is the worker loop. It suspends on an empty queue and exits only on
// Shutdown. Call it from exactly one goroutine.
func (d *Dispatcher) Run() {
	defer close(d.halted)
	for {
		e, ok := d.next()
		if !ok {
			return
		}
		d.dispatch(e)
	}
}

// next pulls the next entry, draining the high sub-queue fully before low,
// FIFO within each. Blocks until work arrives or shutdown begins.
func (d *Dispatcher) next() (*Entry, bool) {
	for {
		d.mu.Lock()
		if d.shuttingDown {
			d.mu.Unlock()
			return nil, false
		}
		var e *Entry
		if len(d.high) > 0 {
			e = d.high[0]
			d.high = d.high[1:]
		} else if len(d.low) > 0 {
			e = d.low[0]
			d.low = d.low[1:]
		}
		if e != nil {
			e.state = StateDispatched
			d.inFlight = 1
			d.mu.Unlock()
			return e, true
		}
		d.mu.Unlock()
		<-d.notify
	}
}

// dispatch resolves a backend, invokes it, and on a retryable failure
// re-resolves once with the failed backend excluded. The exclusion is
// scoped to this entry; availability state is not touched.
func (d *Dispatcher) dispatch(e *Entry) {
	start := time.Now()
	exclude := ""
	var firstErr error

	for {
		name, err := d.router.Resolve(e.Priority, e.Complexity, e.Backend, exclude)
		if err != nil {
			if firstErr != nil {
				// No alternative after a failed attempt: surface the
				// original backend error, not the routing miss.
				err = firstErr
			}
			d.fail(e, err, start)
			return
		}

		backend, err := d.reg.Get(name)
		if err != nil {
			d.fail(e, err, start)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		resp, err := backend.Client.Invoke(ctx, e.Request)
		cancel()

		if err == nil {
			resp.Backend = name
			d.complete(e, resp, name, start)
			return
		}

		if !models.IsRetryable(err) {
			d.fail(e, err, start)
			return
		}
		if firstErr == nil {
			firstErr = err
		}
		if e.retries >= 1 {
			d.fail(e, firstErr, start)
			return
		}
		e.retries++
		exclude = name
		log.Printf("backend %s failed (%v), retrying against alternative", name, err)
	}
}

func (d *Dispatcher) complete(e *Entry, resp *models.ChatResponse, backend string, start time.Time) {
	elapsed := time.Since(start)

	d.mu.Lock()
	e.state = StateCompleted
	d.inFlight = 0
	d.stats.completed++
	d.stats.latencyMs += float64(elapsed.Milliseconds())
	d.stats.promptTokens += int64(resp.Usage.PromptTokens)
	d.stats.completionTokens += int64(resp.Usage.CompletionTokens)
	d.mu.Unlock()

	e.done <- Outcome{Response: resp, Backend: backend}
}

func (d *Dispatcher) fail(e *Entry, err error, start time.Time) {
	elapsed := time.Since(start)

	d.mu.Lock()
	e.state = StateFailed
	d.inFlight = 0
	d.stats.failed++
	d.stats.latencyMs += float64(elapsed.Milliseconds())
	d.mu.Unlock()

	e.done <- Outcome{Err: err}
}

// Shutdown stops intake, fails every queued entry with ShuttingDown, and
// waits for the worker to finish any in-flight dispatch. Queued work is
// never silently dropped.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if d.shuttingDown {
		d.mu.Unlock()
		select {
		case <-d.halted:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	d.shuttingDown = true
	drained := make([]*Entry, 0, len(d.high)+len(d.low))
	drained = append(drained, d.high...)
	drained = append(drained, d.low...)
	d.high, d.low = nil, nil
	d.stats.failed += int64(len(drained))
	d.mu.Unlock()

	for _, e := range drained {
		e.state = StateFailed
		e.done <- Outcome{Err: models.ErrShuttingDown}
	}
	if len(drained) > 0 {
		log.Printf("shutdown: failed %d queued entries", len(drained))
	}

	d.wake()
	select {
	case <-d.halted:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Depth is the current number of queued (not in-flight) entries.
func (d *Dispatcher) Depth() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.high) + len(d.low)
}

func (d *Dispatcher) InFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inFlight
}

// Stats returns a consistent snapshot of the counters. Readers never see
// a mutation in progress.
func (d *Dispatcher) Stats() models.StatsSnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := models.StatsSnapshot{
		TotalRequests:         d.stats.total,
		HighPriorityRequests:  d.stats.highPriority,
		LowPriorityRequests:   d.stats.lowPriority,
		CompletedRequests:     d.stats.completed,
		FailedRequests:        d.stats.failed,
		TotalPromptTokens:     d.stats.promptTokens,
		TotalCompletionTokens: d.stats.completionTokens,
		CumulativeLatencyMs:   d.stats.latencyMs,
		QueueDepth:            len(d.high) + len(d.low),
		PeakQueueDepth:        d.stats.peakDepth,
		InFlight:              d.inFlight,
	}
	if resolved := d.stats.completed + d.stats.failed; resolved > 0 {
		s.MeanLatencyMs = d.stats.latencyMs / float64(resolved)
	}
	return s
}
