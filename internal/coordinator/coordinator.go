// Package coordinator implements the bounded worker pool and bounded work
// queue (§4.6): one driver goroutine per host feeds a shared, depth-limited
// queue; a fixed pool of workers drains it, calling the analyzer and
// re-posting any archive members it returns instead of recursing, per §9's
// "avoid recursive function calls across archive boundaries" design note.
package coordinator

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smartshare/hunter/internal/analyzer"
	"github.com/smartshare/hunter/internal/driver"
	"github.com/smartshare/hunter/internal/fserrors"
	"github.com/smartshare/hunter/internal/logging"
	"github.com/smartshare/hunter/internal/model"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// DefaultDrainTimeout is the value Config.DrainTimeout takes when unset.
// Run does not apply it: Run returns once every driver and worker goroutine
// has returned, with no deadline on in-flight work.
const DefaultDrainTimeout = 30 * time.Second

// HostTarget is one driver invocation: a host to enumerate, the
// credentials it should use, and the roots to walk.
type HostTarget struct {
	Host  model.Host
	Creds driver.Credentials
	Roots []string
}

// Summary is the run report emitted on clean or aborted shutdown (§9
// Supplemented Features "Collection summary").
type Summary struct {
	HostsEnumerated int
	FilesInspected  int
	UniqueContents  int
	MatchesByCategory map[string]int
	Aborted         bool
	AbortErr        error
}

// Config controls pool sizing. Zero values fall back to the defaults named
// in §4.6.
type Config struct {
	// WorkerCount is the bounded worker pool size. Defaults to
	// runtime.NumCPU().
	WorkerCount int
	// QueueDepth is the bounded work queue capacity. Defaults to
	// 4*WorkerCount.
	QueueDepth int
	// MaxConcurrentArchiveExtractions bounds how many Analyze calls (and so
	// any archive extraction inside them) run at once, independent of the
	// worker pool size. Defaults to WorkerCount.
	MaxConcurrentArchiveExtractions int64
	// DrainTimeout overrides DefaultDrainTimeout. It is stored but not
	// read by Run.
	DrainTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.WorkerCount <= 0 {
		c.WorkerCount = runtime.NumCPU()
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = 4 * c.WorkerCount
	}
	if c.MaxConcurrentArchiveExtractions <= 0 {
		c.MaxConcurrentArchiveExtractions = int64(c.WorkerCount)
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = DefaultDrainTimeout
	}
	return c
}

// Drivers maps a protocol to the driver that serves it.
type Drivers map[model.Protocol]driver.Driver

// Coordinator owns the work queue, the worker pool, and the per-host
// driver goroutines for one collection run against one workspace.
type Coordinator struct {
	workspace string
	drivers   Drivers
	analyzer  *analyzer.Analyzer
	cfg       Config

	queue chan analyzer.FileRef
	sem   *semaphore.Weighted

	// pending counts FileRefs that are queued or being processed, i.e. not
	// yet safe to consider the queue drained. It is incremented by enqueue
	// before the channel send and decremented by worker only once
	// processing the dequeued item fully completes, so it never reads as
	// zero while an item is in flight between those two points.
	pending        int64
	filesInspected int64
}

// New constructs a Coordinator. workspace and rules must already be
// committed to the store via PutRuleSnapshot by the caller.
func New(workspace string, drivers Drivers, an *analyzer.Analyzer, cfg Config) *Coordinator {
	cfg = cfg.withDefaults()
	return &Coordinator{
		workspace: workspace,
		drivers:   drivers,
		analyzer:  an,
		cfg:       cfg,
		queue:     make(chan analyzer.FileRef, cfg.QueueDepth),
		sem:       semaphore.NewWeighted(cfg.MaxConcurrentArchiveExtractions),
	}
}

// Run enumerates every target, analyzing everything discovered, until all
// drivers are exhausted and the queue drains clean (a), a fatal error
// surfaces from any component (b), or ctx is cancelled (c) (§4.6 shutdown
// triggers). It always returns a Summary, even on abort.
func (c *Coordinator) Run(ctx context.Context, targets []HostTarget) (Summary, error) {
	log := logging.For("coordinator")
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var fatalErr atomic.Value // error
	recordFatal := func(err error) {
		if err == nil {
			return
		}
		fatalErr.CompareAndSwap(nil, err)
		cancel()
	}

	g, gctx := errgroup.WithContext(runCtx)

	// Producers: one goroutine per host target, feeding the shared queue.
	var producersDone sync.WaitGroup
	producersDone.Add(len(targets))
	for _, target := range targets {
		target := target
		g.Go(func() error {
			defer producersDone.Done()
			return c.enumerateHost(gctx, target, recordFatal)
		})
	}

	// Closer: once every producer goroutine returns, no more FileRefs will
	// ever be posted by a producer, but workers may still repost archive
	// members. closeQueueWhenDrained closes the queue once producers are done AND
	// no worker currently holds a reference it might still repost from. It
	// also gives up once gctx is cancelled, so it never leaks past Run.
	producersFinished := make(chan struct{})
	go func() {
		producersDone.Wait()
		close(producersFinished)
	}()
	go c.closeQueueWhenDrained(gctx, producersFinished)

	// Workers: fixed pool draining the queue.
	for i := 0; i < c.cfg.WorkerCount; i++ {
		workerID := i
		g.Go(func() error {
			return c.worker(gctx, workerID, recordFatal)
		})
	}

	err := g.Wait()

	summary := c.summary(len(targets))
	if f, ok := fatalErr.Load().(error); ok && f != nil {
		summary.Aborted = true
		summary.AbortErr = f
		log.WithError(f).Error("collection run aborted")
		return summary, f
	}
	if err != nil && err != context.Canceled {
		summary.Aborted = true
		summary.AbortErr = err
		return summary, err
	}
	return summary, nil
}

func (c *Coordinator) enumerateHost(ctx context.Context, target HostTarget, recordFatal func(error)) error {
	log := logging.WithHost(string(target.Host.Protocol), target.Host.Address)
	drv, ok := c.drivers[target.Host.Protocol]
	if !ok {
		err := fserrors.Fatal(fmt.Errorf("coordinator: no driver registered for protocol %q", target.Host.Protocol))
		recordFatal(err)
		return err
	}

	done, err := c.analyzer.Store.HostCompleted(ctx, c.workspace, target.Host)
	if err != nil {
		return err
	}
	if done {
		log.Info("host already marked complete, skipping")
		return nil
	}

	refs, errc := drv.Enumerate(ctx, target.Host, target.Creds, target.Roots)
	for ref := range refs {
		if !c.enqueue(ctx, ref) {
			return ctx.Err()
		}
	}
	if err := <-errc; err != nil {
		if fserrors.IsFatal(err) {
			recordFatal(err)
		}
		return err
	}
	return c.analyzer.Store.MarkHostComplete(ctx, c.workspace, target.Host)
}

// closeQueueWhenDrained closes the queue once producersFinished has fired
// and c.pending reads zero: nothing queued, and no worker is still holding
// an item it might yet repost a member from. It polls rather than requiring
// a rendezvous protocol from workers, since a worker may post an arbitrary
// number of archive-member FileRefs back onto the queue after dequeuing one
// item. It exits without closing the queue if ctx is cancelled first, so a
// cancelled run with undrained items never leaks this goroutine.
func (c *Coordinator) closeQueueWhenDrained(ctx context.Context, producersFinished <-chan struct{}) {
	select {
	case <-producersFinished:
	case <-ctx.Done():
		return
	}

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if atomic.LoadInt64(&c.pending) == 0 {
				close(c.queue)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// enqueue posts ref onto the queue, accounting it in c.pending before the
// send completes. Counting before rather than after the corresponding
// receive closes the TOCTOU window closeQueueWhenDrained would otherwise
// see: an item can never be "dequeued but not yet counted".
func (c *Coordinator) enqueue(ctx context.Context, ref analyzer.FileRef) bool {
	atomic.AddInt64(&c.pending, 1)
	select {
	case c.queue <- ref:
		return true
	case <-ctx.Done():
		atomic.AddInt64(&c.pending, -1)
		return false
	}
}

func (c *Coordinator) worker(ctx context.Context, id int, recordFatal func(error)) error {
	log := logging.For("coordinator").WithField("worker_id", id)
	for {
		select {
		case ref, ok := <-c.queue:
			if !ok {
				return nil
			}
			err := c.process(ctx, ref)
			atomic.AddInt64(&c.pending, -1)
			if err != nil {
				if fserrors.IsFatal(err) {
					recordFatal(err)
					return err
				}
				log.WithError(err).Warn("analyze failed, continuing")
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// process runs one FileRef through the analyzer and re-posts every
// returned archive member onto the same queue, honoring §9's re-entry
// discipline: no recursive call ever analyzes a member inline.
func (c *Coordinator) process(ctx context.Context, ref analyzer.FileRef) error {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	pending, err := c.analyzer.Analyze(ctx, ref)
	c.sem.Release(1)
	if err != nil {
		return err
	}

	atomic.AddInt64(&c.filesInspected, 1)

	for _, member := range pending {
		if !c.enqueue(ctx, member) {
			return ctx.Err()
		}
	}
	return nil
}

func (c *Coordinator) summary(hostsEnumerated int) Summary {
	rows, err := c.analyzer.Store.ListForReview(context.Background(), c.workspace)
	unique := 0
	byRelevance := map[string]int{}
	if err == nil {
		unique = len(rows)
		for _, row := range rows {
			byRelevance[row.Category]++
		}
	}
	return Summary{
		HostsEnumerated:   hostsEnumerated,
		FilesInspected:    int(atomic.LoadInt64(&c.filesInspected)),
		UniqueContents:    unique,
		MatchesByCategory: byRelevance,
	}
}
