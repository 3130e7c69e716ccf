// Package pacer implements the exponential decay/attack backoff used by the
// enumeration drivers for transient I/O (§7): at least 3 attempts, bounded
// exponential backoff. The dedup store runs its own retry loop
// (store.withRetry) and does not use this package.
package pacer

import (
	"context"
	"sync"
	"time"

	"github.com/smartshare/hunter/internal/fserrors"
)

// State is the mutable sleep/retry state a Calculator advances.
type State struct {
	SleepTime          time.Duration
	ConsecutiveRetries uint
}

// Calculator computes the next sleep duration from the current state.
type Calculator interface {
	Calculate(State) time.Duration
}

// Default is the teacher's decay-on-success, attack-on-retry calculator:
// sleep decays towards minSleep on success and grows towards maxSleep on
// consecutive retries.
type Default struct {
	minSleep       time.Duration
	maxSleep       time.Duration
	decayConstant  uint
	attackConstant uint
}

// Option configures a Default calculator or a Pacer.
type Option func(*options)

type options struct {
	minSleep       time.Duration
	maxSleep       time.Duration
	decayConstant  uint
	attackConstant uint
	retries        int
	maxConnections int
}

func defaultOptions() options {
	return options{
		minSleep:       10 * time.Millisecond,
		maxSleep:       2 * time.Second,
		decayConstant:  2,
		attackConstant: 1,
		retries:        3,
	}
}

// MinSleep sets the minimum sleep duration.
func MinSleep(d time.Duration) Option { return func(o *options) { o.minSleep = d } }

// MaxSleep sets the maximum sleep duration.
func MaxSleep(d time.Duration) Option { return func(o *options) { o.maxSleep = d } }

// DecayConstant sets how fast sleep decays after a success; bigger is slower.
func DecayConstant(c uint) Option { return func(o *options) { o.decayConstant = c } }

// AttackConstant sets how fast sleep grows after a retry; bigger is slower.
func AttackConstant(c uint) Option { return func(o *options) { o.attackConstant = c } }

// RetriesOption sets the number of attempts Call will make before giving up.
// The spec requires at least 3 (§4.2, §7).
func RetriesOption(n int) Option { return func(o *options) { o.retries = n } }

// MaxConnectionsOption bounds concurrent in-flight Call invocations across
// one Pacer; 0 means unbounded.
func MaxConnectionsOption(n int) Option { return func(o *options) { o.maxConnections = n } }

// NewDefault builds a Default calculator from options.
func NewDefault(opts ...Option) *Default {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Default{
		minSleep:       o.minSleep,
		maxSleep:       o.maxSleep,
		decayConstant:  o.decayConstant,
		attackConstant: o.attackConstant,
	}
}

// Calculate implements Calculator: decay towards minSleep, attack on retry.
func (d *Default) Calculate(s State) time.Duration {
	sleepTime := s.SleepTime
	if s.ConsecutiveRetries == 0 {
		// success: decay
		if d.decayConstant > 0 {
			sleepTime = (sleepTime*time.Duration(d.decayConstant) - sleepTime) / time.Duration(d.decayConstant)
		} else {
			sleepTime = d.minSleep
		}
	} else {
		// retry: attack
		if d.attackConstant == 0 {
			sleepTime = d.maxSleep
		} else {
			sleepTime = sleepTime + (sleepTime*time.Duration(s.ConsecutiveRetries))/time.Duration(d.attackConstant)
		}
	}
	if sleepTime < d.minSleep {
		sleepTime = d.minSleep
	}
	if sleepTime > d.maxSleep {
		sleepTime = d.maxSleep
	}
	return sleepTime
}

// Pacer serializes and paces calls to an unreliable resource, retrying
// transient failures with backoff computed by its Calculator.
type Pacer struct {
	mu             sync.Mutex
	calculator     Calculator
	state          State
	retries        int
	pacer          chan struct{} // single-slot token controlling call pacing
	maxConnections int
	connTokens     chan struct{}
}

// New builds a Pacer with a Default calculator unless overridden.
func New(opts ...Option) *Pacer {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	p := &Pacer{
		calculator: &Default{minSleep: o.minSleep, maxSleep: o.maxSleep, decayConstant: o.decayConstant, attackConstant: o.attackConstant},
		retries:    o.retries,
		pacer:      make(chan struct{}, 1),
	}
	p.state.SleepTime = o.minSleep
	p.pacer <- struct{}{}
	p.SetMaxConnections(o.maxConnections)
	return p
}

// SetMaxConnections changes the number of permitted concurrent calls; 0
// disables the limit.
func (p *Pacer) SetMaxConnections(n int) {
	p.maxConnections = n
	if n <= 0 {
		p.connTokens = nil
		return
	}
	p.connTokens = make(chan struct{}, n)
	for i := 0; i < n; i++ {
		p.connTokens <- struct{}{}
	}
}

// SetRetries changes the number of attempts Call will make.
func (p *Pacer) SetRetries(n int) { p.retries = n }

// Fn is the function Call invokes: it returns (retry, err). If retry is
// true and err is non-nil, Call sleeps and tries again (up to p.retries
// attempts total).
type Fn func() (bool, error)

// Call invokes fn, retrying on transient failure per the configured
// Calculator, up to p.retries attempts, honoring ctx cancellation between
// attempts.
func (p *Pacer) Call(ctx context.Context, fn Fn) error {
	if p.connTokens != nil {
		select {
		case <-p.connTokens:
			defer func() { p.connTokens <- struct{}{} }()
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	var lastErr error
	for attempt := 0; attempt < max(p.retries, 1); attempt++ {
		<-p.pacer
		p.mu.Lock()
		sleep := p.calculator.Calculate(p.state)
		p.state.SleepTime = sleep
		p.mu.Unlock()
		if attempt > 0 {
			select {
			case <-time.After(sleep):
			case <-ctx.Done():
				p.pacer <- struct{}{}
				return ctx.Err()
			}
		}

		retry, err := fn()
		p.mu.Lock()
		if err == nil {
			p.state.ConsecutiveRetries = 0
		} else {
			p.state.ConsecutiveRetries++
		}
		p.mu.Unlock()
		p.pacer <- struct{}{}

		if err == nil {
			return nil
		}
		lastErr = err
		if !retry || fserrors.IsNoRetry(err) || fserrors.IsFatal(err) {
			return err
		}
	}
	return lastErr
}
