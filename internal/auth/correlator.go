package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zooyoda/workspace-mcp/internal/logging"
)

// DefaultCallbackTimeout is how long a pending authorization waits for the
// provider redirect before it is rejected.
const DefaultCallbackTimeout = 5 * time.Minute

type callbackResult struct {
	code string
	err  error
}

// PendingAuthorization is the handle for one in-flight authorization. It is
// terminated exactly once: by delivery of a code, a provider error, or the
// deadline.
type PendingAuthorization struct {
	state    string
	seq      uint64
	deadline time.Time
	done     chan callbackResult
}

// State returns the opaque random state token identifying this authorization.
func (p *PendingAuthorization) State() string {
	return p.state
}

// CallbackCorrelator matches inbound authorization redirects to the in-flight
// requests waiting for them. It is an in-process rendezvous point with no
// persistence; pending entries die with the process.
type CallbackCorrelator struct {
	mu      sync.Mutex
	pending map[string]*PendingAuthorization
	timeout time.Duration
	seq     uint64
	logger  *slog.Logger
	now     func() time.Time
}

// NewCallbackCorrelator creates a correlator with the default 5-minute
// callback deadline.
func NewCallbackCorrelator(logger *slog.Logger) *CallbackCorrelator {
	return NewCallbackCorrelatorWithTimeout(DefaultCallbackTimeout, logger)
}

// NewCallbackCorrelatorWithTimeout creates a correlator with a custom
// deadline, used by tests.
func NewCallbackCorrelatorWithTimeout(timeout time.Duration, logger *slog.Logger) *CallbackCorrelator {
	if logger == nil {
		logger = slog.Default()
	}
	return &CallbackCorrelator{
		pending: make(map[string]*PendingAuthorization),
		timeout: timeout,
		logger:  logger,
		now:     time.Now,
	}
}

// Begin registers a new pending authorization and returns its handle. The
// caller embeds the handle's state in the authorization URL, then calls Wait.
func (c *CallbackCorrelator) Begin() *PendingAuthorization {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	p := &PendingAuthorization{
		state:    uuid.NewString(),
		seq:      c.seq,
		deadline: c.now().Add(c.timeout),
		done:     make(chan callbackResult, 1),
	}
	c.pending[p.state] = p

	c.logger.Debug("registered pending authorization",
		slog.String(logging.KeyState, p.state),
		slog.Time("deadline", p.deadline))
	return p
}

// Wait blocks until the authorization is delivered, the deadline passes, or
// ctx is cancelled. It returns the authorization code on success.
func (c *CallbackCorrelator) Wait(ctx context.Context, p *PendingAuthorization) (string, error) {
	timer := time.NewTimer(time.Until(p.deadline))
	defer timer.Stop()

	select {
	case res := <-p.done:
		return res.code, res.err
	case <-timer.C:
		c.expire(p)
		// Delivery may have raced the timer; prefer the delivered result.
		select {
		case res := <-p.done:
			return res.code, res.err
		default:
		}
		return "", &CallbackTimeoutError{State: p.state}
	case <-ctx.Done():
		c.expire(p)
		return "", ctx.Err()
	}
}

// expire removes a pending entry that will no longer accept delivery.
func (c *CallbackCorrelator) expire(p *PendingAuthorization) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, p.state)
}

// Deliver routes an inbound authorization redirect to waiting requests.
//
// A provider error rejects only the entry matching state. A code first
// resolves the earliest-registered pending entry unconditionally (state-less
// fallback for single-tenant flows), then additionally resolves the entry
// matching state if it is still pending. Delivery to an already-terminated
// entry is a no-op.
func (c *CallbackCorrelator) Deliver(code, state string, providerErr error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if providerErr != nil {
		if p, ok := c.pending[state]; ok {
			c.resolveLocked(p, callbackResult{err: providerErr})
		} else {
			c.logger.Warn("provider error with no matching pending authorization",
				logging.Err(providerErr))
		}
		return
	}

	if code == "" {
		c.logger.Warn("callback delivered neither code nor error")
		return
	}

	if earliest := c.earliestLocked(); earliest != nil {
		if len(c.pending) > 1 {
			// With several authorizations in flight the state-less fallback can
			// misattribute the code; the state match below is authoritative.
			c.logger.Warn("multiple pending authorizations, state-less delivery resolves the earliest",
				slog.Int("pending", len(c.pending)))
		}
		c.resolveLocked(earliest, callbackResult{code: code})
	}

	if p, ok := c.pending[state]; ok {
		c.resolveLocked(p, callbackResult{code: code})
	}
}

// PendingCount returns the number of authorizations currently waiting.
func (c *CallbackCorrelator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *CallbackCorrelator) earliestLocked() *PendingAuthorization {
	var earliest *PendingAuthorization
	for _, p := range c.pending {
		if earliest == nil || p.seq < earliest.seq {
			earliest = p
		}
	}
	return earliest
}

func (c *CallbackCorrelator) resolveLocked(p *PendingAuthorization, res callbackResult) {
	delete(c.pending, p.state)
	p.done <- res
}
