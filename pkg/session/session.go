// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-identity.
//
// go-identity is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package session runs user authentication prompts. A Session shows at
// most one prompt at a time and remembers successes for the reuse window
// the caller asked for.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/quartz"

	"github.com/jeremyhahn/go-identity/pkg/adapters/audit"
	"github.com/jeremyhahn/go-identity/pkg/adapters/logger"
	"github.com/jeremyhahn/go-identity/pkg/correlation"
	"github.com/jeremyhahn/go-identity/pkg/metrics"
	"github.com/jeremyhahn/go-identity/pkg/platform"
	"github.com/jeremyhahn/go-identity/pkg/policy"
	"github.com/jeremyhahn/go-identity/pkg/types"
)

// MaxReuseDuration caps AllowableReuseDuration, as LocalAuthentication
// does.
const MaxReuseDuration = 5 * time.Minute

// ErrClosed is returned by Authenticate after Close.
var ErrClosed = errors.New("session: closed")

// State is the lifecycle position of a session.
type State int

const (
	StateCreated State = iota
	StatePresenting
	StateSucceeded
	StateFailed
	StateCancelled
	StateInvalidated
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StatePresenting:
		return "presenting"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	case StateInvalidated:
		return "invalidated"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Request describes one authentication prompt.
type Request struct {
	// Reason is shown to the user. Required.
	Reason string `json:"reason"`

	// AllowableReuseDuration lets later calls under the same policy skip
	// the prompt for this long after a success. Capped at
	// MaxReuseDuration.
	AllowableReuseDuration time.Duration `json:"allowableReuseDuration,omitempty"`

	Title         string `json:"title,omitempty"`
	Subtitle      string `json:"subtitle,omitempty"`
	FallbackTitle string `json:"fallbackTitle,omitempty"`
	CancelTitle   string `json:"cancelTitle,omitempty"`

	// Policy overrides the context policy when set.
	Policy types.AuthenticationPolicy `json:"policy,omitempty"`
}

// Callback receives the result of one Authenticate call.
type Callback func(types.AuthenticationResult)

// Completion is the single-shot handle of one Authenticate call.
type Completion struct {
	done   chan struct{}
	result types.AuthenticationResult
}

// Done is closed when the result is available.
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// Wait blocks for the result or until ctx is done.
func (c *Completion) Wait(ctx context.Context) (types.AuthenticationResult, error) {
	select {
	case <-c.done:
		return c.result, nil
	case <-ctx.Done():
		return types.AuthenticationResult{}, ctx.Err()
	}
}

// Result returns the result if it is available.
func (c *Completion) Result() (types.AuthenticationResult, bool) {
	select {
	case <-c.done:
		return c.result, true
	default:
		return types.AuthenticationResult{}, false
	}
}

// Config configures a Session.
type Config struct {
	Policy *policy.Context

	// Clock drives the reuse window. Defaults to the real clock.
	Clock quartz.Clock

	Logger logger.Logger
	Audit  audit.Adapter
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Policy == nil {
		return fmt.Errorf("%w: session: policy context is required", types.ErrInvalidArgument)
	}
	return nil
}

type window struct {
	policy types.AuthenticationPolicy
	until  time.Time
}

// Session serializes prompts on one platform authenticator.
type Session struct {
	policy *policy.Context
	auth   platform.Authenticator
	clock  quartz.Clock
	logger logger.Logger
	audit  audit.Adapter

	mu      sync.Mutex
	state   State
	reuse   *window
	attempt uint64
	cancel  context.CancelFunc
	closed  bool
	wg      sync.WaitGroup
}

// New creates a Session.
func New(config *Config) (*Session, error) {
	if config == nil {
		return nil, fmt.Errorf("%w: session: config is required", types.ErrInvalidArgument)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	s := &Session{
		policy: config.Policy,
		auth:   config.Policy.Authenticator(),
		clock:  config.Clock,
		logger: config.Logger,
		audit:  config.Audit,
	}
	if s.clock == nil {
		s.clock = quartz.NewReal()
	}
	if s.logger == nil {
		s.logger = logger.NewNop()
	}
	if s.audit == nil {
		s.audit = audit.NewNop()
	}
	return s, nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Authenticate prompts the user under the current policy. The result is
// delivered on the returned Completion and, when cb is non-nil, to cb.
// A call made while another prompt is showing completes with Busy.
func (s *Session) Authenticate(ctx context.Context, req Request, cb Callback) (*Completion, error) {
	if req.Reason == "" {
		return nil, fmt.Errorf("%w: reason is required", types.ErrInvalidArgument)
	}
	if req.Policy != 0 && !req.Policy.Valid() {
		return nil, fmt.Errorf("%w: unknown authentication policy %d", types.ErrInvalidArgument, req.Policy)
	}
	if req.AllowableReuseDuration < 0 {
		return nil, fmt.Errorf("%w: negative reuse duration", types.ErrInvalidArgument)
	}
	p := req.Policy
	if p == 0 {
		p = s.policy.AuthenticationPolicy()
	}
	c := &Completion{done: make(chan struct{})}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	switch {
	case s.state == StatePresenting:
		s.wg.Add(1)
		s.mu.Unlock()
		metrics.RecordBusy(metrics.ComponentSession)
		metrics.RecordAuthentication(p.String(), metrics.OutcomeBusy)
		s.logger.DebugContext(ctx, "authentication rejected, prompt already showing")
		go func() {
			defer s.wg.Done()
			deliver(c, cb, types.NewAuthenticationResult(fmt.Errorf("%w: a prompt is already showing", types.ErrBusy)))
		}()
		return c, nil

	case s.reuse != nil && s.reuse.policy == p && s.clock.Now().Before(s.reuse.until):
		s.state = StateSucceeded
		s.wg.Add(1)
		s.mu.Unlock()
		metrics.RecordAuthentication(p.String(), metrics.OutcomeReused)
		s.record(ctx, audit.EventAuthReuse, p, nil)
		s.logger.DebugContext(ctx, "authentication reused", logger.String("policy", p.String()))
		r := types.NewAuthenticationResult(nil)
		r.Reused = true
		go func() {
			defer s.wg.Done()
			deliver(c, cb, r)
		}()
		return c, nil
	}

	s.state = StatePresenting
	s.attempt++
	attempt := s.attempt
	promptCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer cancel()
		s.present(promptCtx, attempt, p, req, c, cb)
	}()
	return c, nil
}

func (s *Session) present(ctx context.Context, attempt uint64, p types.AuthenticationPolicy, req Request, c *Completion, cb Callback) {
	s.logger.DebugContext(ctx, "presenting authentication prompt", logger.String("policy", p.String()))

	d, err := s.auth.Device(ctx)
	if err == nil {
		err = platform.Preflight(d, p)
	}
	if err == nil {
		err = s.auth.Evaluate(ctx, platform.PromptRequest{
			Policy:        p,
			Reason:        req.Reason,
			Title:         req.Title,
			Subtitle:      req.Subtitle,
			FallbackTitle: req.FallbackTitle,
			CancelTitle:   req.CancelTitle,
		})
	}

	s.mu.Lock()
	if s.attempt == attempt {
		s.cancel = nil
		s.state = terminal(err)
		if err == nil && req.AllowableReuseDuration > 0 {
			s.reuse = &window{policy: p, until: s.clock.Now().Add(min(req.AllowableReuseDuration, MaxReuseDuration))}
		}
	} else if err == nil {
		err = fmt.Errorf("%w: session invalidated during prompt", types.ErrInvalidContext)
	}
	s.mu.Unlock()

	if err == nil {
		metrics.RecordAuthentication(p.String(), metrics.OutcomeSuccess)
		s.record(ctx, audit.EventAuthSuccess, p, nil)
		s.logger.InfoContext(ctx, "authentication succeeded", logger.String("policy", p.String()))
	} else {
		metrics.RecordAuthentication(p.String(), metrics.OutcomeFailure)
		s.record(ctx, audit.EventAuthFailure, p, err)
		s.logger.InfoContext(ctx, "authentication failed",
			logger.String("policy", p.String()),
			logger.Code(types.CodeOf(err)),
			logger.Error(err))
	}
	deliver(c, cb, types.NewAuthenticationResult(err))
}

func terminal(err error) State {
	switch types.KindOf(err) {
	case nil:
		return StateSucceeded
	case types.ErrUserCancel, types.ErrSystemCancel, types.ErrAppCancelled:
		return StateCancelled
	}
	return StateFailed
}

// deliver publishes r. It runs on a tracked worker goroutine, never under
// the session lock.
func deliver(c *Completion, cb Callback, r types.AuthenticationResult) {
	c.result = r
	close(c.done)
	if cb != nil {
		cb(r)
	}
}

// Invalidate forgets any reuse window and dismisses an open prompt. It does
// nothing when the session is idle.
func (s *Session) Invalidate() {
	s.mu.Lock()
	presenting := s.state == StatePresenting
	if !presenting && s.reuse == nil {
		s.mu.Unlock()
		return
	}
	s.reuse = nil
	s.state = StateInvalidated
	s.attempt++
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if presenting {
		s.auth.Cancel()
		if cancel != nil {
			cancel()
		}
	}
	s.logger.Info("authentication session invalidated", logger.Bool("prompt_dismissed", presenting))
	s.record(context.Background(), audit.EventAuthInvalidate, s.policy.AuthenticationPolicy(), nil)
}

// Close invalidates the session and waits for outstanding prompts and
// callbacks.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.Invalidate()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) record(ctx context.Context, typ audit.EventType, p types.AuthenticationPolicy, err error) {
	outcome := audit.OutcomeSuccess
	if err != nil {
		outcome = audit.OutcomeFailure
	}
	event := audit.NewEvent(typ, outcome)
	event.CorrelationID = correlation.GetCorrelationID(ctx)
	event.Principal = audit.PrincipalFrom(ctx)
	event.Code = types.CodeOf(err)
	event.Metadata = map[string]string{"policy": p.String()}
	if err != nil {
		event.Message = err.Error()
	}
	if logErr := s.audit.Log(ctx, event); logErr != nil {
		s.logger.WarnContext(ctx, "audit log failed", logger.Error(logErr))
	}
}
