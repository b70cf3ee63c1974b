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

// Package simulated implements platform.Authenticator in memory. It backs
// headless servers, CI and tests: prompts are answered by a scripted
// outcome or, in manual mode, by calls to Respond.
package simulated

import (
	"context"
	"fmt"
	"sync"

	"github.com/jeremyhahn/go-identity/pkg/adapters/logger"
	"github.com/jeremyhahn/go-identity/pkg/platform"
	"github.com/jeremyhahn/go-identity/pkg/types"
)

// DefaultMaxFailures matches the platform lockout threshold.
const DefaultMaxFailures = 5

// Name identifies the authenticator in logs and capabilities.
const Name = "simulated"

// Config configures a simulated device.
type Config struct {
	Device platform.Device

	// Outcome answers prompts when Manual is false. A nil Outcome accepts
	// every prompt.
	Outcome func(req platform.PromptRequest) error

	// Manual leaves prompts open until Respond or Cancel is called.
	Manual bool

	// MaxFailures is the number of consecutive biometric failures that
	// lock biometry out.
	MaxFailures int

	Logger logger.Logger
}

type prompt struct {
	req    platform.PromptRequest
	answer chan error
}

// Authenticator is a simulated device.
type Authenticator struct {
	mu          sync.Mutex
	device      platform.Device
	outcome     func(platform.PromptRequest) error
	manual      bool
	maxFailures int
	failures    int
	generation  uint64
	prompted    int
	pending     *prompt
	opened      chan platform.PromptRequest
	logger      logger.Logger
}

// New creates a simulated device. A nil config gives a device with an
// enrolled fingerprint sensor and a passcode that accepts every prompt.
func New(config *Config) *Authenticator {
	if config == nil {
		config = &Config{Device: platform.Device{
			HardwarePresent:  true,
			BiometryType:     types.BiometryFingerprint,
			BiometryEnrolled: true,
			PasscodeSet:      true,
		}}
	}
	a := &Authenticator{
		device:      config.Device,
		outcome:     config.Outcome,
		manual:      config.Manual,
		maxFailures: config.MaxFailures,
		generation:  1,
		opened:      make(chan platform.PromptRequest, 16),
		logger:      config.Logger,
	}
	if a.maxFailures <= 0 {
		a.maxFailures = DefaultMaxFailures
	}
	if a.logger == nil {
		a.logger = logger.NewNop()
	}
	return a
}

func (a *Authenticator) Name() string { return Name }

func (a *Authenticator) Device(ctx context.Context) (platform.Device, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.device, nil
}

func (a *Authenticator) EnrollmentGeneration(ctx context.Context) (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.generation, nil
}

// Evaluate answers req according to the configured outcome or, in manual
// mode, waits for Respond.
func (a *Authenticator) Evaluate(ctx context.Context, req platform.PromptRequest) error {
	a.mu.Lock()
	if err := platform.Preflight(a.device, req.Policy); err != nil {
		a.mu.Unlock()
		return err
	}
	if a.pending != nil {
		a.mu.Unlock()
		return fmt.Errorf("%w: a prompt is already showing", types.ErrBusy)
	}
	a.prompted++
	p := &prompt{req: req, answer: make(chan error, 1)}
	if a.manual {
		a.pending = p
	} else if a.outcome != nil {
		p.answer <- a.outcome(req)
	} else {
		p.answer <- nil
	}
	a.mu.Unlock()

	a.logger.DebugContext(ctx, "prompt shown",
		logger.String("policy", req.Policy.String()),
		logger.String("reason", req.Reason))
	select {
	case a.opened <- req:
	default:
	}

	var err error
	select {
	case err = <-p.answer:
	case <-ctx.Done():
		err = fmt.Errorf("%w: %w", types.ErrAppCancelled, ctx.Err())
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pending == p {
		a.pending = nil
	}
	a.account(req, err)
	return err
}

// account tracks consecutive biometric failures. A success resets the
// count; a success that accepted a passcode also clears a lockout.
func (a *Authenticator) account(req platform.PromptRequest, err error) {
	switch {
	case err == nil:
		a.failures = 0
		if req.Policy.AcceptsPasscode() {
			a.device.LockedOut = false
		}
	case types.KindOf(err) == types.ErrAuthenticationFailed && req.Policy.AcceptsBiometry():
		a.failures++
		if a.failures >= a.maxFailures {
			a.device.LockedOut = true
			a.logger.Warn("biometry locked out", logger.Int("failures", a.failures))
		}
	}
}

// Respond answers the open prompt with err, nil meaning success. It
// reports whether a prompt was open.
func (a *Authenticator) Respond(err error) bool {
	a.mu.Lock()
	p := a.pending
	a.pending = nil
	a.mu.Unlock()
	if p == nil {
		return false
	}
	p.answer <- err
	return true
}

// Cancel dismisses the open prompt with AppCancelled.
func (a *Authenticator) Cancel() {
	a.Respond(types.ErrAppCancelled)
}

// Prompts delivers each prompt as it opens. Deliveries are dropped when
// nobody is receiving and the buffer is full.
func (a *Authenticator) Prompts() <-chan platform.PromptRequest {
	return a.opened
}

// Pending reports whether a manual prompt is waiting for an answer.
func (a *Authenticator) Pending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending != nil
}

// Prompted returns the number of prompts shown so far.
func (a *Authenticator) Prompted() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.prompted
}

// SetDevice replaces the device state.
func (a *Authenticator) SetDevice(d platform.Device) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.device = d
}

// Enroll enrolls a new biometric set, invalidating items bound to the
// previous one.
func (a *Authenticator) Enroll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.device.BiometryEnrolled = true
	a.device.LockedOut = false
	a.failures = 0
	a.generation++
}

// Unenroll removes all enrolled biometrics.
func (a *Authenticator) Unenroll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.device.BiometryEnrolled = false
	a.generation++
}

var _ platform.Authenticator = (*Authenticator)(nil)
