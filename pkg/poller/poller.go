// Copyright 2021 VMware, Inc.
// SPDX-License-Identifier: Apache-2.0

package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/wait"
)

const (
	DefaultInterval = 1 * time.Second
	DefaultTimeout  = 30 * time.Second
)

var (
	ErrTimedOut     = errors.New("Timed out")
	ErrInvalidCheck = errors.New("Invalid check")
)

// ConditionFunc reports whether the awaited state has been reached.
// Returning an error stops polling.
type ConditionFunc func(ctx context.Context) (bool, error)

// Check is a named condition re-evaluated every Interval until it
// holds or Timeout elapses.
type Check struct {
	Name      string
	Interval  time.Duration
	Timeout   time.Duration
	Condition ConditionFunc
}

func (c Check) WithDefaults() Check {
	if c.Interval == 0 {
		c.Interval = DefaultInterval
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

func (c Check) Validate() error {
	switch {
	case c.Condition == nil:
		return fmt.Errorf("%w '%s': condition is required", ErrInvalidCheck, c.Name)
	case c.Interval <= 0:
		return fmt.Errorf("%w '%s': interval must be positive, got %s", ErrInvalidCheck, c.Name, c.Interval)
	case c.Timeout <= 0:
		return fmt.Errorf("%w '%s': timeout must be positive, got %s", ErrInvalidCheck, c.Name, c.Timeout)
	case c.Timeout < c.Interval:
		return fmt.Errorf("%w '%s': timeout %s is shorter than interval %s", ErrInvalidCheck, c.Name, c.Timeout, c.Interval)
	}
	return nil
}

type TimedOutError struct {
	Check       string
	Timeout     time.Duration
	Evaluations int
}

func (e *TimedOutError) Error() string {
	return fmt.Sprintf("Check '%s' timed out after %s (%d evaluations)", e.Check, e.Timeout, e.Evaluations)
}

func (e *TimedOutError) Is(target error) bool { return target == ErrTimedOut }

// Poller runs checks. It is safe for concurrent use.
type Poller struct {
	log     logr.Logger
	metrics *Metrics
}

// New returns a Poller; metrics may be nil.
func New(log logr.Logger, metrics *Metrics) *Poller {
	return &Poller{log, metrics}
}

// Wait blocks until check succeeds, fails or times out.
func (p *Poller) Wait(ctx context.Context, check Check) error {
	_, err := p.WaitWithStatus(ctx, check)
	return err
}

// WaitWithStatus is like Wait but also returns the final check status.
// The condition is evaluated immediately, then once per interval, and
// never after the timeout has elapsed.
func (p *Poller) WaitWithStatus(ctx context.Context, check Check) (Status, error) {
	check = check.WithDefaults()

	status := Status{Check: check.Name}
	status.SetPending()

	err := check.Validate()
	if err != nil {
		status.SetCompleted(err)
		return status, err
	}

	log := p.log.WithValues("check", check.Name)
	log.V(1).Info("Waiting", "interval", check.Interval, "timeout", check.Timeout)

	start := time.Now()
	deadline := start.Add(check.Timeout)

	var condErr error

	pollErr := wait.PollUntilContextTimeout(ctx, check.Interval, check.Timeout, true, func(ctx context.Context) (bool, error) {
		if !time.Now().Before(deadline) || ctx.Err() != nil {
			return false, nil
		}

		status.Evaluations++
		p.metrics.observeEvaluation(check.Name)

		ok, err := check.Condition(ctx)
		if err != nil {
			condErr = err
			return false, err
		}
		return ok, nil
	})

	status.Elapsed = time.Since(start)
	err = p.classify(ctx, check, status.Evaluations, deadline, pollErr, condErr)
	status.SetCompleted(err)

	p.metrics.observeOutcome(check.Name, status.Outcome())

	if err != nil {
		log.Info("Check did not succeed", "outcome", status.Outcome(),
			"evaluations", status.Evaluations, "elapsed", status.Elapsed, "error", err.Error())
	} else {
		log.V(1).Info("Check succeeded", "evaluations", status.Evaluations, "elapsed", status.Elapsed)
	}

	return status, err
}

func (p *Poller) classify(ctx context.Context, check Check, evaluations int,
	deadline time.Time, pollErr, condErr error) error {

	if pollErr == nil {
		return nil
	}

	timedOut := &TimedOutError{Check: check.Name, Timeout: check.Timeout, Evaluations: evaluations}

	if condErr != nil {
		// A condition interrupted by the poll deadline is a timeout, not a failure.
		if errors.Is(condErr, context.DeadlineExceeded) && !time.Now().Before(deadline) && ctx.Err() == nil {
			return timedOut
		}
		return fmt.Errorf("Check '%s': %w", check.Name, condErr)
	}

	if ctx.Err() != nil {
		return fmt.Errorf("Check '%s': %w", check.Name, ctx.Err())
	}

	if wait.Interrupted(pollErr) {
		return timedOut
	}

	return fmt.Errorf("Check '%s': %w", check.Name, pollErr)
}

// WaitUntil polls condition with a Poller that neither logs nor records metrics.
func WaitUntil(ctx context.Context, condition ConditionFunc, interval, timeout time.Duration) error {
	return New(logr.Discard(), nil).Wait(ctx, Check{
		Name:      "condition",
		Interval:  interval,
		Timeout:   timeout,
		Condition: condition,
	})
}
