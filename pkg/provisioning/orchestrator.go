// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package provisioning

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/config"
)

var tracer = otel.Tracer("github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/provisioning")

// Options configures an Orchestrator.
type Options struct {
	TotalTimeout  time.Duration
	PollInterval  time.Duration
	RetryAttempts int
	Clock         Clock
	Metrics       *Metrics
	// NewBackOff returns the delay policy between retried calls.
	NewBackOff func() backoff.BackOff
}

// DefaultOptions returns the options matching config.DefaultSettings.
func DefaultOptions() Options {
	return OptionsFromSettings(config.DefaultSettings())
}

// OptionsFromSettings maps configuration settings to orchestrator options.
func OptionsFromSettings(s config.Settings) Options {
	return Options{
		TotalTimeout:  s.TotalTimeout.Std(),
		PollInterval:  s.PollInterval.Std(),
		RetryAttempts: s.RetryAttempts,
	}
}

func (o Options) withDefaults() Options {
	def := config.DefaultSettings()
	if o.TotalTimeout <= 0 {
		o.TotalTimeout = def.TotalTimeout.Std()
	}
	if o.PollInterval <= 0 {
		o.PollInterval = def.PollInterval.Std()
	}
	if o.RetryAttempts < 1 {
		o.RetryAttempts = def.RetryAttempts
	}
	if o.Clock == nil {
		o.Clock = SystemClock()
	}
	if o.NewBackOff == nil {
		o.NewBackOff = func() backoff.BackOff { return backoff.NewExponentialBackOff() }
	}
	return o
}

// Orchestrator drives a LifecycleHandler and CompletionPoller to convergence.
// Convergences for different logical resources run independently; a second
// convergence for a logical resource that is already in flight is rejected.
type Orchestrator struct {
	handler LifecycleHandler
	poller  CompletionPoller
	opts    Options

	mu       sync.Mutex
	inFlight map[string]context.CancelFunc
	resolved map[string]*Resolved

	// tokens remembers the most recent idempotency tokens, oldest first in
	// tokenOrder, up to tokenLimit entries.
	tokens     map[string]struct{}
	tokenOrder []string
	tokenLimit int
}

// tokenHistory is how many idempotency tokens an orchestrator remembers.
const tokenHistory = 1024

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(handler LifecycleHandler, poller CompletionPoller, opts Options) *Orchestrator {
	return &Orchestrator{
		handler:  handler,
		poller:   poller,
		opts:     opts.withDefaults(),
		inFlight:   make(map[string]context.CancelFunc),
		resolved:   make(map[string]*Resolved),
		tokens:     make(map[string]struct{}),
		tokenLimit: tokenHistory,
	}
}

// Resolved returns the attribute handle of a logical resource. The handle is
// published when a convergence for that resource reaches Ready.
func (o *Orchestrator) Resolved(logicalID string) *Resolved {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.resolvedLocked(logicalID)
}

func (o *Orchestrator) resolvedLocked(logicalID string) *Resolved {
	r, ok := o.resolved[logicalID]
	if !ok {
		r = NewResolved()
		o.resolved[logicalID] = r
	}
	return r
}

// Cancel aborts the in-flight convergence of logicalID, if any.
// Cancelling never deletes the resource.
func (o *Orchestrator) Cancel(logicalID string) bool {
	o.mu.Lock()
	cancel, ok := o.inFlight[logicalID]
	o.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// InFlight reports whether a convergence for logicalID is running.
func (o *Orchestrator) InFlight(logicalID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.inFlight[logicalID]
	return ok
}

func (o *Orchestrator) admit(ctx context.Context, req Request) (context.Context, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inFlight[req.LogicalID]; busy {
		return nil, fmt.Errorf("%w: %s", ErrConvergenceInFlight, req.LogicalID)
	}
	if _, used := o.tokens[req.IdempotencyToken]; used {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateRequest, req.IdempotencyToken)
	}
	o.rememberToken(req.IdempotencyToken)
	ctx, cancel := context.WithCancel(ctx)
	o.inFlight[req.LogicalID] = cancel
	return ctx, nil
}

// rememberToken records token, evicting the oldest one past the limit.
// Callers hold o.mu.
func (o *Orchestrator) rememberToken(token string) {
	o.tokens[token] = struct{}{}
	o.tokenOrder = append(o.tokenOrder, token)
	if len(o.tokenOrder) > o.tokenLimit {
		delete(o.tokens, o.tokenOrder[0])
		o.tokenOrder = o.tokenOrder[1:]
	}
}

func (o *Orchestrator) release(logicalID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if cancel, ok := o.inFlight[logicalID]; ok {
		cancel()
		delete(o.inFlight, logicalID)
	}
}

// Converge invokes the lifecycle handler once for req and, unless the
// submission is already terminal, polls until Ready, Failed, TimedOut or
// Cancelled. The returned error is non-nil only when the request is not
// admitted; convergence failures are reported in Result.
func (o *Orchestrator) Converge(ctx context.Context, req Request) (Result, error) {
	if req.LogicalID == "" {
		return Result{}, Permanent("converge", errors.New("logical id is required"))
	}
	if req.IdempotencyToken == "" {
		req.IdempotencyToken = uuid.NewString()
	}

	runCtx, err := o.admit(ctx, req)
	if err != nil {
		return Result{}, err
	}
	defer o.release(req.LogicalID)

	runCtx, span := tracer.Start(runCtx, "provisioning.Converge", trace.WithAttributes(
		attribute.String("logical_id", req.LogicalID),
		attribute.String("action", string(req.Action)),
	))
	defer span.End()

	logger := zerolog.Ctx(ctx).With().
		Str("logical_id", req.LogicalID).
		Str("action", string(req.Action)).
		Str("token", req.IdempotencyToken).
		Logger()
	runCtx = logger.WithContext(runCtx)

	res := o.run(runCtx, req)

	o.opts.Metrics.recordConvergence(req.Action, res.Status, res.Elapsed)
	span.SetAttributes(
		attribute.String("status", string(res.Status)),
		attribute.String("physical_id", res.PhysicalID),
		attribute.Int("polls", res.Polls),
	)
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, string(res.Status))
	}

	event := logger.Info()
	if res.Status != StatusReady {
		event = logger.Warn().Err(res.Err)
	}
	event.Str("status", string(res.Status)).
		Str("physical_id", res.PhysicalID).
		Int("polls", res.Polls).
		Dur("elapsed", res.Elapsed).
		Msg("convergence finished")

	return res, nil
}

func (o *Orchestrator) run(ctx context.Context, req Request) Result {
	clock := o.opts.Clock
	logger := zerolog.Ctx(ctx)
	start := clock.Now()
	res := Result{LogicalID: req.LogicalID, PhysicalID: req.PhysicalID, Status: StatusSubmitted}

	finish := func(status Status, err error) Result {
		res.Status = status
		res.Err = err
		res.Elapsed = clock.Now().Sub(start)
		if err != nil && res.Reason == "" {
			res.Reason = err.Error()
		}
		return res
	}

	sub, err := Retry(ctx, o.opts, "handle", func(ctx context.Context) (Submission, error) {
		return o.handler.Handle(ctx, req)
	})
	if err != nil {
		if ctx.Err() != nil {
			return finish(StatusCancelled, cancelled(ctx))
		}
		return finish(StatusFailed, err)
	}
	if sub.PhysicalID != "" {
		res.PhysicalID = sub.PhysicalID
	}
	logger.Debug().Str("physical_id", res.PhysicalID).Str("submission", string(sub.Status)).Msg("submitted")

	if req.Action == ActionDelete || sub.Status == StatusReady {
		if req.Action == ActionDelete {
			o.forget(req.LogicalID)
		}
		return finish(StatusReady, nil)
	}

	logger.Debug().Msg("polling")
	for {
		check, err := Retry(ctx, o.opts, "check", func(ctx context.Context) (Check, error) {
			return o.poller.Check(ctx, res.PhysicalID)
		})
		res.Polls++
		if err != nil {
			if ctx.Err() != nil {
				return finish(StatusCancelled, cancelled(ctx))
			}
			return finish(StatusFailed, err)
		}
		o.opts.Metrics.recordCheck(check.State)
		logger.Debug().Int("poll", res.Polls).Str("state", check.State.String()).Msg("completion check")

		switch check.State {
		case CheckReady:
			o.Resolved(req.LogicalID).publish(check.Attributes)
			res.Attributes = check.Attributes.clone()
			return finish(StatusReady, nil)
		case CheckFailed:
			res.Reason = check.Reason
			return finish(StatusFailed, fmt.Errorf("%w: %s", ErrProviderFailed, check.Reason))
		}

		// The check due at the deadline still runs; time is up only after it.
		remaining := o.opts.TotalTimeout - clock.Now().Sub(start)
		if remaining <= 0 {
			return finish(StatusTimedOut, o.timeoutError(start, res.Polls))
		}
		if err := clock.Sleep(ctx, min(o.opts.PollInterval, remaining)); err != nil {
			return finish(StatusCancelled, cancelled(ctx))
		}
	}
}

func (o *Orchestrator) timeoutError(start time.Time, polls int) error {
	return &TimeoutError{
		Timeout: o.opts.TotalTimeout,
		Elapsed: o.opts.Clock.Now().Sub(start),
		Polls:   polls,
	}
}

func (o *Orchestrator) forget(logicalID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.resolved, logicalID)
}

func cancelled(ctx context.Context) error {
	return fmt.Errorf("%w: %v", ErrCancelled, context.Cause(ctx))
}

// Retry runs fn until it succeeds, returns a non-transient error, or the
// attempt budget in opts is spent. Errors are passed through Classify.
func Retry[T any](ctx context.Context, opts Options, op string, fn func(context.Context) (T, error)) (T, error) {
	opts = opts.withDefaults()
	v, err := backoff.Retry(ctx, func() (T, error) {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		err = Classify(op, err)
		if !IsTransient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(opts.NewBackOff()),
		backoff.WithMaxTries(uint(opts.RetryAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			opts.Metrics.recordRetry(op)
			zerolog.Ctx(ctx).Debug().Err(err).Str("op", op).Dur("next", next).Msg("retrying")
		}),
	)
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Unwrap()
	}
	return v, err
}
