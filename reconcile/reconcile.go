// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package reconcile drives registry proxy provisioning across cloud
// providers: one run plans every provider up front, then converges
// each provider's resources independently and reports the outcome.
package reconcile

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/mutex/v2"
	"github.com/juju/retry"

	"github.com/juju/pullcache/core/registry"
	"github.com/juju/pullcache/core/status"
	"github.com/juju/pullcache/provider"
)

var logger = loggo.GetLogger("pullcache.reconcile")

const (
	// ErrRunFailed reports that at least one provider finished the run
	// in Failed state. The Report carries the per-provider detail.
	ErrRunFailed = errors.ConstError("reconciliation run failed")

	// ErrPlanningAborted marks providers whose own plan was sound but
	// whose run never started because another provider failed to plan.
	// No cloud API call has been made for such a provider.
	ErrPlanningAborted = errors.ConstError("planning aborted before any provider call")
)

const (
	defaultLockName      = "pullcache"
	defaultRetryAttempts = 3
	defaultRetryDelay    = 2 * time.Second
	defaultRetryMaxDelay = 30 * time.Second

	lockAcquireDelay = 250 * time.Millisecond
)

// Request configures a single reconciliation run.
type Request struct {
	// Specs are the registries to converge. They are validated before
	// any provider is consulted.
	Specs registry.Specs

	// Providers holds an open provider per kind the run covers. Specs
	// that do not enable a kind present here are simply skipped for it.
	Providers map[provider.Kind]provider.Provider

	// Clock is used for retry backoff and lock acquisition.
	// Defaults to clock.WallClock.
	Clock clock.Clock

	// RetryAttempts, RetryDelay and RetryMaxDelay shape the retry of
	// transient provider errors. Attempts counts calls, not retries.
	RetryAttempts int
	RetryDelay    time.Duration
	RetryMaxDelay time.Duration

	// LockName names the machine lock serializing concurrent runs on
	// the same host. Defaults to "pullcache".
	LockName string
}

// Validate returns an error if the request cannot be run.
func (r Request) Validate() error {
	if len(r.Providers) == 0 {
		return errors.NotValidf("request without providers")
	}
	for kind, p := range r.Providers {
		if p == nil {
			return errors.NotValidf("nil provider for %q", kind)
		}
		if p.Kind() != kind {
			return errors.NotValidf("provider of kind %q registered under %q", p.Kind(), kind)
		}
	}
	return errors.Trace(r.Specs.Validate())
}

func (r Request) withDefaults() Request {
	if r.Clock == nil {
		r.Clock = clock.WallClock
	}
	if r.RetryAttempts <= 0 {
		r.RetryAttempts = defaultRetryAttempts
	}
	if r.RetryDelay <= 0 {
		r.RetryDelay = defaultRetryDelay
	}
	if r.RetryMaxDelay <= 0 {
		r.RetryMaxDelay = defaultRetryMaxDelay
	}
	if r.LockName == "" {
		r.LockName = defaultLockName
	}
	return r
}

// Reconcile converges every provider in the request onto the declared
// registries and returns a per-provider report. The returned error is
// nil only when every provider finished Done; a non-nil Report is
// returned alongside ErrRunFailed so callers can inspect partial
// outcomes.
func Reconcile(ctx context.Context, req Request) (*Report, error) {
	if err := req.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	req = req.withDefaults()

	releaser, err := mutex.Acquire(mutex.Spec{
		Name:   req.LockName,
		Clock:  req.Clock,
		Delay:  lockAcquireDelay,
		Cancel: ctx.Done(),
	})
	if err != nil {
		return nil, errors.Annotate(err, "acquiring run lock")
	}
	defer releaser.Release()

	kinds := sortedKinds(req.Providers)
	r := &run{
		specs:    req.Specs,
		clock:    req.Clock,
		attempts: req.RetryAttempts,
		delay:    req.RetryDelay,
		maxDelay: req.RetryMaxDelay,
	}

	// Every provider plans before any provider touches its cloud, so a
	// bad declaration cannot leave one cloud converged and another
	// untouched.
	fsms := make(map[provider.Kind]*status.FSM, len(kinds))
	plans := make(map[provider.Kind][]provider.ProxyResource, len(kinds))
	planErrs := make(map[provider.Kind]error)
	for _, kind := range kinds {
		fsm := status.NewFSM(kind.String())
		fsms[kind] = fsm
		if err := fsm.TransitionTo(status.Planning); err != nil {
			return nil, errors.Trace(err)
		}
		resources, err := provider.Plan(req.Specs, kind)
		if err != nil {
			planErrs[kind] = err
			continue
		}
		plans[kind] = resources
	}
	if len(planErrs) > 0 {
		report := newReport()
		var first error
		for _, kind := range kinds {
			kindErr, failed := planErrs[kind]
			if failed {
				logger.Errorf("%s: planning failed: %v", kind, kindErr)
				if first == nil {
					first = kindErr
				}
			} else {
				kindErr = ErrPlanningAborted
			}
			if err := fsms[kind].TransitionTo(status.Failed); err != nil {
				return nil, errors.Trace(err)
			}
			report.set(kind, ProviderResult{Status: status.Failed, Error: kindErr})
		}
		return report, errors.Trace(first)
	}

	results := make(chan providerOutcome)
	for _, kind := range kinds {
		go func(kind provider.Kind) {
			results <- r.runProvider(ctx, req.Providers[kind], plans[kind], fsms[kind])
		}(kind)
	}
	report := newReport()
	var failed []string
	for range kinds {
		out := <-results
		report.set(out.kind, out.result)
		if out.result.Status == status.Failed {
			failed = append(failed, out.kind.String())
		}
	}
	if len(failed) > 0 {
		sort.Strings(failed)
		return report, errors.WithType(
			errors.Errorf("providers failed: %s", strings.Join(failed, ", ")),
			ErrRunFailed,
		)
	}
	return report, nil
}

type run struct {
	specs    registry.Specs
	clock    clock.Clock
	attempts int
	delay    time.Duration
	maxDelay time.Duration
}

type providerOutcome struct {
	kind   provider.Kind
	result ProviderResult
}

// runProvider walks one provider through Applying and Verifying. Each
// registry's credential is upserted before its proxy so the proxy can
// reference the credential handle.
func (r *run) runProvider(ctx context.Context, p provider.Provider, resources []provider.ProxyResource, fsm *status.FSM) providerOutcome {
	kind := p.Kind()
	fail := func(err error) providerOutcome {
		if terr := fsm.TransitionTo(status.Failed); terr != nil {
			logger.Errorf("%s: %v", kind, terr)
		}
		logger.Errorf("%s: run failed: %v", kind, err)
		return providerOutcome{kind: kind, result: ProviderResult{Status: status.Failed, Error: err}}
	}

	if err := fsm.TransitionTo(status.Applying); err != nil {
		return fail(errors.Trace(err))
	}
	store := p.CredentialStore()
	applied := make([]provider.ProxyResource, 0, len(resources))
	for _, resource := range resources {
		if err := ctx.Err(); err != nil {
			return fail(errors.Annotatef(err, "before applying %q", resource.RegistryName))
		}
		spec, ok := r.specs.Find(resource.RegistryName)
		if !ok {
			return fail(errors.Errorf("no declaration for planned resource %q", resource.RegistryName))
		}
		var handle *provider.CredentialHandle
		err := r.callWithRetry(ctx, kind, "upserting credential for "+resource.RegistryName, func() error {
			var uerr error
			handle, uerr = store.UpsertCredential(ctx, spec)
			return uerr
		})
		if err != nil {
			return fail(errors.Annotatef(err, "registry %q", resource.RegistryName))
		}
		resource = resource.WithCredential(handle)
		err = r.callWithRetry(ctx, kind, "applying proxy for "+resource.RegistryName, func() error {
			return p.ApplyProxy(ctx, resource)
		})
		if err != nil {
			return fail(errors.Annotatef(err, "registry %q", resource.RegistryName))
		}
		applied = append(applied, resource)
	}

	if err := fsm.TransitionTo(status.Verifying); err != nil {
		return fail(errors.Trace(err))
	}
	endpoints := make(map[string]string, len(applied))
	for _, resource := range applied {
		if err := ctx.Err(); err != nil {
			return fail(errors.Annotatef(err, "before verifying %q", resource.RegistryName))
		}
		err := r.callWithRetry(ctx, kind, "verifying proxy for "+resource.RegistryName, func() error {
			return p.VerifyProxy(ctx, resource)
		})
		if err != nil {
			return fail(errors.Annotatef(err, "registry %q", resource.RegistryName))
		}
		endpoint, err := p.ResolveEndpoint(resource)
		if err != nil {
			return fail(errors.Annotatef(err, "registry %q", resource.RegistryName))
		}
		endpoints[resource.RegistryName] = endpoint.URL
	}

	if err := fsm.TransitionTo(status.Done); err != nil {
		return fail(errors.Trace(err))
	}
	logger.Infof("%s: %d registries reconciled", kind, len(applied))
	return providerOutcome{kind: kind, result: ProviderResult{Status: status.Done, Endpoints: endpoints}}
}

// callWithRetry retries call on transient provider errors with doubling
// backoff. Fatal errors and context cancellation end the attempts
// immediately.
func (r *run) callWithRetry(ctx context.Context, kind provider.Kind, label string, call func() error) error {
	var lastErr error
	err := retry.Call(retry.CallArgs{
		Func:         call,
		IsFatalError: provider.IsFatal,
		Attempts:     r.attempts,
		Delay:        r.delay,
		MaxDelay:     r.maxDelay,
		BackoffFunc:  retry.DoubleDelay,
		Clock:        r.clock,
		Stop:         ctx.Done(),
		NotifyFunc: func(err error, attempt int) {
			logger.Warningf("%s: attempt %d %s: %v", kind, attempt, label, err)
			lastErr = err
		},
	})
	if retry.IsAttemptsExceeded(err) {
		return errors.Annotatef(lastErr, "%s: attempts exhausted", label)
	}
	if retry.IsRetryStopped(err) {
		return errors.Annotatef(lastErr, "%s: stopped", label)
	}
	return errors.Trace(err)
}

func sortedKinds(providers map[provider.Kind]provider.Provider) []provider.Kind {
	kinds := make([]provider.Kind, 0, len(providers))
	for kind := range providers {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
