// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package reconcile

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/worker/v4"
	"gopkg.in/tomb.v2"
)

// EnforcerConfig configures a periodic enforcement worker.
type EnforcerConfig struct {
	// Request is reconciled on every pass.
	Request Request

	// Interval is the pause between the end of one pass and the start
	// of the next. The first pass runs immediately.
	Interval time.Duration

	// Notify, when set, observes the outcome of every pass. Intended
	// for tests and status surfaces.
	Notify func(*Report, error)
}

// Validate returns an error if the worker cannot be started.
func (c EnforcerConfig) Validate() error {
	if c.Interval <= 0 {
		return errors.NotValidf("non-positive Interval")
	}
	return errors.Trace(c.Request.Validate())
}

// Enforcer periodically reconciles declared registries so that manual
// changes on the clouds are converged back to the declaration.
type Enforcer struct {
	tomb  tomb.Tomb
	cfg   EnforcerConfig
	clock clock.Clock
}

// NewEnforcer starts an enforcement worker. A failed pass is logged
// and reported through Notify; it does not stop the worker.
func NewEnforcer(cfg EnforcerConfig) (worker.Worker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	clk := cfg.Request.Clock
	if clk == nil {
		clk = clock.WallClock
	}
	w := &Enforcer{cfg: cfg, clock: clk}
	w.tomb.Go(w.loop)
	return w, nil
}

// Kill is part of the worker.Worker interface.
func (w *Enforcer) Kill() {
	w.tomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (w *Enforcer) Wait() error {
	return w.tomb.Wait()
}

func (w *Enforcer) loop() error {
	for {
		ctx := w.tomb.Context(context.Background())
		report, err := Reconcile(ctx, w.cfg.Request)
		if err != nil {
			logger.Errorf("enforcement pass: %v", err)
		} else {
			logger.Debugf("enforcement pass complete")
		}
		if w.cfg.Notify != nil {
			w.cfg.Notify(report, err)
		}
		select {
		case <-w.tomb.Dying():
			return tomb.ErrDying
		case <-w.clock.After(w.cfg.Interval):
		}
	}
}
