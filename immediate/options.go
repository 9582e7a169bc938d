// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package immediate

import (
	"github.com/joeycumines/logiface"
)

// schedulerOptions holds configuration options for Scheduler creation.
type schedulerOptions struct {
	logger    *logiface.Logger[logiface.Event]
	onError   func(err *TaskError)
	loggerSet bool
}

// Option configures a Scheduler instance.
type Option interface {
	applyScheduler(*schedulerOptions) error
}

// optionImpl implements Option.
type optionImpl struct {
	applySchedulerFunc func(*schedulerOptions) error
}

func (o *optionImpl) applyScheduler(opts *schedulerOptions) error {
	return o.applySchedulerFunc(opts)
}

// WithLogger sets the structured logger used to report task failures, and to
// trace drain cycles at debug level. A nil logger disables logging entirely.
// Defaults to [DefaultLogger].
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *schedulerOptions) error {
		opts.logger = logger
		opts.loggerSet = true
		return nil
	}}
}

// WithErrorHandler registers a hook that receives every task failure, after
// it has been logged. The hook runs on the drain goroutine; a panic within it
// is recovered and discarded.
func WithErrorHandler(handler func(err *TaskError)) Option {
	return &optionImpl{func(opts *schedulerOptions) error {
		if handler == nil {
			return &ArgumentError{Arg: "handler", Message: "nil error handler"}
		}
		opts.onError = handler
		return nil
	}}
}

// hostOptions holds configuration options for GoroutineHost creation.
type hostOptions struct {
	logger    *logiface.Logger[logiface.Event]
	loggerSet bool
}

// HostOption configures a GoroutineHost instance.
type HostOption interface {
	applyHost(*hostOptions)
}

// hostOptionImpl implements HostOption.
type hostOptionImpl struct {
	applyHostFunc func(*hostOptions)
}

func (o *hostOptionImpl) applyHost(opts *hostOptions) {
	o.applyHostFunc(opts)
}

// WithHostLogger sets the logger a [GoroutineHost] reports recovered panics
// to, i.e. panics from functions posted directly to the host, rather than by
// a Scheduler. A nil logger disables logging. Defaults to [DefaultLogger].
func WithHostLogger(logger *logiface.Logger[logiface.Event]) HostOption {
	return &hostOptionImpl{func(opts *hostOptions) {
		opts.logger = logger
		opts.loggerSet = true
	}}
}

func resolveHostOptions(opts []HostOption) *hostOptions {
	cfg := &hostOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt.applyHost(cfg)
		}
	}
	if !cfg.loggerSet {
		cfg.logger = DefaultLogger()
	}
	return cfg
}

// resolveOptions applies Option instances to schedulerOptions.
func resolveOptions(opts []Option) (*schedulerOptions, error) {
	cfg := &schedulerOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyScheduler(cfg); err != nil {
			return nil, err
		}
	}
	if !cfg.loggerSet {
		cfg.logger = DefaultLogger()
	}
	return cfg, nil
}
