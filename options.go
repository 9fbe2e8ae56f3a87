// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package asyncbridge

import (
	"fmt"
	"time"

	"github.com/joeycumines/logiface"
)

// bridgeOptions holds configuration for New.
type bridgeOptions struct {
	logger          *logiface.Logger[logiface.Event]
	defaultTimeout  time.Duration
	stopTimeout     time.Duration
	cancelOnTimeout bool
}

// loopOptions holds configuration for NewLoop.
type loopOptions struct {
	logger *logiface.Logger[logiface.Event]
}

// --- Bridge Options ---

// Option configures a [Bridge] instance.
type Option interface {
	applyBridge(*bridgeOptions) error
}

// optionImpl implements Option.
type optionImpl struct {
	applyBridgeFunc func(*bridgeOptions) error
}

func (o *optionImpl) applyBridge(opts *bridgeOptions) error {
	return o.applyBridgeFunc(opts)
}

// --- Loop Options ---

// LoopOption configures a [Loop] instance.
type LoopOption interface {
	applyLoop(*loopOptions) error
}

// loggerOption implements both Option and LoopOption.
type loggerOption struct {
	logger *logiface.Logger[logiface.Event]
}

func (o loggerOption) applyBridge(opts *bridgeOptions) error {
	opts.logger = o.logger
	return nil
}

func (o loggerOption) applyLoop(opts *loopOptions) error {
	opts.logger = o.logger
	return nil
}

// WithLogger attaches a structured logger, used for task panics, lifecycle
// events, and abandoned-shutdown warnings. A nil logger disables logging
// (the default).
func WithLogger(logger *logiface.Logger[logiface.Event]) interface {
	Option
	LoopOption
} {
	return loggerOption{logger: logger}
}

// WithDefaultTimeout sets the deadline applied by [Bridge.Run].
// Defaults to [DefaultTimeout].
func WithDefaultTimeout(d time.Duration) Option {
	return &optionImpl{func(opts *bridgeOptions) error {
		if d <= 0 {
			return fmt.Errorf(`asyncbridge: default timeout must be positive: %s`, d)
		}
		opts.defaultTimeout = d
		return nil
	}}
}

// WithStopTimeout bounds how long [Bridge.Close] waits for the loop
// goroutine to exit before abandoning it. Defaults to [DefaultStopTimeout].
func WithStopTimeout(d time.Duration) Option {
	return &optionImpl{func(opts *bridgeOptions) error {
		if d <= 0 {
			return fmt.Errorf(`asyncbridge: stop timeout must be positive: %s`, d)
		}
		opts.stopTimeout = d
		return nil
	}}
}

// WithCancelOnTimeout switches the dispatcher from its default
// fire-and-abandon timeout behavior (the work keeps running, its eventual
// result is discarded) to best-effort cancellation: on timeout the
// still-pending awaitable is additionally rejected on the loop goroutine.
// Note that retried calls may then observe the first attempt as cancelled
// rather than eventually complete.
func WithCancelOnTimeout(enabled bool) Option {
	return &optionImpl{func(opts *bridgeOptions) error {
		opts.cancelOnTimeout = enabled
		return nil
	}}
}

// resolveBridgeOptions applies Option instances to bridgeOptions.
func resolveBridgeOptions(opts []Option) (*bridgeOptions, error) {
	cfg := &bridgeOptions{
		defaultTimeout: DefaultTimeout,
		stopTimeout:    DefaultStopTimeout,
	}
	for _, opt := range opts {
		if opt == nil {
			continue // Skip nil options gracefully
		}
		if err := opt.applyBridge(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// resolveLoopOptions applies LoopOption instances to loopOptions.
func resolveLoopOptions(opts []LoopOption) (*loopOptions, error) {
	cfg := &loopOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyLoop(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
