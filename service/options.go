package service

import (
	"context"

	"go.uber.org/zap"

	"constellation"
	"constellation/record"
)

// Rule is an additional client validation rule. It appends violations to
// errs.
type Rule func(ctx context.Context, client *record.Client, excludeID string, errs *constellation.ValidationError)

// Option configures a ClientService.
type Option func(*options)

type options struct {
	logger    *zap.Logger
	listeners []Listener
	rules     []Rule
}

// WithLogger sets the service logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithListener subscribes l to every lifecycle event.
func WithListener(l Listener) Option {
	return func(o *options) {
		o.listeners = append(o.listeners, l)
	}
}

// WithRule adds a validation rule run after the built-in ones.
func WithRule(r Rule) Option {
	return func(o *options) {
		o.rules = append(o.rules, r)
	}
}

func newOptions(opts []Option) options {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
