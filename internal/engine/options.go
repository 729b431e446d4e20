package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/nostrstore/nostrstore/internal/event"
)

// Option configures an Engine at Open.
//
// Options only apply when Open creates the engine; a second Open of the
// same path returns the existing instance unchanged.
type Option func(*options)

type options struct {
	logger     *zap.Logger
	registerer prometheus.Registerer
	verifier   event.Verifier
}

func defaultOptions() options {
	return options{
		logger:     zap.NewNop(),
		registerer: prometheus.NewRegistry(),
		verifier:   event.SchnorrVerifier{},
	}
}

// WithLogger sets the logger. Default: no-op.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithRegisterer sets where metrics are registered. Default: a private
// registry.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(o *options) {
		if r != nil {
			o.registerer = r
		}
	}
}

// WithVerifier replaces the Schnorr signature verifier.
func WithVerifier(v event.Verifier) Option {
	return func(o *options) {
		if v != nil {
			o.verifier = v
		}
	}
}
