package store

import log "github.com/sirupsen/logrus"

type options struct {
	logger        *log.Logger
	onError       []func(error)
	onSaveSuccess []func()
}

// Option configures Open.
type Option func(*options)

// WithLogger sets the logger used by the store and its durability layer.
func WithLogger(logger *log.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithErrorHandler registers an error callback before recovery runs, so it
// also receives a *types.RecoveryError from startup.
func WithErrorHandler(fn func(error)) Option {
	return func(o *options) { o.onError = append(o.onError, fn) }
}

// WithSaveHandler registers a save-success callback.
func WithSaveHandler(fn func()) Option {
	return func(o *options) { o.onSaveSuccess = append(o.onSaveSuccess, fn) }
}
