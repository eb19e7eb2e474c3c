package hpi

import "log/slog"

// Option configures an Archive.
type Option func(*Archive)

// WithMaxFileSize limits the maximum uncompressed size ReadAll will
// assemble. Set limit to 0 to disable the limit.
func WithMaxFileSize(limit uint64) Option {
	return func(a *Archive) {
		a.maxFileSize = limit
	}
}

// WithLogger sets the logger for debug output. By default nothing is
// logged.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Archive) {
		a.logger = logger
	}
}
