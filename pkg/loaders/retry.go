package loaders

import (
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/marionette/marionette/pkg/logger"
	"github.com/marionette/marionette/pkg/unit"
)

// RetryLoader decorates another loader with exponential backoff on
// transient create failures. Only initialization errors are retried;
// anything else aborts immediately. Teardown is never retried.
type RetryLoader struct {
	inner      unit.Loader
	logger     logger.Logger
	maxRetries uint64
	initial    time.Duration
}

// RetryConfig tunes the backoff behavior
type RetryConfig struct {
	MaxRetries      uint64
	InitialInterval time.Duration
}

// DefaultRetryConfig returns the defaults used when fields are unset
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
	}
}

// NewRetryLoader wraps a loader with retry behavior
func NewRetryLoader(inner unit.Loader, cfg RetryConfig, log logger.Logger) *RetryLoader {
	defaults := DefaultRetryConfig()
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = defaults.InitialInterval
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &RetryLoader{
		inner:      inner,
		logger:     log,
		maxRetries: cfg.MaxRetries,
		initial:    cfg.InitialInterval,
	}
}

// Create attempts the inner create, backing off between failures
func (l *RetryLoader) Create(u *unit.Record) (interface{}, error) {
	var payload interface{}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = l.initial

	attempt := 0
	op := func() error {
		attempt++
		p, err := l.inner.Create(u)
		if err == nil {
			payload = p
			return nil
		}
		var initErr *unit.InitError
		if !errors.As(err, &initErr) {
			return backoff.Permanent(err)
		}
		l.logger.Warn("Retrying unit payload creation",
			logger.WithField("unit", u.Name()),
			logger.WithField("attempt", attempt),
			logger.WithField("error", err))
		return err
	}

	if err := backoff.Retry(op, backoff.WithMaxRetries(policy, l.maxRetries)); err != nil {
		return nil, err
	}
	return payload, nil
}

// Destroy delegates to the inner loader
func (l *RetryLoader) Destroy(u *unit.Record, payload interface{}) error {
	return l.inner.Destroy(u, payload)
}
