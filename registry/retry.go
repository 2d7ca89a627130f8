package registry

import (
	"context"
	"errors"
	"time"

	"github.com/nfce-scan/nfce_backend/config"
)

// RetryConfig bounds LookupWithRetry. BaseDelay doubles per attempt:
// 2s, 4s, 8s with the defaults.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, BaseDelay: time.Second}
}

// LookupWithRetry wraps Lookup with exponential backoff. Invalid tax ids
// and not-found results are terminal; rate limits and transport failures
// are retried until MaxAttempts.
func (c *Client) LookupWithRetry(ctx context.Context, cnpj string, cfg RetryConfig) LookupResult {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}

	logger := config.GetLogger()
	var last LookupResult
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		last = c.Lookup(ctx, cnpj)

		switch last.Status {
		case LookupOk, LookupNotFound:
			return last
		case LookupFailed:
			if errors.Is(last.Err, ErrInvalidTaxId) {
				return last
			}
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		delay := cfg.BaseDelay * time.Duration(1<<attempt)
		logger.WithField("cnpj", CleanTaxId(cnpj)).
			WithField("attempt", attempt).
			WithField("delay", delay.String()).
			Warn("registry lookup retrying")
		select {
		case <-ctx.Done():
			return LookupResult{Status: LookupFailed, Err: ctx.Err()}
		case <-time.After(delay):
		}
	}
	return last
}
