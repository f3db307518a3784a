package service

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/Freeeeeet/bookspace/internal/gateway"
)

// RetryPolicy единая политика ретраев для вызовов шлюза. Одна и та же
// политика используется и платёжным, и выплатным путём.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Jitter      time.Duration
}

// DefaultRetryPolicy 5 попыток, экспоненциальный backoff от 2s
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   2 * time.Second,
		Jitter:      500 * time.Millisecond,
	}
}

// Do выполняет fn с backoff. Ретраится только gateway.ErrTransient;
// любая другая ошибка возвращается сразу.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.NewExponential(p.BaseDelay)
	if p.Jitter > 0 {
		backoff = retry.WithJitter(p.Jitter, backoff)
	}
	backoff = retry.WithMaxRetries(uint64(p.MaxAttempts-1), backoff)

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, gateway.ErrTransient) {
			return retry.RetryableError(err)
		}
		return err
	})
}
