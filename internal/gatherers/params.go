package gatherers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/creasty/defaults"
	"github.com/go-viper/mapstructure/v2"
	"go.uber.org/zap"
)

// RetryParams are accepted by every gatherer.
type RetryParams struct {
	Retries      int           `mapstructure:"retries" default:"3"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff" default:"1s"`
}

// decodeParams fills out with defaults and then with params.
func decodeParams(params map[string]any, out any) error {
	if err := defaults.Set(out); err != nil {
		return fmt.Errorf("failed to set defaults: %w", err)
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		Squash:           true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(params); err != nil {
		return fmt.Errorf("invalid parameters: %w", err)
	}
	return nil
}

// retry runs op until it succeeds, fails with invalid credentials or the
// retries are exhausted.
func retry[T any](ctx context.Context, p RetryParams, name string, op func(ctx context.Context) (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.RetryBackoff
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(p.Retries, 0))), ctx)

	var out T
	err := backoff.RetryNotify(func() error {
		v, err := op(ctx)
		if err != nil {
			if errors.Is(err, ErrInvalidCredentials) || ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		out = v
		return nil
	}, policy, func(err error, next time.Duration) {
		zap.S().Named("gatherer").Warnw("collection attempt failed, retrying", "backend", name, "error", err, "next", next)
	})

	return out, err
}
