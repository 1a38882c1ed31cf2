// Package retry wraps a broker with bounded retries on its idempotent read
// path. Order dispatch is deliberately passed through unretried: a timed-out
// dispatch may still have reached the gateway, and resending it risks a
// duplicate position.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jbaeza/cyclebot/internal/broker"
	"github.com/jbaeza/cyclebot/internal/models"
)

// Config controls the retry schedule for read operations.
type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultConfig matches a short cycle budget: three extra attempts, capped
// backoff well under a one-minute loop interval.
var DefaultConfig = Config{
	MaxRetries:     3,
	InitialBackoff: 1 * time.Second,
	MaxBackoff:     15 * time.Second,
}

// Broker decorates another broker with read-path retries.
type Broker struct {
	inner  broker.Broker
	log    *logrus.Logger
	config Config
}

// NewBroker wraps b. Omitted config falls back to DefaultConfig.
func NewBroker(b broker.Broker, log *logrus.Logger, config ...Config) *Broker {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	return &Broker{inner: b, log: log, config: cfg}
}

var _ broker.Broker = (*Broker)(nil)

func (r *Broker) Connect(ctx context.Context) error {
	return retryVoid(ctx, r, "connect", func() error {
		return r.inner.Connect(ctx)
	})
}

func (r *Broker) GetOHLCV(ctx context.Context, symbol string, tf models.Timeframe, start, end time.Time) (*models.Series, error) {
	return retryRead(ctx, r, "ohlcv", func() (*models.Series, error) {
		return r.inner.GetOHLCV(ctx, symbol, tf, start, end)
	})
}

// SendMarketOrder is forwarded exactly once.
func (r *Broker) SendMarketOrder(ctx context.Context, req models.OrderRequest) (*models.OrderResult, error) {
	return r.inner.SendMarketOrder(ctx, req)
}

func (r *Broker) GetOpenPositions(ctx context.Context) ([]models.Position, error) {
	return retryRead(ctx, r, "positions", func() ([]models.Position, error) {
		return r.inner.GetOpenPositions(ctx)
	})
}

func (r *Broker) GetClosedTrades(ctx context.Context) ([]models.TradeRecord, error) {
	return retryRead(ctx, r, "closed trades", func() ([]models.TradeRecord, error) {
		return r.inner.GetClosedTrades(ctx)
	})
}

func retryVoid(ctx context.Context, r *Broker, op string, fn func() error) error {
	_, err := retryRead(ctx, r, op, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

func retryRead[T any](ctx context.Context, r *Broker, op string, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	backoff := r.config.InitialBackoff

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !isTransient(err) || attempt == r.config.MaxRetries {
			break
		}

		r.log.WithFields(logrus.Fields{
			"op": op, "attempt": attempt + 1, "backoff": backoff, "error": err,
		}).Warn("transient broker error, retrying")

		select {
		case <-time.After(backoff):
			backoff = nextBackoff(backoff, r.config.MaxBackoff)
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
	return zero, lastErr
}

func nextBackoff(current, max time.Duration) time.Duration {
	backoff := time.Duration(float64(current) * 1.5)
	if backoff > max {
		backoff = max
	}
	maxJitter := int64(backoff / 4)
	if maxJitter > 0 {
		if jitter, err := rand.Int(rand.Reader, big.NewInt(maxJitter)); err == nil {
			backoff += time.Duration(jitter.Int64())
		}
	}
	return backoff
}

// isTransient classifies retryable failures. Typed connection errors always
// qualify; otherwise the message is matched against known transient
// patterns. Unsupported endpoints and data refusals never retry.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, broker.ErrUnsupported) || errors.Is(err, broker.ErrNoData) {
		return false
	}
	var connErr *broker.ConnectionError
	if errors.As(err, &connErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	transientPatterns := []string{
		"timeout",
		"connection refused",
		"connection reset",
		"temporary failure",
		"rate limit",
		"429",
		"502",
		"503",
		"504",
		"network",
		"dns",
		"tcp",
	}
	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
