// Package broker defines the brokerage abstraction the engine consumes and
// its concrete implementations: an HTTP client for an MT5 bridge gateway and
// a circuit-breaker wrapper usable around any implementation.
package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/jbaeza/cyclebot/internal/models"
)

// Broker is the full surface the engine needs from a brokerage.
type Broker interface {
	// Connect establishes (or verifies) the session with the broker.
	Connect(ctx context.Context) error

	// GetOHLCV fetches bars for [start, end], aligned to the requested
	// timeframe and tagged with the symbol name.
	GetOHLCV(ctx context.Context, symbol string, timeframe models.Timeframe, start, end time.Time) (*models.Series, error)

	// SendMarketOrder dispatches a market order. A broker-side rejection
	// is reported in the OrderResult, not as an error; errors indicate
	// transport failures.
	SendMarketOrder(ctx context.Context, req models.OrderRequest) (*models.OrderResult, error)

	// GetOpenPositions returns the authoritative open-position list.
	GetOpenPositions(ctx context.Context) ([]models.Position, error)

	// GetClosedTrades returns recently closed round trips. Brokers
	// without deal history return ErrUnsupported.
	GetClosedTrades(ctx context.Context) ([]models.TradeRecord, error)
}

// Sentinel errors shared by all implementations.
var (
	// ErrUnsupported marks an optional endpoint the broker does not
	// implement. Callers treat it as "no new information".
	ErrUnsupported = errors.New("broker: operation not supported")
	// ErrNoData marks a historical query that returned zero bars.
	ErrNoData = errors.New("broker: no data for requested range")
)

// ConnectionError wraps transport-level failures (dial, TLS, 5xx).
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string { return fmt.Sprintf("broker connection: %s: %v", e.Op, e.Err) }
func (e *ConnectionError) Unwrap() error { return e.Err }

// DataError wraps invalid or refused historical-data responses.
type DataError struct {
	Symbol string
	Err    error
}

func (e *DataError) Error() string { return fmt.Sprintf("broker data for %s: %v", e.Symbol, e.Err) }
func (e *DataError) Unwrap() error { return e.Err }

// APIError is a non-2xx HTTP answer from the bridge gateway.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bridge API error %d: %s", e.Status, e.Message)
}

// CircuitBreakerBroker wraps a Broker with circuit breaker functionality so
// a flapping gateway is given time to recover instead of being hammered
// every cycle.
type CircuitBreakerBroker struct {
	broker  Broker
	breaker *gobreaker.CircuitBreaker
}

// CircuitBreakerSettings configures circuit breaker behavior.
type CircuitBreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// NewCircuitBreakerBroker creates a CircuitBreakerBroker with sensible
// defaults.
func NewCircuitBreakerBroker(b Broker, log *logrus.Logger) *CircuitBreakerBroker {
	return NewCircuitBreakerBrokerWithSettings(b, log, CircuitBreakerSettings{
		MaxRequests:  3,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.6,
	})
}

// NewCircuitBreakerBrokerWithSettings creates a CircuitBreakerBroker with
// custom settings.
func NewCircuitBreakerBrokerWithSettings(b Broker, log *logrus.Logger, settings CircuitBreakerSettings) *CircuitBreakerBroker {
	gbSettings := gobreaker.Settings{
		Name:        "BrokerCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.WithFields(logrus.Fields{"from": from.String(), "to": to.String()}).
				Warnf("circuit breaker %s state changed", name)
		},
		// A broker that declares an endpoint unsupported is healthy.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrUnsupported)
		},
	}

	return &CircuitBreakerBroker{
		broker:  b,
		breaker: gobreaker.NewCircuitBreaker(gbSettings),
	}
}

var _ Broker = (*CircuitBreakerBroker)(nil)

// execCircuitBreaker is a generic helper for the wrapper methods.
func execCircuitBreaker[T any](
	breaker *gobreaker.CircuitBreaker,
	broker Broker,
	fn func(Broker) (T, error),
) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn(broker) })
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

func (c *CircuitBreakerBroker) Connect(ctx context.Context) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.broker.Connect(ctx)
	})
	return err
}

func (c *CircuitBreakerBroker) GetOHLCV(ctx context.Context, symbol string, timeframe models.Timeframe, start, end time.Time) (*models.Series, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (*models.Series, error) {
		return b.GetOHLCV(ctx, symbol, timeframe, start, end)
	})
}

func (c *CircuitBreakerBroker) SendMarketOrder(ctx context.Context, req models.OrderRequest) (*models.OrderResult, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (*models.OrderResult, error) {
		return b.SendMarketOrder(ctx, req)
	})
}

func (c *CircuitBreakerBroker) GetOpenPositions(ctx context.Context) ([]models.Position, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) ([]models.Position, error) {
		return b.GetOpenPositions(ctx)
	})
}

func (c *CircuitBreakerBroker) GetClosedTrades(ctx context.Context) ([]models.TradeRecord, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) ([]models.TradeRecord, error) {
		return b.GetClosedTrades(ctx)
	})
}
