package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// recoveryInterval is how long a loop pauses after a failed cycle before
// trying again.
const recoveryInterval = 10 * time.Second

// Runner is the cycle entry point the loop drivers call.
type Runner interface {
	RunOnce(ctx context.Context, now time.Time) error
}

// IntervalLoop calls the engine on a fixed sleep cadence with no drift
// compensation.
type IntervalLoop struct {
	engine   Runner
	interval time.Duration
	log      *logrus.Logger
}

// NewIntervalLoop creates a fixed-interval driver.
func NewIntervalLoop(engine Runner, interval time.Duration, log *logrus.Logger) *IntervalLoop {
	return &IntervalLoop{engine: engine, interval: interval, log: log}
}

// Run cycles until ctx is cancelled. A cycle in progress always completes;
// cancellation is observed between cycles. Cycle errors never terminate the
// loop.
func (l *IntervalLoop) Run(ctx context.Context) error {
	for {
		l.runCycle(ctx, time.Now().UTC())

		select {
		case <-ctx.Done():
			l.log.Info("interval loop stopped")
			return ctx.Err()
		case <-time.After(l.interval):
		}
	}
}

func (l *IntervalLoop) runCycle(ctx context.Context, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			l.log.WithField("panic", r).Error("cycle panicked")
		}
	}()
	if err := l.engine.RunOnce(ctx, now); err != nil {
		l.log.WithError(err).Error("cycle failed")
		select {
		case <-ctx.Done():
		case <-time.After(recoveryInterval):
		}
	}
}

// CandleLoop runs one cycle shortly after each candle close on a fixed
// timeframe grid, so strategies always see a freshly completed bar.
type CandleLoop struct {
	engine           Runner
	timeframeMinutes int
	waitAfterClose   time.Duration
	log              *logrus.Logger
	now              func() time.Time
	sleep            func(ctx context.Context, d time.Duration) error
}

// NewCandleLoop creates a candle-aligned driver. timeframeMinutes is the
// boundary grid in minutes; waitAfterClose pads past the boundary to let the
// broker finalise the bar.
func NewCandleLoop(engine Runner, timeframeMinutes int, waitAfterClose time.Duration, log *logrus.Logger) *CandleLoop {
	return &CandleLoop{
		engine:           engine,
		timeframeMinutes: timeframeMinutes,
		waitAfterClose:   waitAfterClose,
		log:              log,
		now:              func() time.Time { return time.Now().UTC() },
		sleep:            sleepCtx,
	}
}

// NextBoundary returns the first instant after now that sits on the
// timeframe-minute grid plus the configured post-close wait.
func (l *CandleLoop) NextBoundary(now time.Time) time.Time {
	step := time.Duration(l.timeframeMinutes) * time.Minute
	boundary := now.Truncate(step).Add(step)
	target := boundary.Add(l.waitAfterClose)
	for !target.After(now) {
		boundary = boundary.Add(step)
		target = boundary.Add(l.waitAfterClose)
	}
	return target
}

// Run cycles until ctx is cancelled, waking just after each candle close.
func (l *CandleLoop) Run(ctx context.Context) error {
	for {
		target := l.NextBoundary(l.now())
		l.log.WithField("next_cycle", target.Format(time.RFC3339)).Debug("sleeping until next candle")

		if err := l.sleep(ctx, target.Sub(l.now())); err != nil {
			l.log.Info("candle loop stopped")
			return err
		}

		now := l.now()
		if err := l.runCycle(ctx, now); err != nil {
			l.log.WithError(err).Error("cycle failed")
			if err := l.sleep(ctx, recoveryInterval); err != nil {
				l.log.Info("candle loop stopped")
				return err
			}
		}
	}
}

func (l *CandleLoop) runCycle(ctx context.Context, now time.Time) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panic: %v", r)
		}
	}()
	return l.engine.RunOnce(ctx, now)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
