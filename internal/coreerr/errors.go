// Package coreerr defines the sentinel error kinds the core distinguishes,
// shared across packages so callers can use errors.Is regardless of which
// component raised the condition.
package coreerr

import "errors"

var (
	// ErrInvalidConstraint is returned by the constraint engine when a
	// registration's shape does not match its kind.
	ErrInvalidConstraint = errors.New("invalid constraint")

	// ErrInfeasibleBounds marks a merged bound with lower > upper. It is
	// logged, not propagated as a hard failure — downstream treats every
	// price as violating such a bound.
	ErrInfeasibleBounds = errors.New("infeasible bounds")

	// ErrSignalExpired is returned by the execution coordinator when a
	// signal's TTL has lapsed before it could be revalidated.
	ErrSignalExpired = errors.New("signal expired")

	// ErrPriceDrift is returned when the current price has moved too far
	// from the price a signal was generated against.
	ErrPriceDrift = errors.New("price drift exceeds tolerance")

	// ErrInsufficientBalance is returned when account cash cannot cover a
	// proposed order.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrMarketClosed is returned when a signal targets a contract that is
	// no longer open.
	ErrMarketClosed = errors.New("market not open")

	// ErrOrderTimeout is returned when an OPEN order exceeds its timeout
	// without reaching a terminal status.
	ErrOrderTimeout = errors.New("order timed out")

	// ErrExchangeError wraps any failure from the exchange boundary; the
	// tick that triggered it is skipped and a counter is incremented.
	ErrExchangeError = errors.New("exchange error")

	// ErrDrawdownStop is returned by the risk manager when the portfolio is
	// in the STOP drawdown state; all new orders are rejected.
	ErrDrawdownStop = errors.New("drawdown stop in effect")
)
