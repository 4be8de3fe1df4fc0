package exchange

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Error taxonomy for exchange operations. Callers match with
// errors.Is/errors.As and decide per class: transient errors are
// retried with backoff, rejections skip the affected level, data
// errors skip the whole cycle.
var (
	ErrMarketDataUnavailable = errors.New("market data unavailable")
	ErrUnknownSymbol         = errors.New("unknown symbol")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrRateLimited           = errors.New("rate limited by exchange")
	ErrClockSkew             = errors.New("request timestamp outside exchange recv window")
	ErrOrderNotFound         = errors.New("order not found")
	ErrOrderAlreadyFilled    = errors.New("order already filled")
)

// RejectionError is a non-transient order rejection carrying the
// exchange code and reason, e.g. a filter failure.
type RejectionError struct {
	Code   int64
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("order rejected by exchange (code %d): %s", e.Code, e.Reason)
}

// IsTransient reports whether the error is worth retrying with
// backoff: rate limits, clock skew, timeouts and network failures.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrClockSkew) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}

// IsRejection reports whether the error is a per-order rejection the
// monitoring loop should absorb by skipping the level.
func IsRejection(err error) bool {
	if errors.Is(err, ErrInsufficientBalance) {
		return true
	}
	var rej *RejectionError
	return errors.As(err, &rej)
}
