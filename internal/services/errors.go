package services

import (
	"errors"
	"fmt"
)

// ErrData marks a snapshot or history problem: missing fields, a zero base
// value for a percent change, or a window too short for IVP/IVR. The tick is
// skipped and logged; the loop continues.
var ErrData = errors.New("invalid market data")

// ErrModel marks a mispricing-model failure: rank-deficient design matrix or
// a sample window below regressors+1. Only the mispricing output is
// suppressed; regime detection still runs for the tick.
var ErrModel = errors.New("regression model unavailable")

func dataErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrData, fmt.Sprintf(format, args...))
}

func modelErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrModel, fmt.Sprintf(format, args...))
}
