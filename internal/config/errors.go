package config

import (
	"errors"
	"fmt"
)

// ErrConfig marks invalid configuration detected at startup. Callers treat it
// as fatal; there is no recovery path for a bad threshold.
var ErrConfig = errors.New("invalid configuration")

func configErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}
