package repository

import (
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
)

// ErrPersistence marks a failed storage round trip. Nothing from the failed
// call was durably written.
var ErrPersistence = errors.New("persistence failure")

func persistenceError(err error, op string) error {
	return fmt.Errorf("%w: %w", ErrPersistence, eris.Wrap(err, op))
}
