package broadcast

import (
	"fmt"

	"github.com/jrsteele09/qsmate/internal/errors"
)

// ErrClosed is returned by Await when the watched channel closes before the
// predicate is satisfied.
var ErrClosed = fmt.Errorf("broadcast: %w", errors.ErrClosed)
