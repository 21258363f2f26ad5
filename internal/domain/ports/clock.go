package ports

import "time"

// Clock is an injectable source of "now" so that every date computation in
// the scheduling core is deterministic under test. Implementations must
// return UTC.
type Clock interface {
	Now() time.Time
}
