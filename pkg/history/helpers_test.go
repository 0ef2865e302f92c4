package history

import (
	"fmt"
	"time"
)

// testOpts returns deterministic ids (n1, n2, ...) and a clock that ticks
// one second per node, plus strict invariant checking.
func testOpts() []Option {
	seq := 0
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	return []Option{
		WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("n%d", seq)
		}),
		WithClock(func() time.Time {
			tick++
			return base.Add(time.Duration(tick) * time.Second)
		}),
		WithStrict(true),
	}
}
