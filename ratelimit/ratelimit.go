package ratelimit

import (
	"math/rand/v2"
	"time"
)

const (
	PendingPreviewsConcurrency = 4
	ResolveConcurrency         = 8

	// ScrapeGap is the minimum spacing between two consecutive page fetches.
	ScrapeGap = 250 * time.Millisecond
)

// SearchTermDelay is the pause between consecutive search terms tried for one preview.
func SearchTermDelay() time.Duration {
	const (
		from = 100
		to   = 300
	)
	millis := rand.IntN(to-from) + from //nolint:gosec
	return time.Duration(millis) * time.Millisecond
}
