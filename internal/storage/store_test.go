package storage

import (
	"github.com/sony/gobreaker/v2"
)

// newTestBreaker returns a circuit breaker that effectively never trips,
// so persist tests exercise classification logic without needing to
// simulate a failure streak.
func newTestBreaker() *gobreaker.CircuitBreaker[any] {
	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name: "test",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return false
		},
	})
}
