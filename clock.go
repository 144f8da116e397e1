package oauthclient

import "time"

// Clock is the source of the current time for expiry computations.
// Injecting a Clock makes token lifetime behavior deterministic in tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall-clock Clock used when none is provided.
var SystemClock Clock = systemClock{}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
