// Package clock lets usecases read the time through an interface so tests can
// pin it.
package clock

import "time"

type Clocker interface {
	Now() time.Time
}

// TimeClocker reports wall time in UTC. Conversions to a user or organization
// zone happen at the call site.
type TimeClocker struct{}

func New() *TimeClocker { return &TimeClocker{} }

func (*TimeClocker) Now() time.Time { return time.Now().UTC() }

// Func adapts a plain function, e.g. a closure over a test variable.
type Func func() time.Time

func (f Func) Now() time.Time { return f() }
