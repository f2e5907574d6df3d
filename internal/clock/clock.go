// Package clock abstracts wall-clock access so delay-boundary logic can be
// tested deterministically.
package clock

import "time"

// Clock returns the current time. Production code uses Real; tests inject a
// controllable fake.
type Clock interface {
	Now() time.Time
}

// Real reads the system clock in UTC.
type Real struct{}

// Now returns the current UTC time.
func (Real) Now() time.Time { return time.Now().UTC() }
