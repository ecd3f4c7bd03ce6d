package ranking

import "time"

// Option applies a configuration option to the Assembler.
type Option func(*Assembler)

// WithPerCallBudget sets the time each candidate adds to the request deadline.
func WithPerCallBudget(d time.Duration) Option {
	return func(a *Assembler) {
		if d > 0 {
			a.perCall = d
		}
	}
}

// WithMaxRequestBudget caps the deadline of a whole request.
func WithMaxRequestBudget(d time.Duration) Option {
	return func(a *Assembler) {
		if d > 0 {
			a.maxRequest = d
		}
	}
}
