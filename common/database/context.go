// Package database holds helpers shared by SQL-backed repositories.
package database

import (
	"context"
	"time"
)

// Timeouts bounds how long a single statement may run.
type Timeouts struct {
	Query time.Duration
	Write time.Duration
}

// DefaultTimeouts are used when configuration leaves a timeout unset.
var DefaultTimeouts = Timeouts{
	Query: 5 * time.Second,
	Write: 10 * time.Second,
}

// WithDefaults fills zero durations from DefaultTimeouts.
func (t Timeouts) WithDefaults() Timeouts {
	if t.Query <= 0 {
		t.Query = DefaultTimeouts.Query
	}
	if t.Write <= 0 {
		t.Write = DefaultTimeouts.Write
	}
	return t
}

// QueryContext bounds a read.
func (t Timeouts) QueryContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, t.WithDefaults().Query)
}

// WriteContext bounds an INSERT, UPDATE or DELETE, including multi-statement
// transactions.
func (t Timeouts) WriteContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, t.WithDefaults().Write)
}
