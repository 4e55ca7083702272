// Package observer supplies optional game context for message
// generation. Context is an enrichment, never a hard dependency: every
// implementation returns an empty string instead of failing, and the
// controller bounds each call with a timeout.
package observer

import "context"

// Observer reports a short description of the current game situation.
// An empty string means no context is available.
type Observer interface {
	Context(ctx context.Context) string
}

// Noop always reports no context.
type Noop struct{}

// Context implements Observer.
func (Noop) Context(ctx context.Context) string { return "" }

var _ Observer = Noop{}
