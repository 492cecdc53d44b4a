// Package middleware wraps a ports.Connector to transform session payloads
// on their way to and from the table.
package middleware

import "github.com/aretw0/sqlsession/pkg/ports"

// Middleware allows wrapping a Connector to add behavior.
type Middleware func(ports.Connector) ports.Connector

// Chain applies mws to next; the first middleware is outermost.
func Chain(next ports.Connector, mws ...Middleware) ports.Connector {
	for i := len(mws) - 1; i >= 0; i-- {
		next = mws[i](next)
	}
	return next
}
