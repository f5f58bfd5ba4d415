// Package context carries per-request identifiers through context.Context.
package context

import "context"

type RequestID struct{}

// FromUUID returns a context carrying the given transaction id.
func FromUUID(c context.Context, reqID string) context.Context {
	return context.WithValue(c, RequestID{}, reqID)
}

// UUID returns the transaction id carried by the context, if any.
func UUID(c context.Context) (string, bool) {
	id, ok := c.Value(RequestID{}).(string)
	return id, ok
}
