package ports

import "context"

// Handler is the lifecycle contract a host driver calls once per request cycle:
// Open, then any number of Read, at most one Write, then Close.
// Destroy and GC may be called at any point between Open and Close.
type Handler interface {
	// Open prepares the handler. savePath and name are accepted for the host's sake and ignored.
	Open(ctx context.Context, savePath, name string) error

	// Read enters the critical section for id and returns its payload.
	// Absent and expired sessions yield an empty payload, not an error.
	Read(ctx context.Context, id string) ([]byte, error)

	// Write persists data for id with a freshly computed expiry.
	Write(ctx context.Context, id string, data []byte) error

	// Close ends the critical section and runs any deferred garbage collection.
	Close(ctx context.Context) error

	// Destroy deletes the session row for id.
	Destroy(ctx context.Context, id string) error

	// GC requests a sweep of expired rows at the next Close.
	GC(ctx context.Context, maxLifetime int64) error
}
