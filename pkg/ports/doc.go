/*
Package ports defines the driven ports (interfaces) of the session store.

These interfaces decouple the lifecycle and locking logic from concrete storage,
so the same Store runs against MySQL in production and an in-process table in
tests.

# Key Interfaces

  - Handler: the six-operation lifecycle a host driver calls once per request cycle.
  - Conn: one storage connection, owned by exactly one cycle.
  - Connector: acquires a Conn for a new cycle.
  - NamedLocker: advisory, name-keyed mutual exclusion with a bounded wait.
*/
package ports
