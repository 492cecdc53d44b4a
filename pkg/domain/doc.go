/*
Package domain contains the core types shared by the session store, its locking
strategies, the garbage collector and the storage adapters.

It is kept free of I/O so that adapters (MySQL, memory, Redis) and hosts (CLI,
HTTP) can depend on it without pulling each other in.

# Key Entities

  - Record: a single id-keyed, expiring, opaque-payload row.
  - Sentinel errors: the failure taxonomy callers branch on with errors.Is.
  - LifecycleHooks: callbacks fired by the store for observability.
*/
package domain
