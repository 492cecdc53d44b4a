/*
Package observability turns store lifecycle events into Prometheus metrics
and structured log lines.

Both are exposed as domain.LifecycleHooks so they plug into session.WithHooks,
and Combine fans one event out to several hook sets.
*/
package observability
