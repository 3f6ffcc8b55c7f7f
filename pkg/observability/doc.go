/*
Package observability turns engine lifecycle hooks into Prometheus metrics
and structured log records.

Both producers return domain.LifecycleHooks; combine them with
domain.MergeHooks and pass the result to parley.WithLifecycleHooks.
*/
package observability
