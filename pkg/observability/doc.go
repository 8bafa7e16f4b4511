/*
Package observability turns engine lifecycle hooks into Prometheus metrics
and structured log records.

Metrics registers its collectors on a prometheus.Registerer and exposes the
hooks to pass to convoflow.WithLifecycleHooks. Chain combines several hook
sets, for example metrics and logging.
*/
package observability
