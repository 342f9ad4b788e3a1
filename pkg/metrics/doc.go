/*
Package metrics exposes kiln's Prometheus collectors.

All collectors are package-level and registered at init; Handler returns the
promhttp handler for mounting on an HTTP server. Collectors cover the batch
lifecycle, transaction execution, the storage pipeline, and the executor's
work stealing.
*/
package metrics
