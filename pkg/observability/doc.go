/*
Package observability provides tools for monitoring the arbor engine.

It turns lifecycle hooks into structured log lines and Prometheus metrics,
and combines several hook sets into one.
*/
package observability
