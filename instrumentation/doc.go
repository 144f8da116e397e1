// Package instrumentation provides OpenTelemetry metrics and tracing for
// the OAuth client library.
//
// Instrumentation is optional: when disabled (or when no instance is
// supplied at all), no-op providers are used and recording has effectively
// zero overhead. Exporter wiring is left to the embedding application
// through a custom resource and providers.
package instrumentation
