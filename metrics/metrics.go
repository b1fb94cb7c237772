// Package metrics defines the instrumentation surface of the payment core.
// Components record through the Recorder interface; the Prometheus-backed
// implementation is opt-in and NoopRecorder is the default.
package metrics

import "time"

// Recorder counts payment-core events and observes operation latency. name
// identifies the event (payments_created, watches_started, ...) and labels
// carry at least the currency.
type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}
