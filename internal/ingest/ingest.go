// Package ingest hosts the transports that deliver bucket notification
// payloads to the forwarding engine: an HTTP webhook server plus optional
// NATS, AMQP and Kafka consumers. Each host hands raw payloads to a
// Processor and reports the outcome back on the transport when it supports
// replies or acknowledgements.
package ingest

import (
	"github.com/nimbus-works/nimbus-event-forwarder/internal/logger"
)

// clientName identifies this service on broker connections.
const clientName = "nimbus-event-forwarder"

func ensureLogger(log logger.Logger) logger.Logger {
	if log == nil {
		return logger.NopLogger{}
	}
	return log
}
