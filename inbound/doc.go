// Package inbound is the transport-agnostic front door for provider
// deliveries and operator requests.
//
// Webhook deliveries use claim/complete/fail idempotency semantics so
// transient handler failures remain retryable while redeliveries of a
// completed claim acknowledge without reprocessing.
package inbound
