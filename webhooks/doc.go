// Package webhooks provides the authenticity gate for inbound provider
// deliveries: HMAC signature verification over the raw request body, shared
// token checks, and the challenge/response subscription handshake. The
// handshake is a distinct code path from HMAC verification and must never be
// merged with it.
package webhooks
