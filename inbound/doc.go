// Package inbound turns inbound build triggers into configured build requests.
//
// Deliveries are claimed by (source, delivery id) before any record is
// written, so redelivered webhooks are dropped inside the dedupe window. A
// failed step releases the claim so the sender can retry.
package inbound
