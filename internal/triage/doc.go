// Package triage turns an inbound support message into a decision. The
// Pipeline composes signal extraction, category classification, rule
// evaluation, knowledge retrieval and the sender's conversation state into
// one Decision; the Service acts on that decision by opening tickets and
// composing the chat reply.
package triage
