// Package hash provides keyed hashing for signing and verifying payloads,
// such as inbound provider webhooks.
package hash
