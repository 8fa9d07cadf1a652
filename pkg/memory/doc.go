// Package memory defines the core data model for the engram memory layer.
//
// A memory is a single durable fact distilled from agent conversations — not a
// raw message. Every memory lives inside a Scope (user/agent/run partition);
// memories in different scopes never interact. The reconciliation engine in
// pkg/reconcile is the sole writer of memory content; the backing store and
// history ledger are passive holders.
package memory
