// Package transaction defines the settlement record state machine, the
// request and draft payloads exchanged between the initiation and execution
// phases, the canonical checksum protocol, and the shared domain error
// taxonomy.
package transaction
