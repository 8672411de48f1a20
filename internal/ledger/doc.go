// Package ledger implements balance accounts with place, capture, release
// and refund hold operations. Writes use optimistic concurrency on an
// account version rather than locks; the engine retries lost races with
// jittered backoff.
package ledger
