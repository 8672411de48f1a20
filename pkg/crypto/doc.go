// Package crypto provides the AES-256-GCM cipher and keyed hashing used to
// protect staged transaction payloads and sensitive fields at rest.
package crypto
