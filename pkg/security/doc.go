// Package security wraps PII values so encryption is applied uniformly by
// the persistence layer rather than ad hoc in each entity constructor.
package security
