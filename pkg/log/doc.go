// Package log defines the structured logging contract shared by every
// component in the transaction pipeline. Concrete backends implement
// Logger; pkg/zap provides the production implementation.
package log
