// Package logging provides structured logging for Gatewise Core.
//
// It wraps the standard library's log/slog with configuration-driven
// handler selection and default service attributes. Component packages
// accept a narrow Logger interface of their own so they never depend on
// this package directly; main wires a *logging.Logger into each.
package logging
