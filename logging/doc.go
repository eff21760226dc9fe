// Package logging provides a tiny abstraction over slog so the memory
// subsystem can depend on a minimal interface (Logger) while allowing users
// to plug any structured logger. It also offers a richer contextual logger
// with helpers for the domain's hot paths (model calls, turns, store
// operations).
package logging
