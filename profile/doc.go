// Package profile houses concrete implementations of core.ProfileStore. The
// merge semantics (newer preference values win, constraints/facts are
// set-unioned) are defined on core.UserProfile so every backend applies them
// identically.
package profile
