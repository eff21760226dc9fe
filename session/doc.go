// Package session houses concrete implementations of core.SessionStore. The
// interface itself (and the Session struct) live in the core package to keep
// domain contracts centralized; only implementations reside here. The
// in-memory store suits tests and ephemeral demos; the SQLite store persists
// across restarts.
package session
