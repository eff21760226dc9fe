// Package core centralizes the domain contracts of the memory subsystem:
// messages, sessions, semantic memories, user profiles, skill entries, the
// per-turn debug report and the error taxonomy. Store interfaces live here so
// higher level packages (compression, engine) depend on contracts instead of
// concrete storage; implementations reside in sibling packages (memory,
// session, profile, skills) and are selected at wiring time.
package core
