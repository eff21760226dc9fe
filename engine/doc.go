// Package engine contains the memory manager: the orchestrator that runs each
// conversation turn through a fixed pipeline (read, retrieve, assemble, act,
// write-back) over the session, profile, vector and skills components.
//
// The pipeline degrades instead of failing: a model call that errors after
// retries skips the dependent steps and the turn still persists, with the
// degradation visible in the turn report. Only storage failures abort a turn.
// Turns for the same user are serialized; different users never share locks.
package engine
