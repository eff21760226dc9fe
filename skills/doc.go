// Package skills implements progressive disclosure for reference material:
// a lightweight always-resident index of skill summaries, keyword matching
// against incoming messages, and lazy loading of full skill bodies through a
// read-through ristretto cache. The registry is parsed once at startup from a
// SKILLS.md-style index with sibling <id>.md bodies; a default SRE runbook
// registry ships embedded in the binary.
package skills
