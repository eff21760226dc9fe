// Package model defines the narrow contracts for the two external model
// capabilities the memory subsystem consumes: text embedding (Embedder) and
// text completion (Completer). Provider adapters live in sub-packages
// (openai, anthropic); mocks and retry decorators live here so every caller
// gets the same bounded-backoff failure behavior.
package model
