// Package llm talks to an OpenAI-compatible chat completions endpoint
// (OpenRouter by default) to write and moderate children's stories.
//
// # Entry Points
//
// NewClient: construct a client from Config.
// Client.Generate: write a story from a prompt (plain prose or light markdown).
// Client.Score: moderate a story, returning a ModerationScore.
//
// # Retry Behaviour
//
// Requests are retried on HTTP 408/429/5xx, empty completions and network
// timeouts with exponential backoff (base 1s, max 10s, 5 attempts by
// default). Retry-After is honoured up to the max delay. Context
// cancellation aborts retries immediately.
//
// # Moderation
//
// Score never decides on its own. Callers treat any error as "not
// appropriate".
package llm
