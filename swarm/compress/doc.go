// Package compress shrinks handoff context before it crosses an agent
// boundary.
//
// The gzip codec sits behind a token-count gate: payloads under the
// configured token floor are framed as-is, everything else is gzip-framed.
// Both frames round-trip through Decompress, so callers never care which
// side of the gate a payload landed on. Token counts come from tiktoken
// with a character estimate as fallback, matching how the rest of the
// system treats tokenizer availability as best-effort.
package compress
