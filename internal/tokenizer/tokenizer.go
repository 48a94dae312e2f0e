// Package tokenizer provides the deterministic token counter shared by the
// store, the context assembler, and the stats endpoint. Every budget in the
// system is measured by the same counter so that tokens_used comparisons are
// consistent.
package tokenizer

import (
	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer counts tokens with the cl100k_base BPE when available and falls
// back to a deterministic character heuristic otherwise (tiktoken-go loads
// its encoding data lazily and can fail in offline environments).
type Tokenizer struct {
	enc *tiktoken.Tiktoken
}

// New creates a tokenizer backed by cl100k_base. Initialization failure is
// not fatal: the heuristic fallback keeps counting deterministic.
func New() *Tokenizer {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return &Tokenizer{}
	}
	return &Tokenizer{enc: enc}
}

// NewApproximate creates a tokenizer that always uses the heuristic count.
// Used in tests and environments without the BPE data.
func NewApproximate() *Tokenizer {
	return &Tokenizer{}
}

// CountTokens returns the token count for text. The result depends only on
// the text and the encoder in use, never on wall time or prior calls.
func (t *Tokenizer) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	if t.enc != nil {
		return len(t.enc.Encode(text, nil, nil))
	}
	// Rough BPE approximation: one token per four bytes, rounded up.
	return (len(text) + 3) / 4
}
