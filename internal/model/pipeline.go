package model

import (
	"context"
	"errors"
	"fmt"
	"log"
)

// defaultCandidates are tried after the configured override and before the
// configured fallbacks.
var defaultCandidates = []string{"gpt-4o-mini", "gpt-4.1-mini"}

// ExhaustedError is returned when every candidate in the chain failed with
// an unavailable-class error. Cause is the last recorded failure.
type ExhaustedError struct {
	Cause error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all model candidates unavailable: %v", e.Cause)
}

func (e *ExhaustedError) Unwrap() error { return e.Cause }

// Pipeline tries an ordered chain of model identifiers until one succeeds.
type Pipeline struct {
	inv        Invoker
	candidates []string
}

// NewPipeline builds the candidate chain [override, defaults..., fallbacks...],
// dropping empties and duplicates while preserving first-seen order.
func NewPipeline(inv Invoker, override string, fallbacks []string) *Pipeline {
	raw := make([]string, 0, 1+len(defaultCandidates)+len(fallbacks))
	raw = append(raw, override)
	raw = append(raw, defaultCandidates...)
	raw = append(raw, fallbacks...)

	seen := make(map[string]bool, len(raw))
	candidates := make([]string, 0, len(raw))
	for _, c := range raw {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		candidates = append(candidates, c)
	}

	return &Pipeline{inv: inv, candidates: candidates}
}

// Candidates returns the chain in invocation order.
func (p *Pipeline) Candidates() []string {
	out := make([]string, len(p.candidates))
	copy(out, p.candidates)
	return out
}

// Complete runs the chain strictly in order. The first success short-circuits
// the rest. An unavailable model is recorded and skipped; any other failure
// aborts immediately and propagates.
func (p *Pipeline) Complete(ctx context.Context, msgs []Message) (string, error) {
	var lastErr error
	for _, candidate := range p.candidates {
		text, err := p.inv.Invoke(ctx, candidate, msgs)
		if err == nil {
			return text, nil
		}
		if !errors.Is(err, ErrUnavailable) {
			return "", err
		}
		log.Printf("[model] %s unavailable, trying next candidate: %v", candidate, err)
		lastErr = err
	}
	return "", &ExhaustedError{Cause: lastErr}
}
