// Package model invokes chat models over an OpenAI-compatible API and
// degrades gracefully through an ordered fallback chain when a requested
// model identifier is unavailable.
package model

import (
	"context"
	"errors"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ErrUnavailable classifies failures where the requested model identifier
// cannot serve the call (unknown model, decommissioned, timeout). Only this
// class is retried with the next candidate; everything else is fatal.
var ErrUnavailable = errors.New("model unavailable")

// Invoker runs one model call. Implementations wrap unavailable-class
// failures with ErrUnavailable.
type Invoker interface {
	Invoke(ctx context.Context, model string, msgs []Message) (string, error)
}
