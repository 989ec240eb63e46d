// Package backend runs the coding agent that performs a task's work.
package backend

import (
	"context"
	"fmt"
)

// Backend exchanges prompts with one agent session.
type Backend interface {
	Send(ctx context.Context, msg Message) (Response, error)
	Close() error
	// SessionID identifies the conversation so a later Send can continue it.
	SessionID() string
}

var constructors = map[string]func(Config) (Backend, error){
	"cli": func(cfg Config) (Backend, error) {
		a, err := NewCLIAdapter(cfg)
		if err != nil {
			return nil, err
		}
		return a, nil
	},
	"claude": func(cfg Config) (Backend, error) {
		a, err := NewClaudeAdapter(cfg)
		if err != nil {
			return nil, err
		}
		return a, nil
	},
}

// Supported reports whether New can build a backend of type typ.
func Supported(typ string) bool {
	_, ok := constructors[typ]
	return ok
}

// New creates a backend for cfg.Type. An empty type means "cli".
func New(cfg Config) (Backend, error) {
	typ := cfg.Type
	if typ == "" {
		typ = "cli"
	}
	build, ok := constructors[typ]
	if !ok {
		return nil, fmt.Errorf("unknown backend type: %s", cfg.Type)
	}
	return build(cfg)
}
