// Package mock provides in-memory Automation and Captioner implementations
// for tests and the interactive console.
package mock

import (
	"context"
	"sync"

	"github.com/wicaksana/slidesense/internal/match"
	"github.com/wicaksana/slidesense/internal/vocab"
	"github.com/wicaksana/slidesense/pkg/control"
)

var (
	_ control.Automation = (*Automation)(nil)
	_ control.Captioner  = (*Captioner)(nil)
)

// Automation records executed actions and can be primed to fail.
type Automation struct {
	mu      sync.Mutex
	actions []vocab.ActionTag

	// Err, when set, is returned from every Execute call.
	Err error
}

func (a *Automation) Execute(_ context.Context, action vocab.ActionTag) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Err != nil {
		return a.Err
	}
	a.actions = append(a.actions, action)
	return nil
}

// Actions returns a copy of the executed actions in order.
func (a *Automation) Actions() []vocab.ActionTag {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]vocab.ActionTag, len(a.actions))
	copy(out, a.actions)
	return out
}

// Captioner records every decision it is shown.
type Captioner struct {
	mu        sync.Mutex
	decisions []match.Decision
}

func (c *Captioner) Show(_ context.Context, d match.Decision) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decisions = append(c.decisions, d)
}

// Decisions returns a copy of the shown decisions in order.
func (c *Captioner) Decisions() []match.Decision {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]match.Decision, len(c.decisions))
	copy(out, c.decisions)
	return out
}
