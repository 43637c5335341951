// Package scriptgate holds a job's draft script and its approval state.
package scriptgate

import (
	"fmt"
	"strings"
	"sync"

	"mourne/internal/domain"
)

// Gate is safe for concurrent use. Every change to the text bumps the draft
// version; approval is tied to the version it was granted for.
type Gate struct {
	mu     sync.RWMutex
	script domain.Script
}

func New() *Gate {
	return &Gate{}
}

// SetDraft replaces the draft text. Identical text is not an edit and keeps
// any existing approval.
func (g *Gate) SetDraft(text string) domain.Script {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.script.Version > 0 && g.script.Text == text {
		return g.script
	}
	g.script.Text = text
	g.script.Version++
	return g.script
}

// Approve approves text as the current draft and returns the approved
// version. Approving text that differs from the draft stores it first.
func (g *Gate) Approve(text string) (int, error) {
	if strings.TrimSpace(text) == "" {
		return 0, fmt.Errorf("%w: script text is empty", domain.ErrInvalidInput)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.script.Version == 0 || g.script.Text != text {
		g.script.Text = text
		g.script.Version++
	}
	g.script.ApprovedVersion = g.script.Version
	return g.script.ApprovedVersion, nil
}

func (g *Gate) Approved() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.script.Approved()
}

// Check returns ErrNotApproved unless the current draft is approved.
func (g *Gate) Check() error {
	if g.Approved() {
		return nil
	}
	return domain.ErrNotApproved
}

func (g *Gate) Snapshot() domain.Script {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.script
}
