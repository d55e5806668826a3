// Package memtx gives in-memory repositories transaction semantics for tests.
package memtx

import "sync"

// Snapshotter captures state so a failed transaction can restore it.
type Snapshotter interface {
	Snapshot() (restore func())
}

// Runner serializes transactions over a set of in-memory stores.
type Runner struct {
	mu    sync.Mutex
	parts []Snapshotter
}

// NewRunner constructs a Runner over parts.
func NewRunner(parts ...Snapshotter) *Runner {
	return &Runner{parts: parts}
}

// Run executes fn exclusively. If fn fails every part is restored.
func (r *Runner) Run(fn func() error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	restores := make([]func(), 0, len(r.parts))
	for _, p := range r.parts {
		restores = append(restores, p.Snapshot())
	}
	if err := fn(); err != nil {
		for _, restore := range restores {
			restore()
		}
		return err
	}
	return nil
}

// Read executes fn under the same lock without snapshots.
func (r *Runner) Read(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn()
}
