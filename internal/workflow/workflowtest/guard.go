// Package workflowtest provides an in-memory workflow.Guard for service tests.
package workflowtest

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/aquaflow/portal/internal/shared"
	"github.com/aquaflow/portal/internal/workflow"
)

type docKey struct {
	table string
	id    uuid.UUID
}

// Record is the stored lifecycle state of one document.
type Record struct {
	Status     workflow.Status
	ApprovedBy uuid.UUID
	ApprovedAt time.Time
}

// Guard keeps document statuses in memory. It is not synchronized; wrap it in a memtx.Runner.
type Guard struct {
	docs      map[docKey]Record
	decisions []workflow.Decision
}

// NewGuard constructs an empty Guard.
func NewGuard() *Guard {
	return &Guard{docs: make(map[docKey]Record)}
}

// Snapshot implements memtx.Snapshotter.
func (g *Guard) Snapshot() func() {
	docs := maps.Clone(g.docs)
	decisions := slices.Clone(g.decisions)
	return func() {
		g.docs = docs
		g.decisions = decisions
	}
}

// Put registers a pending document.
func (g *Guard) Put(kind workflow.Kind, id uuid.UUID) {
	g.docs[docKey{kind.Table, id}] = Record{Status: workflow.StatusPending}
}

// Set stores a document in an arbitrary state, as when it is created already decided.
func (g *Guard) Set(kind workflow.Kind, id uuid.UUID, rec Record) {
	g.docs[docKey{kind.Table, id}] = rec
}

// Get returns the stored record of a document.
func (g *Guard) Get(kind workflow.Kind, id uuid.UUID) (Record, bool) {
	rec, ok := g.docs[docKey{kind.Table, id}]
	return rec, ok
}

// Decisions returns the recorded approval history.
func (g *Guard) Decisions() []workflow.Decision {
	return slices.Clone(g.decisions)
}

func (g *Guard) LockStatus(ctx context.Context, kind workflow.Kind, id uuid.UUID) (workflow.Status, error) {
	rec, ok := g.docs[docKey{kind.Table, id}]
	if !ok {
		return "", fmt.Errorf("%w: %s %s", shared.ErrNotFound, kind.Name, id)
	}
	return rec.Status, nil
}

func (g *Guard) SetStatus(ctx context.Context, kind workflow.Kind, id uuid.UUID, target workflow.Status, actorID uuid.UUID, at time.Time) (bool, error) {
	key := docKey{kind.Table, id}
	rec, ok := g.docs[key]
	if !ok || rec.Status != workflow.StatusPending {
		return false, nil
	}
	g.docs[key] = Record{Status: target, ApprovedBy: actorID, ApprovedAt: at}
	return true, nil
}

func (g *Guard) RecordDecision(ctx context.Context, decision workflow.Decision) error {
	decision.ID = int64(len(g.decisions) + 1)
	g.decisions = append(g.decisions, decision)
	return nil
}
