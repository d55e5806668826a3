// Package workflow implements the pending -> terminal approval lifecycle shared by every
// stock-moving document.
package workflow

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aquaflow/portal/internal/shared"
)

// Status is the lifecycle state of a document.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s != StatusPending
}

// Rule gates a single target status.
type Rule struct {
	Roles []shared.Role
	// Positive outcomes run the stock effect before the status write.
	Positive bool
}

// Kind describes one document type: its table and the transitions out of pending.
type Kind struct {
	Name  string
	Table string
	Rules map[Status]Rule
}

var (
	// KindSale covers sales; admins and accountants decide.
	KindSale = Kind{
		Name:  "sale",
		Table: "sales",
		Rules: map[Status]Rule{
			StatusApproved: {Roles: []shared.Role{shared.RoleAdmin, shared.RoleAccountant}, Positive: true},
			StatusRejected: {Roles: []shared.Role{shared.RoleAdmin, shared.RoleAccountant}},
		},
	}
	// KindPurchaseOrder covers LPOs; admins decide.
	KindPurchaseOrder = Kind{
		Name:  "purchase_order",
		Table: "purchase_orders",
		Rules: map[Status]Rule{
			StatusApproved: {Roles: []shared.Role{shared.RoleAdmin}, Positive: true},
			StatusRejected: {Roles: []shared.Role{shared.RoleAdmin}},
		},
	}
	// KindTransfer covers inter-location transfers; warehouse clerks complete or cancel.
	KindTransfer = Kind{
		Name:  "transfer",
		Table: "transfers",
		Rules: map[Status]Rule{
			StatusCompleted: {Roles: []shared.Role{shared.RoleClerk}, Positive: true},
			StatusCancelled: {Roles: []shared.Role{shared.RoleClerk}},
		},
	}
	// KindDeductionRequest covers stock deduction requests; admins decide.
	KindDeductionRequest = Kind{
		Name:  "deduction_request",
		Table: "deduction_requests",
		Rules: map[Status]Rule{
			StatusApproved: {Roles: []shared.Role{shared.RoleAdmin}, Positive: true},
			StatusRejected: {Roles: []shared.Role{shared.RoleAdmin}},
		},
	}
)

// Authorize returns the rule for target when role may apply it.
func (k Kind) Authorize(target Status, role shared.Role) (Rule, error) {
	rule, ok := k.Rules[target]
	if !ok {
		return Rule{}, fmt.Errorf("%w: %s cannot move to %q", shared.ErrValidation, k.Name, target)
	}
	if !role.In(rule.Roles...) {
		return Rule{}, fmt.Errorf("%w: role %q cannot set %s to %s", shared.ErrForbidden, role, k.Name, target)
	}
	return rule, nil
}

// Targets lists the statuses reachable from pending.
func (k Kind) Targets() []Status {
	targets := make([]Status, 0, len(k.Rules))
	for status := range k.Rules {
		targets = append(targets, status)
	}
	return targets
}

// Request asks the machine to move one document to Target.
type Request struct {
	Kind   Kind
	ID     uuid.UUID
	Target Status
	Actor  shared.Actor
	Note   string
}

// Decision is an entry in the approval history.
type Decision struct {
	ID      int64
	Module  string
	RefID   uuid.UUID
	ActorID uuid.UUID
	Role    shared.Role
	Action  Status
	Note    string
	At      time.Time
}
