// Package plans tracks compute-plan progress.
//
// The done counter of a plan is the one piece of state shared between
// otherwise independent tuple executions, so every increment goes through a
// Registry, which serializes increment-and-compare under one lock.
package plans

import (
	"errors"
	"fmt"
	"sync"

	"github.com/jeandut/substra/pkg/domain"
)

var (
	ErrUnknownPlan = errors.New("unknown compute plan")
	ErrPlanOverrun = errors.New("compute plan already complete")
)

type Registry struct {
	mu    sync.Mutex
	plans map[string]*domain.ComputePlan
}

func NewRegistry() *Registry {
	return &Registry{plans: map[string]*domain.ComputePlan{}}
}

func (r *Registry) Register(plan domain.ComputePlan) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if plan.Status == "" {
		plan.Status = domain.Waiting
	}
	r.plans[plan.ID] = &plan
}

// Get returns a snapshot of the plan.
func (r *Registry) Get(id string) (domain.ComputePlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	plan, ok := r.plans[id]
	if !ok {
		return domain.ComputePlan{}, fmt.Errorf("%w: %s", ErrUnknownPlan, id)
	}
	return *plan, nil
}

// TupleDone records one tuple of the plan reaching Done.
//
// The increment and the completion check are a single serialized operation:
// the call that brings DoneCount up to TupleCount also flips the plan status
// to Done, and no other call can observe the counter in between.
func (r *Registry) TupleDone(id string) (domain.ComputePlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	plan, ok := r.plans[id]
	if !ok {
		return domain.ComputePlan{}, fmt.Errorf("%w: %s", ErrUnknownPlan, id)
	}
	if plan.DoneCount >= plan.TupleCount {
		return *plan, fmt.Errorf("%w: %s", ErrPlanOverrun, id)
	}

	plan.DoneCount += 1
	if plan.DoneCount == plan.TupleCount {
		plan.Status = domain.Done
	}
	return *plan, nil
}
