package domain

// ComputePlan groups tuples executed together, with aggregate progress
// tracking.
//
// DoneCount is monotonic and never exceeds TupleCount; Status flips to Done
// exactly when they meet. Mutation goes through a plans.Registry, never
// directly, so that concurrent tuple completions are serialized.
type ComputePlan struct {
	ID         string
	TupleCount int
	DoneCount  int
	Status     Status
}

func (p *ComputePlan) Equal(o *ComputePlan) bool {
	if (p == nil) || (o == nil) {
		return (p == nil) && (o == nil)
	}
	return p.ID == o.ID &&
		p.TupleCount == o.TupleCount &&
		p.DoneCount == o.DoneCount &&
		p.Status == o.Status
}
