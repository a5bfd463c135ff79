package domain

import (
	"fmt"

	"github.com/jeandut/substra/pkg/utils/cmp"
)

// TupleKind is the closed set of tuple variants. Code branching per variant
// switches on it exhaustively; an unknown kind is always an error.
type TupleKind string

const (
	Train          TupleKind = "traintuple"
	CompositeTrain TupleKind = "composite_traintuple"
	Aggregate      TupleKind = "aggregatetuple"
	Test           TupleKind = "testtuple"
)

func (k TupleKind) String() string {
	return string(k)
}

func AsTupleKind(kind string) (TupleKind, error) {
	switch kind {
	case string(Train):
		return Train, nil
	case string(CompositeTrain):
		return CompositeTrain, nil
	case string(Aggregate):
		return Aggregate, nil
	case string(Test):
		return Test, nil
	default:
		return "", fmt.Errorf("'%s' is not TupleKind", kind)
	}
}

// Trainlike tells whether a tuple of this kind produces models.
func (k TupleKind) Trainlike() bool {
	switch k {
	case Train, CompositeTrain, Aggregate:
		return true
	default:
		return false
	}
}

// DatasetRef points a tuple at its dataset and the samples it trains
// (or predicts) on. Perf is populated for test tuples only.
type DatasetRef struct {
	Key        string
	SampleKeys []string
	Perf       float64
}

func (d *DatasetRef) Equal(o *DatasetRef) bool {
	if (d == nil) || (o == nil) {
		return (d == nil) && (o == nil)
	}
	return d.Key == o.Key &&
		d.Perf == o.Perf &&
		cmp.SliceEq(d.SampleKeys, o.SampleKeys)
}

// Tuple is one scheduled unit of ML computation.
//
// Which fields are meaningful depends on Kind:
//
//   - Train, Aggregate: InModels in, OutModel out. Aggregate has no Dataset.
//   - CompositeTrain: InHeadModel/InTrunkModel in, OutHeadModel/OutTrunkModel out.
//   - Test: TraintupleKey and ObjectiveKey in, Dataset.Perf out.
type Tuple struct {
	Key    string
	Kind   TupleKind
	status Status

	// id of the compute plan this tuple belongs to, if any.
	ComputePlanID string

	// ordering within the compute plan.
	Rank int

	AlgoKey string
	Dataset *DatasetRef

	InModels     []InModel
	InHeadModel  *InModel
	InTrunkModel *InModel

	OutModel      *OutModel
	OutHeadModel  *OutModel
	OutTrunkModel *OutModel

	// captured container output, appended on completion.
	Log string

	// for Test tuples: the train-like tuple under test and the objective
	// providing the metrics.
	TraintupleKey string
	ObjectiveKey  string
}

func NewTuple(key string, kind TupleKind) *Tuple {
	return &Tuple{Key: key, Kind: kind, status: Waiting}
}

func (t *Tuple) Status() Status {
	if t.status == "" {
		return Waiting
	}
	return t.status
}

// SetStatus moves the tuple along Waiting -> Doing -> {Done, Failed}.
//
// Terminal statuses are sticky; illegal moves return ErrInvalidStatusChange.
func (t *Tuple) SetStatus(next Status) error {
	cur := t.Status()
	if !cur.CanTransitTo(next) {
		return NewErrInvalidStatusChange(cur, next)
	}
	t.status = next
	return nil
}
