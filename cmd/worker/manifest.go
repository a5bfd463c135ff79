package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/jeandut/substra/pkg/dal"
	"github.com/jeandut/substra/pkg/domain"
	"github.com/jeandut/substra/pkg/plans"
	"gopkg.in/yaml.v3"
)

// Manifest is the YAML description of one batch of work: the assets to
// register locally and the tuples to execute.
type Manifest struct {
	ComputePlans []PlanDecl      `yaml:"computePlans"`
	Algos        []AlgoDecl      `yaml:"algos"`
	Datasets     []DatasetDecl   `yaml:"datasets"`
	DataSamples  []SampleDecl    `yaml:"dataSamples"`
	Objectives   []ObjectiveDecl `yaml:"objectives"`
	Tuples       []TupleDecl     `yaml:"tuples"`
}

type PlanDecl struct {
	ID         string `yaml:"id"`
	TupleCount int    `yaml:"tupleCount"`
}

type AlgoDecl struct {
	Key   string `yaml:"key"`
	Image string `yaml:"image"`
}

type DatasetDecl struct {
	Key    string `yaml:"key"`
	Opener string `yaml:"opener"`
}

type SampleDecl struct {
	Key  string `yaml:"key"`
	Path string `yaml:"path"`
}

type ObjectiveDecl struct {
	Key        string   `yaml:"key"`
	Metrics    string   `yaml:"metrics"`
	DatasetKey string   `yaml:"datasetKey"`
	SampleKeys []string `yaml:"sampleKeys"`
}

type TupleDecl struct {
	Key           string   `yaml:"key"`
	Kind          string   `yaml:"kind"`
	Rank          int      `yaml:"rank"`
	ComputePlanID string   `yaml:"computePlanId"`
	AlgoKey       string   `yaml:"algoKey"`
	DatasetKey    string   `yaml:"datasetKey"`
	SampleKeys    []string `yaml:"sampleKeys"`

	// out-models of these tuples become in-models, in order.
	InTupleKeys []string `yaml:"inTupleKeys"`

	// composite-train inputs.
	InHeadTupleKey  string `yaml:"inHeadTupleKey"`
	InTrunkTupleKey string `yaml:"inTrunkTupleKey"`

	// test-tuple inputs.
	TraintupleKey string `yaml:"traintupleKey"`
	ObjectiveKey  string `yaml:"objectiveKey"`
}

func LoadManifest(filepath string) (*Manifest, error) {
	content, err := os.ReadFile(filepath)
	if err != nil {
		return nil, err
	}
	m := &Manifest{}
	if err := yaml.Unmarshal(content, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Register puts the manifest's assets into the local store and its plans
// into the registry, and returns the tuples in rank order, ready to run.
func (m *Manifest) Register(store *dal.MemoryStore, registry *plans.Registry) ([]*domain.Tuple, error) {
	for _, plan := range m.ComputePlans {
		registry.Register(domain.ComputePlan{ID: plan.ID, TupleCount: plan.TupleCount})
	}
	for _, algo := range m.Algos {
		store.PutAlgo(domain.Algo{
			Key:     algo.Key,
			Content: domain.Resource{StorageAddress: algo.Image},
		})
	}
	for _, dataset := range m.Datasets {
		store.PutDataset(domain.Dataset{
			Key:    dataset.Key,
			Opener: domain.Resource{StorageAddress: dataset.Opener},
		})
	}
	for _, sample := range m.DataSamples {
		store.PutDataSample(domain.DataSample{Key: sample.Key, Path: sample.Path})
	}
	for _, objective := range m.Objectives {
		store.PutObjective(domain.Objective{
			Key:     objective.Key,
			Metrics: domain.Resource{StorageAddress: objective.Metrics},
			TestDataset: domain.TestDataset{
				DatasetKey:     objective.DatasetKey,
				DataSampleKeys: objective.SampleKeys,
			},
		})
	}

	tuples := make([]*domain.Tuple, 0, len(m.Tuples))
	for _, decl := range m.Tuples {
		kind, err := domain.AsTupleKind(decl.Kind)
		if err != nil {
			return nil, fmt.Errorf("tuple %s: %w", decl.Key, err)
		}

		tuple := domain.NewTuple(decl.Key, kind)
		tuple.Rank = decl.Rank
		tuple.ComputePlanID = decl.ComputePlanID
		tuple.AlgoKey = decl.AlgoKey
		tuple.TraintupleKey = decl.TraintupleKey
		tuple.ObjectiveKey = decl.ObjectiveKey
		if decl.DatasetKey != "" {
			tuple.Dataset = &domain.DatasetRef{Key: decl.DatasetKey, SampleKeys: decl.SampleKeys}
		}

		store.PutTuple(tuple)
		tuples = append(tuples, tuple)
	}

	sort.SliceStable(tuples, func(i, j int) bool { return tuples[i].Rank < tuples[j].Rank })
	return tuples, nil
}

// BindInModels resolves the declared in-tuple references of decl against
// already-executed tuples. Called just before scheduling decl's tuple, when
// its upstream out-models exist.
func (m *Manifest) BindInModels(tuple *domain.Tuple, store *dal.MemoryStore) error {
	var decl *TupleDecl
	for nth := range m.Tuples {
		if m.Tuples[nth].Key == tuple.Key {
			decl = &m.Tuples[nth]
			break
		}
	}
	if decl == nil {
		return fmt.Errorf("tuple %s is not declared", tuple.Key)
	}

	for _, key := range decl.InTupleKeys {
		upstream, err := store.GetTuple(key)
		if err != nil {
			return err
		}
		if upstream.OutModel == nil {
			return fmt.Errorf("tuple %s has no output model yet", key)
		}
		tuple.InModels = append(tuple.InModels, domain.InModel{
			Key:            upstream.OutModel.Key,
			StorageAddress: upstream.OutModel.StorageAddress,
		})
	}

	if decl.InHeadTupleKey != "" {
		upstream, err := store.GetTuple(decl.InHeadTupleKey)
		if err != nil {
			return err
		}
		if upstream.OutHeadModel == nil {
			return fmt.Errorf("tuple %s has no head model yet", decl.InHeadTupleKey)
		}
		tuple.InHeadModel = &domain.InModel{
			Key:            upstream.OutHeadModel.Key,
			StorageAddress: upstream.OutHeadModel.StorageAddress,
		}
	}
	if decl.InTrunkTupleKey != "" {
		upstream, err := store.GetTuple(decl.InTrunkTupleKey)
		if err != nil {
			return err
		}
		// trunks come from composites, or as the plain out-model of an
		// aggregate sitting between two composite rounds
		trunk := upstream.OutTrunkModel
		if trunk == nil {
			trunk = upstream.OutModel
		}
		if trunk == nil {
			return fmt.Errorf("tuple %s has no trunk model yet", decl.InTrunkTupleKey)
		}
		tuple.InTrunkModel = &domain.InModel{
			Key:            trunk.Key,
			StorageAddress: trunk.StorageAddress,
		}
	}
	return nil
}
