package dal

import (
	"context"
	"sync"

	"github.com/jeandut/substra/pkg/domain"
)

// MemoryStore is the in-process asset store of the local backend.
//
// Everything registered in it counts as already materialized, so its
// Download* operations are plain lookups.
type MemoryStore struct {
	mu         sync.RWMutex
	algos      map[string]domain.Algo
	datasets   map[string]domain.Dataset
	samples    map[string]domain.DataSample
	objectives map[string]domain.Objective
	tuples     map[string]*domain.Tuple
}

var _ DataAccess = &MemoryStore{}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		algos:      map[string]domain.Algo{},
		datasets:   map[string]domain.Dataset{},
		samples:    map[string]domain.DataSample{},
		objectives: map[string]domain.Objective{},
		tuples:     map[string]*domain.Tuple{},
	}
}

func (s *MemoryStore) PutAlgo(a domain.Algo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.algos[a.Key] = a
}

func (s *MemoryStore) PutDataset(d domain.Dataset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.datasets[d.Key] = d
}

func (s *MemoryStore) PutDataSample(d domain.DataSample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples[d.Key] = d
}

func (s *MemoryStore) PutObjective(o domain.Objective) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objectives[o.Key] = o
}

func (s *MemoryStore) PutTuple(t *domain.Tuple) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tuples[t.Key] = t
}

func (s *MemoryStore) GetDataSample(key string) (domain.DataSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sample, ok := s.samples[key]
	if !ok {
		return domain.DataSample{}, domain.NewErrMissingAsset(domain.KindDataSample, key)
	}
	return sample, nil
}

func (s *MemoryStore) GetTuple(key string) (*domain.Tuple, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tuple, ok := s.tuples[key]
	if !ok {
		return nil, domain.NewErrMissingAsset("tuple", key)
	}
	return tuple, nil
}

func (s *MemoryStore) DownloadAlgo(_ context.Context, _ domain.TupleKind, key string) (domain.Algo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	algo, ok := s.algos[key]
	if !ok {
		return domain.Algo{}, domain.NewErrMissingAsset(domain.KindAlgo, key)
	}
	return algo, nil
}

func (s *MemoryStore) DownloadDataset(_ context.Context, key string) (domain.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dataset, ok := s.datasets[key]
	if !ok {
		return domain.Dataset{}, domain.NewErrMissingAsset(domain.KindDataset, key)
	}
	return dataset, nil
}

func (s *MemoryStore) DownloadObjective(_ context.Context, key string) (domain.Objective, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	objective, ok := s.objectives[key]
	if !ok {
		return domain.Objective{}, domain.NewErrMissingAsset(domain.KindObjective, key)
	}
	return objective, nil
}
