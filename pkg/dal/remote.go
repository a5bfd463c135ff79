package dal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jeandut/substra/pkg/domain"
	"github.com/jeandut/substra/pkg/rest"
)

// RemoteStore resolves against a local MemoryStore first and falls back to
// the control plane for assets not registered locally. Fetched content is
// cached under cacheDir and registered into the local store, so a key is
// downloaded at most once.
type RemoteStore struct {
	local    *MemoryStore
	client   rest.Client
	cacheDir string
}

var _ DataAccess = &RemoteStore{}

func NewRemoteStore(local *MemoryStore, client rest.Client, cacheDir string) *RemoteStore {
	return &RemoteStore{local: local, client: client, cacheDir: cacheDir}
}

func (s *RemoteStore) GetDataSample(key string) (domain.DataSample, error) {
	return s.local.GetDataSample(key)
}

func (s *RemoteStore) GetTuple(key string) (*domain.Tuple, error) {
	return s.local.GetTuple(key)
}

func (s *RemoteStore) cachePath(kind domain.AssetKind, key string, filename string) (string, error) {
	dir := filepath.Join(s.cacheDir, kind.String(), key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return filepath.Join(dir, filename), nil
}

func (s *RemoteStore) DownloadAlgo(ctx context.Context, kind domain.TupleKind, key string) (domain.Algo, error) {
	if algo, err := s.local.DownloadAlgo(ctx, kind, key); err == nil {
		return algo, nil
	}

	dest, err := s.cachePath(domain.KindAlgo, key, "algo.tar.gz")
	if err != nil {
		return domain.Algo{}, fmt.Errorf("%w: algo %s: %s", domain.ErrDownload, key, err)
	}
	if err := s.client.Download(ctx, fmt.Sprintf("algo/%s/file", key), dest); err != nil {
		return domain.Algo{}, fmt.Errorf("%w: algo %s: %s", domain.ErrDownload, key, err)
	}

	algo := domain.Algo{Key: key, Content: domain.Resource{StorageAddress: dest}}
	s.local.PutAlgo(algo)
	return algo, nil
}

func (s *RemoteStore) DownloadDataset(ctx context.Context, key string) (domain.Dataset, error) {
	if dataset, err := s.local.DownloadDataset(ctx, key); err == nil {
		return dataset, nil
	}

	dest, err := s.cachePath(domain.KindDataset, key, "opener.py")
	if err != nil {
		return domain.Dataset{}, fmt.Errorf("%w: dataset %s: %s", domain.ErrDownload, key, err)
	}
	if err := s.client.Download(ctx, fmt.Sprintf("data_manager/%s/opener", key), dest); err != nil {
		return domain.Dataset{}, fmt.Errorf("%w: dataset %s: %s", domain.ErrDownload, key, err)
	}

	dataset := domain.Dataset{Key: key, Opener: domain.Resource{StorageAddress: dest}}
	s.local.PutDataset(dataset)
	return dataset, nil
}

func (s *RemoteStore) DownloadObjective(ctx context.Context, key string) (domain.Objective, error) {
	if objective, err := s.local.DownloadObjective(ctx, key); err == nil {
		return objective, nil
	}

	var desc struct {
		TestDataset struct {
			DataManagerKey string   `json:"data_manager_key"`
			DataSampleKeys []string `json:"data_sample_keys"`
		} `json:"test_dataset"`
	}
	if err := s.client.GetJSON(ctx, fmt.Sprintf("objective/%s", key), &desc); err != nil {
		return domain.Objective{}, fmt.Errorf("%w: objective %s: %s", domain.ErrDownload, key, err)
	}

	dest, err := s.cachePath(domain.KindObjective, key, "metrics.py")
	if err != nil {
		return domain.Objective{}, fmt.Errorf("%w: objective %s: %s", domain.ErrDownload, key, err)
	}
	if err := s.client.Download(ctx, fmt.Sprintf("objective/%s/metrics", key), dest); err != nil {
		return domain.Objective{}, fmt.Errorf("%w: objective %s: %s", domain.ErrDownload, key, err)
	}

	objective := domain.Objective{
		Key:     key,
		Metrics: domain.Resource{StorageAddress: dest},
		TestDataset: domain.TestDataset{
			DatasetKey:     desc.TestDataset.DataManagerKey,
			DataSampleKeys: desc.TestDataset.DataSampleKeys,
		},
	}
	s.local.PutObjective(objective)
	return objective, nil
}
