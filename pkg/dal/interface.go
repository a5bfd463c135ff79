// Package dal is the data-access layer resolving asset keys to local,
// possibly-downloaded resources.
package dal

import (
	"context"

	"github.com/jeandut/substra/pkg/domain"
)

// DataAccess resolves assets for the scheduler.
//
// Get* operations consult the local store only and fail with
// domain.ErrMissingAsset when the key is absent. Download* operations
// ensure content is materialized on the local filesystem, fetching from
// the control plane when needed, and fail with domain.ErrDownload when
// the fetch fails.
type DataAccess interface {
	GetDataSample(key string) (domain.DataSample, error)

	// GetTuple resolves another tuple by key (test tuples reference the
	// train-like tuple they evaluate).
	GetTuple(key string) (*domain.Tuple, error)

	DownloadAlgo(ctx context.Context, kind domain.TupleKind, key string) (domain.Algo, error)
	DownloadDataset(ctx context.Context, key string) (domain.Dataset, error)
	DownloadObjective(ctx context.Context, key string) (domain.Objective, error)
}
