package domain

import "strings"

// AssetKind names the asset families owned by the asset store.
type AssetKind string

const (
	KindAlgo       AssetKind = "algo"
	KindDataset    AssetKind = "dataset"
	KindDataSample AssetKind = "data_sample"
	KindObjective  AssetKind = "objective"
)

func (k AssetKind) String() string {
	return string(k)
}

// Keys of local assets carry this prefix; anything else is a remote asset
// whose raw samples never touch the local filesystem.
const localKeyPrefix = "local_"

func IsLocal(key string) bool {
	return strings.HasPrefix(key, localKeyPrefix)
}

// Resource is a piece of asset content materialized on this host.
type Resource struct {
	StorageAddress string
}

// Algo is runnable training/predicting code packaged as a container image.
type Algo struct {
	Key     string
	Content Resource
}

// Dataset describes a data manager: its opener script is mounted into jobs
// to expose data access.
type Dataset struct {
	Key    string
	Opener Resource
}

// DataSample is one sample tree on disk.
type DataSample struct {
	Key  string
	Path string
}

type TestDataset struct {
	DatasetKey     string
	DataSampleKeys []string
}

// Objective carries the metrics script scoring predictions.
type Objective struct {
	Key         string
	Metrics     Resource
	TestDataset TestDataset
}
