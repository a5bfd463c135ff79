// Package workspace owns the on-disk layout of the local worker:
// per-job scratch directories, the persistent model and performance stores,
// and the shared compute-plan volumes.
package workspace

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jeandut/substra/pkg/domain"
	kio "github.com/jeandut/substra/pkg/utils/io"
)

// Directory holding all durable and scratch state of the worker, created
// under the configured work directory.
const WorkerDirName = "local-worker"

// EnsureDir creates a directory recursively.
//
// If it exists already and reset is requested, it is deleted and recreated;
// with reset=false the existing directory is returned untouched, so the
// call is idempotent.
func EnsureDir(path string, reset bool) (string, error) {
	if _, err := os.Stat(path); err == nil {
		if !reset {
			return path, nil
		}
		if err := os.RemoveAll(path); err != nil {
			return "", err
		}
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}

// SampleLookup resolves data-sample keys. Satisfied by dal.DataAccess.
type SampleLookup interface {
	GetDataSample(key string) (domain.DataSample, error)
}

type Manager struct {
	wdir string
}

// New roots a Manager at <root>/local-worker, creating it when absent.
func New(root string) (*Manager, error) {
	wdir, err := EnsureDir(filepath.Join(root, WorkerDirName), false)
	if err != nil {
		return nil, err
	}
	return &Manager{wdir: wdir}, nil
}

func (m *Manager) Root() string {
	return m.wdir
}

// JobDir acquires the scratch directory of one job.
//
// The returned release function deletes the directory, ignoring absence;
// callers defer it immediately so the directory is gone on every exit path,
// success or failure.
func (m *Manager) JobDir(key string) (string, func(), error) {
	dir, err := EnsureDir(filepath.Join(m.wdir, key), false)
	if err != nil {
		return "", nil, err
	}
	return dir, func() { os.RemoveAll(dir) }, nil
}

// DataVolume materializes the samples under jobDir/data, one subdirectory
// per sample named by its key.
//
// All keys are resolved before anything is copied, so a missing sample
// fails the call without leaving a half-built volume to clean up beyond the
// job directory itself.
func (m *Manager) DataVolume(jobDir string, sampleKeys []string, lookup SampleLookup) (string, error) {
	volume, err := EnsureDir(filepath.Join(jobDir, "data"), false)
	if err != nil {
		return "", err
	}

	samples := make([]domain.DataSample, 0, len(sampleKeys))
	for _, key := range sampleKeys {
		sample, err := lookup.GetDataSample(key)
		if err != nil {
			return "", err
		}
		samples = append(samples, sample)
	}

	for _, sample := range samples {
		if err := copyTree(sample.Path, filepath.Join(volume, sample.Key)); err != nil {
			return "", fmt.Errorf("%w: data sample %s: %s", domain.ErrPersistence, sample.Key, err)
		}
	}
	return volume, nil
}

// SaveOutModel copies a model produced in an ephemeral job volume into the
// permanent per-tuple model directory, hashing the content on the way.
//
// Runs before the job directory is released; re-running a tuple overwrites
// the same destination deterministically.
func (m *Manager) SaveOutModel(tupleKey string, modelName string, modelsVolume string) (domain.OutModel, error) {
	src := filepath.Join(modelsVolume, modelName)

	dir, err := EnsureDir(filepath.Join(m.wdir, "models", tupleKey), false)
	if err != nil {
		return domain.OutModel{}, fmt.Errorf("%w: model %s of %s: %s", domain.ErrPersistence, modelName, tupleKey, err)
	}
	dest := filepath.Join(dir, modelName)

	hash, err := copyFileWithHash(src, dest)
	if err != nil {
		return domain.OutModel{}, fmt.Errorf("%w: model %s of %s: %s", domain.ErrPersistence, modelName, tupleKey, err)
	}

	return domain.OutModel{Key: hash, Hash: hash, StorageAddress: dest}, nil
}

// SavePerformance copies predVolume/perf.json into the permanent
// performance directory as performance.json and returns the "all" score.
func (m *Manager) SavePerformance(tupleKey string, predVolume string) (float64, error) {
	src := filepath.Join(predVolume, "perf.json")

	dir, err := EnsureDir(filepath.Join(m.wdir, "performances", tupleKey), false)
	if err != nil {
		return 0, fmt.Errorf("%w: performance of %s: %s", domain.ErrPersistence, tupleKey, err)
	}
	dest := filepath.Join(dir, "performance.json")

	if _, err := copyFileWithHash(src, dest); err != nil {
		return 0, fmt.Errorf("%w: performance of %s: %s", domain.ErrMalformedOutput, tupleKey, err)
	}

	content, err := os.ReadFile(dest)
	if err != nil {
		return 0, fmt.Errorf("%w: performance of %s: %s", domain.ErrMalformedOutput, tupleKey, err)
	}
	// the file may carry any other keys besides "all"; only "all" is read
	var perf struct {
		All *float64 `json:"all"`
	}
	if err := json.Unmarshal(content, &perf); err != nil {
		return 0, fmt.Errorf("%w: performance of %s: %s", domain.ErrMalformedOutput, tupleKey, err)
	}
	if perf.All == nil {
		return 0, fmt.Errorf(`%w: performance of %s: no "all" key`, domain.ErrMalformedOutput, tupleKey)
	}
	return *perf.All, nil
}

// PlanLocalDir is the plan-scoped persistent volume shared by all tuples of
// one compute plan; it outlives any single job.
func (m *Manager) PlanLocalDir(planID string) (string, error) {
	return EnsureDir(filepath.Join(m.wdir, "compute_plans", "local", planID), false)
}

// LinkOrCopy hard-links src to dest, falling back to a copy when linking is
// not possible (e.g. crossing filesystems). Either way, the original is not
// mutated.
func LinkOrCopy(src string, dest string) error {
	if err := os.Link(src, dest); err == nil {
		return nil
	}
	_, err := copyFileWithHash(src, dest)
	return err
}

func copyFileWithHash(src string, dest string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	defer out.Close()

	hashed := kio.NewSHA256Writer(out)
	if _, err := io.Copy(hashed, in); err != nil {
		return "", err
	}
	return hashed.Sum(), nil
}

func copyTree(src string, dest string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		_, err = copyFileWithHash(path, target)
		return err
	})
}
