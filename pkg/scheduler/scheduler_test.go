package scheduler_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jeandut/substra/pkg/dal"
	"github.com/jeandut/substra/pkg/domain"
	"github.com/jeandut/substra/pkg/plans"
	"github.com/jeandut/substra/pkg/scheduler"
	"github.com/jeandut/substra/pkg/spawner"
	"github.com/jeandut/substra/pkg/utils/try"
	"github.com/jeandut/substra/pkg/workspace"
)

type spawnRecord struct {
	name    string
	image   string
	command string
	volumes spawner.Volumes
}

func (r spawnRecord) hostOf(bind string) string {
	for host, mount := range r.volumes {
		if mount.Bind == bind {
			return host
		}
	}
	return ""
}

// fakeSpawner stands in for a container runtime. It records invocations and
// plays the part of the job: training invocations drop model files in their
// writable model volume, scoring invocations drop perf.json in the
// predictions volume.
type fakeSpawner struct {
	t            *testing.T
	spawns       []spawnRecord
	modelContent string
	perfContent  string

	// when set, Spawn fails with this error instead of doing anything.
	err error

	// extra hook run against each invocation before side effects.
	observe func(rec spawnRecord)
}

var _ spawner.Spawner = &fakeSpawner{}

func (f *fakeSpawner) Spawn(_ context.Context, name string, image string, command string, volumes spawner.Volumes) (string, error) {
	rec := spawnRecord{name: name, image: image, command: command, volumes: volumes}
	f.spawns = append(f.spawns, rec)

	if err := volumes.Validate(); err != nil {
		f.t.Errorf("invalid volumes reached the runtime: %s", err)
	}
	if f.observe != nil {
		f.observe(rec)
	}
	if f.err != nil {
		return "", f.err
	}

	model := f.modelContent
	if model == "" {
		model = "trained weights"
	}
	for host, mount := range volumes {
		if mount.Mode != spawner.ReadWrite {
			continue
		}
		switch mount.Bind {
		case "/sandbox/model":
			writeFile(f.t, filepath.Join(host, "model"), model)
		case "/sandbox/output_models":
			writeFile(f.t, filepath.Join(host, "output_head_model"), model+" (head)")
			writeFile(f.t, filepath.Join(host, "output_trunk_model"), model+" (trunk)")
		case "/sandbox/pred":
			if strings.HasPrefix(command, "--fake-data-mode") {
				writeFile(f.t, filepath.Join(host, "perf.json"), f.perfContent)
			}
		}
	}
	return "log of " + name, nil
}

func writeFile(t *testing.T, path string, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// fixture wires a scheduler against in-memory assets and the fake runtime.
type fixture struct {
	root      string
	store     *dal.MemoryStore
	registry  *plans.Registry
	spawner   *fakeSpawner
	ws        *workspace.Manager
	scheduler *scheduler.Scheduler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	store := dal.NewMemoryStore()
	registry := plans.NewRegistry()
	fake := &fakeSpawner{t: t, perfContent: `{"all": 0.87}`}
	ws := try.To(workspace.New(root)).OrFatal(t)
	return &fixture{
		root:      root,
		store:     store,
		registry:  registry,
		spawner:   fake,
		ws:        ws,
		scheduler: scheduler.New(store, registry, fake, ws),
	}
}

// putLocalDataset registers a dataset with one on-disk sample per given key.
func (f *fixture) putLocalDataset(t *testing.T, datasetKey string, sampleKeys ...string) {
	t.Helper()
	f.store.PutDataset(domain.Dataset{
		Key:    datasetKey,
		Opener: domain.Resource{StorageAddress: filepath.Join(f.root, "openers", datasetKey, "__init__.py")},
	})
	for _, key := range sampleKeys {
		dir := filepath.Join(f.root, "samples", key)
		writeFile(t, filepath.Join(dir, "data.csv"), "1,2,3")
		f.store.PutDataSample(domain.DataSample{Key: key, Path: dir})
	}
}

func (f *fixture) putAlgo(key string) {
	f.store.PutAlgo(domain.Algo{
		Key:     key,
		Content: domain.Resource{StorageAddress: "substra/" + key + ":latest"},
	})
}

func (f *fixture) scratchDir(tupleKey string) string {
	return filepath.Join(f.ws.Root(), tupleKey)
}

func TestScheduleTrain(t *testing.T) {
	ctx := context.Background()

	t.Run("it trains on local data and persists the output model", func(t *testing.T) {
		fx := newFixture(t)
		fx.putAlgo("algo1")
		fx.putLocalDataset(t, "local_ds1", "local_s1")

		tuple := domain.NewTuple("t1", domain.Train)
		tuple.AlgoKey = "algo1"
		tuple.Dataset = &domain.DatasetRef{Key: "local_ds1", SampleKeys: []string{"local_s1"}}

		if err := fx.scheduler.ScheduleTrain(ctx, tuple); err != nil {
			t.Fatalf("unexpected error: %+v", err)
		}

		if len(fx.spawner.spawns) != 1 {
			t.Fatalf("spawn count: (actual, expected) = (%d, 1)", len(fx.spawner.spawns))
		}
		rec := fx.spawner.spawns[0]
		if rec.command != "train --rank 0" {
			t.Errorf("command: (actual, expected) = (%q, %q)", rec.command, "train --rank 0")
		}
		if rec.name != "algo-algo1" || rec.image != "substra/algo1:latest" {
			t.Errorf("unexpected invocation: %+v", rec)
		}
		if rec.hostOf("/sandbox/data") == "" || rec.hostOf("/sandbox/opener/__init__.py") == "" {
			t.Errorf("data or opener volume missing: %+v", rec.volumes)
		}

		if tuple.Status() != domain.Done {
			t.Errorf("status: (actual, expected) = (%s, %s)", tuple.Status(), domain.Done)
		}
		if tuple.OutModel == nil {
			t.Fatal("no output model recorded")
		}
		content, err := os.ReadFile(tuple.OutModel.StorageAddress)
		if err != nil {
			t.Fatal(err)
		}
		if string(content) != "trained weights" {
			t.Errorf("persisted model content: %q", content)
		}
		if tuple.OutModel.Key != tuple.OutModel.Hash {
			t.Errorf("model not content-addressed: %+v", tuple.OutModel)
		}
		if tuple.Log != "log of algo-algo1" {
			t.Errorf("log not captured: %q", tuple.Log)
		}
		if _, err := os.Stat(fx.scratchDir("t1")); !os.IsNotExist(err) {
			t.Error("scratch directory survived success")
		}
	})

	t.Run("a remote dataset trains on fake data and skips the data volume", func(t *testing.T) {
		fx := newFixture(t)
		fx.putAlgo("algo1")
		fx.store.PutDataset(domain.Dataset{
			Key:    "ds1",
			Opener: domain.Resource{StorageAddress: filepath.Join(fx.root, "opener.py")},
		})

		tuple := domain.NewTuple("t1", domain.Train)
		tuple.AlgoKey = "algo1"
		tuple.Dataset = &domain.DatasetRef{Key: "ds1", SampleKeys: []string{"s1", "s2", "s3"}}

		if err := fx.scheduler.ScheduleTrain(ctx, tuple); err != nil {
			t.Fatalf("unexpected error: %+v", err)
		}

		rec := fx.spawner.spawns[0]
		if rec.command != "train --rank 0 --fake-data --n-fake-samples 3" {
			t.Errorf("command: %q", rec.command)
		}
		if rec.hostOf("/sandbox/data") != "" {
			t.Errorf("remote dataset must not mount raw samples: %+v", rec.volumes)
		}
	})

	t.Run("in-models are linked and named in ordinal order", func(t *testing.T) {
		fx := newFixture(t)
		fx.putAlgo("algo1")
		fx.putLocalDataset(t, "local_ds1", "local_s1")

		modelA := filepath.Join(fx.root, "modelA")
		modelB := filepath.Join(fx.root, "modelB")
		writeFile(t, modelA, "weights A")
		writeFile(t, modelB, "weights B")

		seen := map[string]string{}
		fx.spawner.observe = func(rec spawnRecord) {
			host := rec.hostOf("/sandbox/model")
			entries, err := os.ReadDir(host)
			if err != nil {
				t.Fatal(err)
			}
			for _, e := range entries {
				content, err := os.ReadFile(filepath.Join(host, e.Name()))
				if err != nil {
					t.Fatal(err)
				}
				seen[e.Name()] = string(content)
			}
		}

		tuple := domain.NewTuple("t2", domain.Train)
		tuple.AlgoKey = "algo1"
		tuple.Rank = 1
		tuple.Dataset = &domain.DatasetRef{Key: "local_ds1", SampleKeys: []string{"local_s1"}}
		tuple.InModels = []domain.InModel{
			{Key: "aaa", StorageAddress: modelA},
			{Key: "bbb", StorageAddress: modelB},
		}

		if err := fx.scheduler.ScheduleTrain(ctx, tuple); err != nil {
			t.Fatalf("unexpected error: %+v", err)
		}

		rec := fx.spawner.spawns[0]
		if rec.command != "train --rank 1 0_aaa 1_bbb" {
			t.Errorf("command: %q", rec.command)
		}
		if seen["0_aaa"] != "weights A" || seen["1_bbb"] != "weights B" {
			t.Errorf("in-models not materialized intact: %+v", seen)
		}
	})

	t.Run("an aggregate tuple needs no dataset and aggregates in-models", func(t *testing.T) {
		fx := newFixture(t)
		fx.putAlgo("agg1")

		model := filepath.Join(fx.root, "model")
		writeFile(t, model, "weights")

		tuple := domain.NewTuple("t3", domain.Aggregate)
		tuple.AlgoKey = "agg1"
		tuple.Rank = 2
		tuple.InModels = []domain.InModel{{Key: "aaa", StorageAddress: model}}

		if err := fx.scheduler.ScheduleTrain(ctx, tuple); err != nil {
			t.Fatalf("unexpected error: %+v", err)
		}

		rec := fx.spawner.spawns[0]
		if rec.command != "aggregate --rank 2 0_aaa" {
			t.Errorf("command: %q", rec.command)
		}
		if rec.hostOf("/sandbox/opener/__init__.py") != "" {
			t.Errorf("aggregate must not mount an opener: %+v", rec.volumes)
		}
		if tuple.OutModel == nil {
			t.Error("no output model recorded")
		}
	})

	t.Run("a composite tuple consumes head/trunk models and outputs both", func(t *testing.T) {
		fx := newFixture(t)
		fx.putAlgo("algo1")
		fx.putLocalDataset(t, "local_ds1", "local_s1")

		head := filepath.Join(fx.root, "head")
		trunk := filepath.Join(fx.root, "trunk")
		writeFile(t, head, "head weights")
		writeFile(t, trunk, "trunk weights")

		tuple := domain.NewTuple("t4", domain.CompositeTrain)
		tuple.AlgoKey = "algo1"
		tuple.Dataset = &domain.DatasetRef{Key: "local_ds1", SampleKeys: []string{"local_s1"}}
		tuple.InHeadModel = &domain.InModel{Key: "h", StorageAddress: head}
		tuple.InTrunkModel = &domain.InModel{Key: "tr", StorageAddress: trunk}

		if err := fx.scheduler.ScheduleTrain(ctx, tuple); err != nil {
			t.Fatalf("unexpected error: %+v", err)
		}

		rec := fx.spawner.spawns[0]
		expected := "train --rank 0" +
			" --input-head-model-filename /sandbox/input_models/input_head_model" +
			" --input-trunk-model-filename /sandbox/input_models/input_trunk_model"
		if rec.command != expected {
			t.Errorf("command: (actual, expected) = (%q, %q)", rec.command, expected)
		}

		if tuple.OutHeadModel == nil || tuple.OutTrunkModel == nil {
			t.Fatal("composite outputs not recorded")
		}
		headContent, _ := os.ReadFile(tuple.OutHeadModel.StorageAddress)
		trunkContent, _ := os.ReadFile(tuple.OutTrunkModel.StorageAddress)
		if string(headContent) != "trained weights (head)" || string(trunkContent) != "trained weights (trunk)" {
			t.Errorf("persisted composite models: (%q, %q)", headContent, trunkContent)
		}
	})

	t.Run("a composite tuple without in-models gets no model flags", func(t *testing.T) {
		fx := newFixture(t)
		fx.putAlgo("algo1")
		fx.putLocalDataset(t, "local_ds1", "local_s1")

		tuple := domain.NewTuple("t5", domain.CompositeTrain)
		tuple.AlgoKey = "algo1"
		tuple.Dataset = &domain.DatasetRef{Key: "local_ds1", SampleKeys: []string{"local_s1"}}

		if err := fx.scheduler.ScheduleTrain(ctx, tuple); err != nil {
			t.Fatalf("unexpected error: %+v", err)
		}
		if rec := fx.spawner.spawns[0]; rec.command != "train --rank 0" {
			t.Errorf("command: %q", rec.command)
		}
	})

	t.Run("a failing job leaves the tuple Failed and the scratch dir gone", func(t *testing.T) {
		fx := newFixture(t)
		fx.putAlgo("algo1")
		fx.putLocalDataset(t, "local_ds1", "local_s1")
		fx.spawner.err = fmt.Errorf("%w: job exploded", domain.ErrExecution)
		fx.registry.Register(domain.ComputePlan{ID: "cp1", TupleCount: 1})

		tuple := domain.NewTuple("t6", domain.Train)
		tuple.AlgoKey = "algo1"
		tuple.ComputePlanID = "cp1"
		tuple.Dataset = &domain.DatasetRef{Key: "local_ds1", SampleKeys: []string{"local_s1"}}

		err := fx.scheduler.ScheduleTrain(ctx, tuple)
		if !errors.Is(err, domain.ErrExecution) {
			t.Errorf("wrong error: %+v", err)
		}
		if tuple.Status() != domain.Failed {
			t.Errorf("status: (actual, expected) = (%s, %s)", tuple.Status(), domain.Failed)
		}
		if tuple.OutModel != nil || tuple.Log != "" {
			t.Errorf("failed tuple must not carry outputs: %+v", tuple)
		}
		if _, err := os.Stat(fx.scratchDir("t6")); !os.IsNotExist(err) {
			t.Error("scratch directory survived failure")
		}

		plan := try.To(fx.registry.Get("cp1")).OrFatal(t)
		if plan.DoneCount != 0 {
			t.Errorf("failed tuple counted as done: %+v", plan)
		}
	})

	t.Run("a missing algo fails the tuple with ErrMissingAsset", func(t *testing.T) {
		fx := newFixture(t)
		fx.putLocalDataset(t, "local_ds1", "local_s1")

		tuple := domain.NewTuple("t7", domain.Train)
		tuple.AlgoKey = "nope"
		tuple.Dataset = &domain.DatasetRef{Key: "local_ds1", SampleKeys: []string{"local_s1"}}

		if err := fx.scheduler.ScheduleTrain(ctx, tuple); !errors.Is(err, domain.ErrMissingAsset) {
			t.Errorf("wrong error: %+v", err)
		}
		if tuple.Status() != domain.Failed {
			t.Errorf("status: (actual, expected) = (%s, %s)", tuple.Status(), domain.Failed)
		}
	})

	t.Run("it refuses non-train-like tuples and datasetless train tuples", func(t *testing.T) {
		fx := newFixture(t)

		if err := fx.scheduler.ScheduleTrain(ctx, domain.NewTuple("t8", domain.Test)); err == nil {
			t.Error("test tuple accepted for training")
		}
		if err := fx.scheduler.ScheduleTrain(ctx, domain.NewTuple("t9", domain.Train)); err == nil {
			t.Error("train tuple without dataset accepted")
		}
		if len(fx.spawner.spawns) != 0 {
			t.Errorf("jobs spawned despite precondition failures: %+v", fx.spawner.spawns)
		}
	})

	t.Run("tuples of a plan share the local volume and drive the plan Done", func(t *testing.T) {
		fx := newFixture(t)
		fx.putAlgo("algo1")
		fx.putLocalDataset(t, "local_ds1", "local_s1")
		fx.registry.Register(domain.ComputePlan{ID: "cp1", TupleCount: 2})

		locals := []string{}
		fx.spawner.observe = func(rec spawnRecord) {
			locals = append(locals, rec.hostOf("/sandbox/local"))
		}

		for nth, key := range []string{"t10", "t11"} {
			tuple := domain.NewTuple(key, domain.Train)
			tuple.AlgoKey = "algo1"
			tuple.Rank = nth
			tuple.ComputePlanID = "cp1"
			tuple.Dataset = &domain.DatasetRef{Key: "local_ds1", SampleKeys: []string{"local_s1"}}
			if err := fx.scheduler.ScheduleTrain(ctx, tuple); err != nil {
				t.Fatalf("unexpected error: %+v", err)
			}
		}

		if len(locals) != 2 || locals[0] == "" || locals[0] != locals[1] {
			t.Errorf("plan-local volume not shared: %+v", locals)
		}

		plan := try.To(fx.registry.Get("cp1")).OrFatal(t)
		if plan.Status != domain.Done || plan.DoneCount != 2 {
			t.Errorf("plan not completed: %+v", plan)
		}
	})

	t.Run("an output model feeds the next tuple byte-identical", func(t *testing.T) {
		fx := newFixture(t)
		fx.putAlgo("algo1")
		fx.putLocalDataset(t, "local_ds1", "local_s1")
		fx.spawner.modelContent = "generation 1 weights"

		first := domain.NewTuple("t12", domain.Train)
		first.AlgoKey = "algo1"
		first.Dataset = &domain.DatasetRef{Key: "local_ds1", SampleKeys: []string{"local_s1"}}
		if err := fx.scheduler.ScheduleTrain(ctx, first); err != nil {
			t.Fatalf("unexpected error: %+v", err)
		}

		second := domain.NewTuple("t13", domain.Train)
		second.AlgoKey = "algo1"
		second.Rank = 1
		second.Dataset = &domain.DatasetRef{Key: "local_ds1", SampleKeys: []string{"local_s1"}}
		second.InModels = []domain.InModel{
			{Key: first.OutModel.Key, StorageAddress: first.OutModel.StorageAddress},
		}

		var relayed []byte
		fx.spawner.observe = func(rec spawnRecord) {
			if len(fx.spawner.spawns) != 2 {
				return
			}
			host := rec.hostOf("/sandbox/model")
			content, err := os.ReadFile(filepath.Join(host, "0_"+first.OutModel.Key))
			if err != nil {
				t.Fatal(err)
			}
			relayed = content
		}

		if err := fx.scheduler.ScheduleTrain(ctx, second); err != nil {
			t.Fatalf("unexpected error: %+v", err)
		}
		if string(relayed) != "generation 1 weights" {
			t.Errorf("model bytes changed between tuples: %q", relayed)
		}
	})
}

func TestScheduleTest(t *testing.T) {
	ctx := context.Background()

	// train one plain tuple the fixture's test tuples can reference.
	train := func(t *testing.T, fx *fixture) *domain.Tuple {
		t.Helper()
		tuple := domain.NewTuple("trained", domain.Train)
		tuple.AlgoKey = "algo1"
		tuple.Dataset = &domain.DatasetRef{Key: "local_ds1", SampleKeys: []string{"local_s1"}}
		if err := fx.scheduler.ScheduleTrain(ctx, tuple); err != nil {
			t.Fatalf("cannot prepare traintuple: %+v", err)
		}
		fx.store.PutTuple(tuple)
		fx.spawner.spawns = nil
		return tuple
	}

	t.Run("it predicts then scores against a remote test dataset", func(t *testing.T) {
		fx := newFixture(t)
		fx.putAlgo("algo1")
		fx.putLocalDataset(t, "local_ds1", "local_s1")
		fx.store.PutDataset(domain.Dataset{
			Key:    "ds2",
			Opener: domain.Resource{StorageAddress: filepath.Join(fx.root, "opener2.py")},
		})
		fx.store.PutObjective(domain.Objective{
			Key:     "obj1",
			Metrics: domain.Resource{StorageAddress: "substra/obj1-metrics:latest"},
			TestDataset: domain.TestDataset{
				DatasetKey:     "ds2",
				DataSampleKeys: []string{"s1", "s2", "s3", "s4", "s5"},
			},
		})
		trained := train(t, fx)

		tuple := domain.NewTuple("test1", domain.Test)
		tuple.TraintupleKey = trained.Key
		tuple.ObjectiveKey = "obj1"
		tuple.Dataset = &domain.DatasetRef{Key: "ds2"}

		if err := fx.scheduler.ScheduleTest(ctx, tuple); err != nil {
			t.Fatalf("unexpected error: %+v", err)
		}

		if len(fx.spawner.spawns) != 2 {
			t.Fatalf("spawn count: (actual, expected) = (%d, 2)", len(fx.spawner.spawns))
		}
		predict, score := fx.spawner.spawns[0], fx.spawner.spawns[1]

		expectedPredict := "predict --fake-data --n-fake-samples 5 /sandbox/model/" + trained.OutModel.Key
		if predict.command != expectedPredict {
			t.Errorf("predict command: (actual, expected) = (%q, %q)", predict.command, expectedPredict)
		}
		if predict.image != "substra/algo1:latest" {
			t.Errorf("predict must run the traintuple's algo: %+v", predict)
		}

		if score.command != "--fake-data-mode 1 --n-fake-samples 5" {
			t.Errorf("score command: %q", score.command)
		}
		if score.name != scheduler.DefaultMetricsImage || score.image != "substra/obj1-metrics:latest" {
			t.Errorf("score invocation: %+v", score)
		}
		if score.hostOf("/sandbox/pred") != predict.hostOf("/sandbox/pred") {
			t.Error("score stage does not see the predictions volume")
		}

		if tuple.Dataset.Perf != 0.87 {
			t.Errorf("perf: (actual, expected) = (%v, 0.87)", tuple.Dataset.Perf)
		}
		if tuple.Status() != domain.Done {
			t.Errorf("status: (actual, expected) = (%s, %s)", tuple.Status(), domain.Done)
		}
		if tuple.Log != "log of algo-algo1\n\nlog of "+scheduler.DefaultMetricsImage {
			t.Errorf("log not concatenated: %q", tuple.Log)
		}

		persisted := filepath.Join(fx.ws.Root(), "performances", "test1", "performance.json")
		if _, err := os.Stat(persisted); err != nil {
			t.Errorf("performance not persisted: %s", err)
		}
		if _, err := os.Stat(fx.scratchDir("test1")); !os.IsNotExist(err) {
			t.Error("scratch directory survived success")
		}
	})

	t.Run("a local test dataset mounts real samples and scores without fakes", func(t *testing.T) {
		fx := newFixture(t)
		fx.putAlgo("algo1")
		fx.putLocalDataset(t, "local_ds1", "local_s1")
		fx.putLocalDataset(t, "local_ds2", "local_s2")
		fx.store.PutObjective(domain.Objective{
			Key:     "obj1",
			Metrics: domain.Resource{StorageAddress: "substra/obj1-metrics:latest"},
			TestDataset: domain.TestDataset{
				DatasetKey:     "local_ds2",
				DataSampleKeys: []string{"local_s2"},
			},
		})
		trained := train(t, fx)

		tuple := domain.NewTuple("test2", domain.Test)
		tuple.TraintupleKey = trained.Key
		tuple.ObjectiveKey = "obj1"
		tuple.Dataset = &domain.DatasetRef{Key: "local_ds2", SampleKeys: []string{"local_s2"}}

		if err := fx.scheduler.ScheduleTest(ctx, tuple); err != nil {
			t.Fatalf("unexpected error: %+v", err)
		}

		predict, score := fx.spawner.spawns[0], fx.spawner.spawns[1]
		expectedPredict := "predict /sandbox/model/" + trained.OutModel.Key
		if predict.command != expectedPredict {
			t.Errorf("predict command: (actual, expected) = (%q, %q)", predict.command, expectedPredict)
		}
		if score.command != "--fake-data-mode 0" {
			t.Errorf("score command: %q", score.command)
		}
		if predict.hostOf("/sandbox/data") == "" || predict.hostOf("/sandbox/data") != score.hostOf("/sandbox/data") {
			t.Error("both stages must mount the same data volume")
		}
	})

	t.Run("it tests a composite traintuple through its head and trunk", func(t *testing.T) {
		fx := newFixture(t)
		fx.putAlgo("algo1")
		fx.putLocalDataset(t, "local_ds1", "local_s1")
		fx.store.PutObjective(domain.Objective{
			Key:     "obj1",
			Metrics: domain.Resource{StorageAddress: "substra/obj1-metrics:latest"},
			TestDataset: domain.TestDataset{
				DatasetKey:     "local_ds1",
				DataSampleKeys: []string{"local_s1"},
			},
		})

		trained := domain.NewTuple("composite", domain.CompositeTrain)
		trained.AlgoKey = "algo1"
		trained.Dataset = &domain.DatasetRef{Key: "local_ds1", SampleKeys: []string{"local_s1"}}
		if err := fx.scheduler.ScheduleTrain(ctx, trained); err != nil {
			t.Fatalf("cannot prepare composite traintuple: %+v", err)
		}
		fx.store.PutTuple(trained)
		fx.spawner.spawns = nil

		tuple := domain.NewTuple("test3", domain.Test)
		tuple.TraintupleKey = trained.Key
		tuple.ObjectiveKey = "obj1"
		tuple.Dataset = &domain.DatasetRef{Key: "local_ds1", SampleKeys: []string{"local_s1"}}

		if err := fx.scheduler.ScheduleTest(ctx, tuple); err != nil {
			t.Fatalf("unexpected error: %+v", err)
		}

		expected := "predict" +
			" --input-head-model-filename /sandbox/model/" + trained.OutHeadModel.Hash +
			" --input-trunk-model-filename /sandbox/model/" + trained.OutTrunkModel.Hash
		if predict := fx.spawner.spawns[0]; predict.command != expected {
			t.Errorf("predict command: (actual, expected) = (%q, %q)", predict.command, expected)
		}
	})

	t.Run("a malformed perf output fails the tuple after both stages", func(t *testing.T) {
		fx := newFixture(t)
		fx.putAlgo("algo1")
		fx.putLocalDataset(t, "local_ds1", "local_s1")
		fx.store.PutObjective(domain.Objective{
			Key:     "obj1",
			Metrics: domain.Resource{StorageAddress: "substra/obj1-metrics:latest"},
			TestDataset: domain.TestDataset{
				DatasetKey:     "local_ds1",
				DataSampleKeys: []string{"local_s1"},
			},
		})
		trained := train(t, fx)
		fx.spawner.perfContent = `{"auc": 0.5}`

		tuple := domain.NewTuple("test4", domain.Test)
		tuple.TraintupleKey = trained.Key
		tuple.ObjectiveKey = "obj1"
		tuple.Dataset = &domain.DatasetRef{Key: "local_ds1", SampleKeys: []string{"local_s1"}}

		err := fx.scheduler.ScheduleTest(ctx, tuple)
		if !errors.Is(err, domain.ErrMalformedOutput) {
			t.Errorf("wrong error: %+v", err)
		}
		if tuple.Status() != domain.Failed {
			t.Errorf("status: (actual, expected) = (%s, %s)", tuple.Status(), domain.Failed)
		}
		if tuple.Dataset.Perf != 0 {
			t.Errorf("perf recorded despite failure: %v", tuple.Dataset.Perf)
		}
	})

	t.Run("it refuses testing against a tuple that is not train-like", func(t *testing.T) {
		fx := newFixture(t)
		fx.putLocalDataset(t, "local_ds1", "local_s1")
		other := domain.NewTuple("other-test", domain.Test)
		fx.store.PutTuple(other)

		tuple := domain.NewTuple("test5", domain.Test)
		tuple.TraintupleKey = "other-test"
		tuple.ObjectiveKey = "obj1"
		tuple.Dataset = &domain.DatasetRef{Key: "local_ds1"}

		if err := fx.scheduler.ScheduleTest(ctx, tuple); err == nil {
			t.Error("test against a testtuple accepted")
		}
		if tuple.Status() != domain.Failed {
			t.Errorf("status: (actual, expected) = (%s, %s)", tuple.Status(), domain.Failed)
		}
	})
}

func TestTrainCommandGolden(t *testing.T) {
	// end-to-end command lines, one per variant, as the job contract fixes them
	ctx := context.Background()

	for name, testcase := range map[string]struct {
		build    func(fx *fixture) *domain.Tuple
		expected string
	}{
		"train, remote data, two in-models": {
			build: func(fx *fixture) *domain.Tuple {
				fx.store.PutDataset(domain.Dataset{
					Key:    "ds1",
					Opener: domain.Resource{StorageAddress: filepath.Join(fx.root, "opener.py")},
				})
				modelPath := filepath.Join(fx.root, "m")
				writeFile(t, modelPath, "m")
				tuple := domain.NewTuple("g1", domain.Train)
				tuple.AlgoKey = "algo1"
				tuple.Rank = 3
				tuple.Dataset = &domain.DatasetRef{Key: "ds1", SampleKeys: []string{"s1", "s2"}}
				tuple.InModels = []domain.InModel{
					{Key: "x", StorageAddress: modelPath},
					{Key: "y", StorageAddress: modelPath},
				}
				return tuple
			},
			expected: "train --rank 3 --fake-data --n-fake-samples 2 0_x 1_y",
		},
		"composite, trunk only": {
			build: func(fx *fixture) *domain.Tuple {
				fx.putLocalDataset(t, "local_ds1", "local_s1")
				trunkPath := filepath.Join(fx.root, "trunk")
				writeFile(t, trunkPath, "trunk")
				tuple := domain.NewTuple("g2", domain.CompositeTrain)
				tuple.AlgoKey = "algo1"
				tuple.Dataset = &domain.DatasetRef{Key: "local_ds1", SampleKeys: []string{"local_s1"}}
				tuple.InTrunkModel = &domain.InModel{Key: "tr", StorageAddress: trunkPath}
				return tuple
			},
			expected: "train --rank 0 --input-trunk-model-filename /sandbox/input_models/input_trunk_model",
		},
		"aggregate, no in-models": {
			build: func(fx *fixture) *domain.Tuple {
				tuple := domain.NewTuple("g3", domain.Aggregate)
				tuple.AlgoKey = "algo1"
				return tuple
			},
			expected: "aggregate --rank 0",
		},
	} {
		t.Run(name, func(t *testing.T) {
			fx := newFixture(t)
			fx.putAlgo("algo1")
			tuple := testcase.build(fx)

			if err := fx.scheduler.ScheduleTrain(ctx, tuple); err != nil {
				t.Fatalf("unexpected error: %+v", err)
			}
			if actual := fx.spawner.spawns[0].command; actual != testcase.expected {
				t.Errorf("command: (actual, expected) = (%q, %q)", actual, testcase.expected)
			}
		})
	}
}
