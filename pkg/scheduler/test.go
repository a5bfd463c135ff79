package scheduler

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/jeandut/substra/pkg/domain"
	xe "github.com/jeandut/substra/pkg/errors"
	"github.com/jeandut/substra/pkg/spawner"
	"github.com/jeandut/substra/pkg/workspace"
)

// ScheduleTest executes one Test tuple: a predict stage against the
// referenced train-like tuple's model(s), then a score stage against the
// objective's metrics image, both synchronous and in sequence.
func (s *Scheduler) ScheduleTest(ctx context.Context, t *domain.Tuple) (err error) {
	if t.Kind != domain.Test {
		return fmt.Errorf("tuple %s: cannot test a %s", t.Key, t.Kind)
	}
	if t.Dataset == nil {
		return fmt.Errorf("tuple %s: test tuple has no dataset", t.Key)
	}

	stage := "predict"
	defer func() {
		if err != nil {
			t.SetStatus(domain.Failed)
			err = xe.WrapWithNote(fmt.Sprintf("tuple %s: %s", t.Key, stage), err)
		}
	}()

	if err := t.SetStatus(domain.Doing); err != nil {
		return err
	}
	s.logger.Printf("tuple %s: scheduling %s", t.Key, t.Kind)

	jobDir, release, err := s.ws.JobDir(t.Key)
	if err != nil {
		return err
	}
	defer release()

	traintuple, err := s.store.GetTuple(t.TraintupleKey)
	if err != nil {
		return err
	}
	if !traintuple.Kind.Trainlike() {
		return fmt.Errorf("tuple %s is a %s, not a train-like tuple", traintuple.Key, traintuple.Kind)
	}

	algo, err := s.store.DownloadAlgo(ctx, traintuple.Kind, traintuple.AlgoKey)
	if err != nil {
		return err
	}
	objective, err := s.store.DownloadObjective(ctx, t.ObjectiveKey)
	if err != nil {
		return err
	}
	dataset, err := s.store.DownloadDataset(ctx, t.Dataset.Key)
	if err != nil {
		return err
	}

	predictionsVolume, err := workspace.EnsureDir(filepath.Join(jobDir, "pred"), false)
	if err != nil {
		return err
	}
	modelsVolume, err := workspace.EnsureDir(filepath.Join(jobDir, "models"), false)
	if err != nil {
		return err
	}

	volumes := spawner.Volumes{
		dataset.Opener.StorageAddress: volumeOpener,
		modelsVolume:                  volumeModelsRO,
		predictionsVolume:             volumeOutputPred,
	}

	// The data volume is materialized once per call; the score stage mounts
	// the same directory again rather than rebuilding it.
	dataVolume := ""
	if domain.IsLocal(dataset.Key) {
		if dataVolume, err = s.ws.DataVolume(jobDir, t.Dataset.SampleKeys, s.store); err != nil {
			return err
		}
		volumes[dataVolume] = volumeDataSamples
	}

	if t.ComputePlanID != "" {
		localVolume, err := s.ws.PlanLocalDir(t.ComputePlanID)
		if err != nil {
			return err
		}
		volumes[localVolume] = volumeLocal
	}

	command := "predict"
	if !domain.IsLocal(dataset.Key) {
		command += " --fake-data"
		command += fmt.Sprintf(" --n-fake-samples %d", len(objective.TestDataset.DataSampleKeys))
	}

	switch traintuple.Kind {
	case domain.Train, domain.Aggregate:
		if traintuple.OutModel == nil {
			return fmt.Errorf("%w: tuple %s has no output model", domain.ErrMissingAsset, traintuple.Key)
		}
		if err := workspace.LinkOrCopy(
			traintuple.OutModel.StorageAddress,
			filepath.Join(modelsVolume, traintuple.OutModel.Key),
		); err != nil {
			return fmt.Errorf("%w: model of %s: %s", domain.ErrPersistence, traintuple.Key, err)
		}
		command += " " + spawner.ContainerPath(traintuple.OutModel.Key, volumeModelsRO)

	case domain.CompositeTrain:
		if traintuple.OutHeadModel == nil || traintuple.OutTrunkModel == nil {
			return fmt.Errorf("%w: tuple %s has no output models", domain.ErrMissingAsset, traintuple.Key)
		}
		if err := workspace.LinkOrCopy(
			traintuple.OutHeadModel.StorageAddress,
			filepath.Join(modelsVolume, traintuple.OutHeadModel.Hash),
		); err != nil {
			return fmt.Errorf("%w: head model of %s: %s", domain.ErrPersistence, traintuple.Key, err)
		}
		if err := workspace.LinkOrCopy(
			traintuple.OutTrunkModel.StorageAddress,
			filepath.Join(modelsVolume, traintuple.OutTrunkModel.Hash),
		); err != nil {
			return fmt.Errorf("%w: trunk model of %s: %s", domain.ErrPersistence, traintuple.Key, err)
		}
		command += compositeModelArgs(
			traintuple.OutHeadModel.Hash, traintuple.OutTrunkModel.Hash,
			volumeModelsRO,
		)
	}

	predictLogs, err := s.spawner.Spawn(ctx, "algo-"+traintuple.AlgoKey, algo.Content.StorageAddress, command, volumes)
	if err != nil {
		return err
	}

	stage = "score"
	volumes = spawner.Volumes{
		predictionsVolume:             volumeOutputPred,
		dataset.Opener.StorageAddress: volumeOpener,
	}

	var scoreCommand string
	if domain.IsLocal(dataset.Key) {
		volumes[dataVolume] = volumeDataSamples
		scoreCommand = fmt.Sprintf("--fake-data-mode %d", domain.ScoreFakeNone)
	} else {
		scoreCommand = fmt.Sprintf("--fake-data-mode %d", domain.ScoreFakeLabels)
		scoreCommand += fmt.Sprintf(" --n-fake-samples %d", len(objective.TestDataset.DataSampleKeys))
	}

	// the metrics image tag doubles as the job name, so a docker spawner
	// building from a metrics directory tags the result with it
	scoreLogs, err := s.spawner.Spawn(ctx, s.metricsImage, objective.Metrics.StorageAddress, scoreCommand, volumes)
	if err != nil {
		return err
	}

	perf, err := s.ws.SavePerformance(t.Key, predictionsVolume)
	if err != nil {
		return err
	}
	t.Dataset.Perf = perf

	t.Log = predictLogs + "\n\n" + scoreLogs
	if err := t.SetStatus(domain.Done); err != nil {
		return err
	}
	s.logger.Printf("tuple %s: done (perf %v)", t.Key, perf)

	if t.ComputePlanID != "" {
		if _, err := s.plans.TupleDone(t.ComputePlanID); err != nil {
			return err
		}
	}
	return nil
}
