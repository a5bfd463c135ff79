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

// ScheduleTrain executes one train-like tuple (Train, CompositeTrain or
// Aggregate), blocking until the container is done.
//
// On any failure the tuple is left Failed, its scratch directory is
// released, and the error is returned carrying the tuple key; no output
// model nor log is written on that path.
func (s *Scheduler) ScheduleTrain(ctx context.Context, t *domain.Tuple) (err error) {
	if !t.Kind.Trainlike() {
		return fmt.Errorf("tuple %s: cannot train a %s", t.Key, t.Kind)
	}
	if t.Kind != domain.Aggregate && t.Dataset == nil {
		return fmt.Errorf("tuple %s: %s has no dataset", t.Key, t.Kind)
	}

	defer func() {
		if err != nil {
			t.SetStatus(domain.Failed)
			err = xe.WrapWithNote(fmt.Sprintf("tuple %s: train", t.Key), err)
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

	algo, err := s.store.DownloadAlgo(ctx, t.Kind, t.AlgoKey)
	if err != nil {
		return err
	}

	volumes := spawner.Volumes{}
	var inputModelsVolume, outputModelsVolume, modelsVolume string

	switch t.Kind {
	case domain.CompositeTrain:
		if inputModelsVolume, err = workspace.EnsureDir(filepath.Join(jobDir, "input_models"), false); err != nil {
			return err
		}
		if outputModelsVolume, err = workspace.EnsureDir(filepath.Join(jobDir, "output_models"), false); err != nil {
			return err
		}
		if t.InHeadModel != nil {
			if err := workspace.LinkOrCopy(
				t.InHeadModel.StorageAddress,
				filepath.Join(inputModelsVolume, inputHeadModelName),
			); err != nil {
				return fmt.Errorf("%w: head model: %s", domain.ErrPersistence, err)
			}
		}
		if t.InTrunkModel != nil {
			if err := workspace.LinkOrCopy(
				t.InTrunkModel.StorageAddress,
				filepath.Join(inputModelsVolume, inputTrunkModelName),
			); err != nil {
				return fmt.Errorf("%w: trunk model: %s", domain.ErrPersistence, err)
			}
		}
		volumes[inputModelsVolume] = volumeInputModelsRO
		volumes[outputModelsVolume] = volumeOutputModelsRW

	case domain.Train, domain.Aggregate:
		// The models volume doubles as the output place of the job, so it
		// exists even when there is no in-model to link.
		if modelsVolume, err = workspace.EnsureDir(filepath.Join(jobDir, "models"), false); err != nil {
			return err
		}
		for nth, model := range t.InModels {
			// ordinal prefix keeps names unique and enumeration order
			// aligned with the command-line arguments
			if err := workspace.LinkOrCopy(
				model.StorageAddress,
				filepath.Join(modelsVolume, fmt.Sprintf("%d_%s", nth, model.Key)),
			); err != nil {
				return fmt.Errorf("%w: in-model %s: %s", domain.ErrPersistence, model.Key, err)
			}
		}
		volumes[modelsVolume] = volumeModelsRW
	}

	if t.Kind != domain.Aggregate {
		dataset, err := s.store.DownloadDataset(ctx, t.Dataset.Key)
		if err != nil {
			return err
		}
		volumes[dataset.Opener.StorageAddress] = volumeOpener

		if domain.IsLocal(t.Dataset.Key) {
			dataVolume, err := s.ws.DataVolume(jobDir, t.Dataset.SampleKeys, s.store)
			if err != nil {
				return err
			}
			volumes[dataVolume] = volumeDataSamples
		}
	}

	if t.ComputePlanID != "" {
		localVolume, err := s.ws.PlanLocalDir(t.ComputePlanID)
		if err != nil {
			return err
		}
		volumes[localVolume] = volumeLocal
	}

	command := trainCommand(t)

	logs, err := s.spawner.Spawn(ctx, "algo-"+t.AlgoKey, algo.Content.StorageAddress, command, volumes)
	if err != nil {
		return err
	}

	switch t.Kind {
	case domain.CompositeTrain:
		head, err := s.ws.SaveOutModel(t.Key, outputHeadModelName, outputModelsVolume)
		if err != nil {
			return err
		}
		trunk, err := s.ws.SaveOutModel(t.Key, outputTrunkModelName, outputModelsVolume)
		if err != nil {
			return err
		}
		t.OutHeadModel = &head
		t.OutTrunkModel = &trunk
	default:
		model, err := s.ws.SaveOutModel(t.Key, plainModelName, modelsVolume)
		if err != nil {
			return err
		}
		t.OutModel = &model
	}

	t.Log = logs
	if err := t.SetStatus(domain.Done); err != nil {
		return err
	}
	s.logger.Printf("tuple %s: done", t.Key)

	if t.ComputePlanID != "" {
		if _, err := s.plans.TupleDone(t.ComputePlanID); err != nil {
			return err
		}
	}
	return nil
}
