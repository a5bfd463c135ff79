package scheduler

import (
	"fmt"

	"github.com/jeandut/substra/pkg/domain"
	"github.com/jeandut/substra/pkg/spawner"
)

// trainCommand builds the command line of a train-like tuple.
//
// The argument order is part of the job contract: rank first, fake-data
// flags next, model paths last (ordinal order for in-models).
func trainCommand(t *domain.Tuple) string {
	command := "train"
	if t.Kind == domain.Aggregate {
		command = "aggregate"
	}

	command += fmt.Sprintf(" --rank %d", t.Rank)

	if t.Kind != domain.Aggregate && !domain.IsLocal(t.Dataset.Key) {
		command += " --fake-data"
		command += fmt.Sprintf(" --n-fake-samples %d", len(t.Dataset.SampleKeys))
	}

	switch t.Kind {
	case domain.CompositeTrain:
		head, trunk := "", ""
		if t.InHeadModel != nil {
			head = inputHeadModelName
		}
		if t.InTrunkModel != nil {
			trunk = inputTrunkModelName
		}
		command += compositeModelArgs(head, trunk, volumeInputModelsRO)
	case domain.Train, domain.Aggregate:
		for nth, model := range t.InModels {
			command += fmt.Sprintf(" %d_%s", nth, model.Key)
		}
	}

	return command
}

// compositeModelArgs renders the head/trunk model path flags. Empty names
// are omitted (a composite tuple may start from scratch on either side).
func compositeModelArgs(headName string, trunkName string, mount spawner.Mount) string {
	command := ""
	if headName != "" {
		command += fmt.Sprintf(
			" --input-head-model-filename %s",
			spawner.ContainerPath(headName, mount),
		)
	}
	if trunkName != "" {
		command += fmt.Sprintf(
			" --input-trunk-model-filename %s",
			spawner.ContainerPath(trunkName, mount),
		)
	}
	return command
}
