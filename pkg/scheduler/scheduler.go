// Package scheduler executes ML tuples as containerized jobs: it resolves
// their dependencies, lays out per-job volumes, runs the container, persists
// outputs and tracks compute-plan progress.
package scheduler

import (
	"log"

	"github.com/jeandut/substra/pkg/dal"
	"github.com/jeandut/substra/pkg/plans"
	"github.com/jeandut/substra/pkg/spawner"
	"github.com/jeandut/substra/pkg/workspace"
)

// Container-side mount points. These paths are a contract with the job code
// running inside the sandbox; they never vary per invocation.
var (
	volumeDataSamples    = spawner.Mount{Bind: "/sandbox/data", Mode: spawner.ReadOnly}
	volumeModelsRO       = spawner.Mount{Bind: "/sandbox/model", Mode: spawner.ReadOnly}
	volumeModelsRW       = spawner.Mount{Bind: "/sandbox/model", Mode: spawner.ReadWrite}
	volumeOpener         = spawner.Mount{Bind: "/sandbox/opener/__init__.py", Mode: spawner.ReadOnly}
	volumeOutputPred     = spawner.Mount{Bind: "/sandbox/pred", Mode: spawner.ReadWrite}
	volumeLocal          = spawner.Mount{Bind: "/sandbox/local", Mode: spawner.ReadWrite}
	volumeInputModelsRO  = spawner.Mount{Bind: "/sandbox/input_models", Mode: spawner.ReadOnly}
	volumeOutputModelsRW = spawner.Mount{Bind: "/sandbox/output_models", Mode: spawner.ReadWrite}
)

// Fixed model file names inside composite-train volumes.
const (
	inputHeadModelName   = "input_head_model"
	inputTrunkModelName  = "input_trunk_model"
	outputHeadModelName  = "output_head_model"
	outputTrunkModelName = "output_trunk_model"

	// single-output variants write this name.
	plainModelName = "model"
)

// tag of the image scoring predictions; same for every objective.
const DefaultMetricsImage = "substra/metrics"

type Scheduler struct {
	store        dal.DataAccess
	plans        *plans.Registry
	spawner      spawner.Spawner
	ws           *workspace.Manager
	metricsImage string
	logger       *log.Logger
}

type Option func(*Scheduler)

func WithMetricsImage(image string) Option {
	return func(s *Scheduler) { s.metricsImage = image }
}

func WithLogger(logger *log.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

func New(
	store dal.DataAccess,
	registry *plans.Registry,
	spawn spawner.Spawner,
	ws *workspace.Manager,
	options ...Option,
) *Scheduler {
	s := &Scheduler{
		store:        store,
		plans:        registry,
		spawner:      spawn,
		ws:           ws,
		metricsImage: DefaultMetricsImage,
		logger:       log.Default(),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}
