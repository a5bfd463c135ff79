package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	wconf "github.com/jeandut/substra/pkg/configs/worker"
	"github.com/jeandut/substra/pkg/dal"
	"github.com/jeandut/substra/pkg/domain"
	"github.com/jeandut/substra/pkg/kubeutil"
	"github.com/jeandut/substra/pkg/plans"
	"github.com/jeandut/substra/pkg/rest"
	"github.com/jeandut/substra/pkg/scheduler"
	"github.com/jeandut/substra/pkg/spawner"
	k8sspawner "github.com/jeandut/substra/pkg/spawner/k8s"
	"github.com/jeandut/substra/pkg/utils/filewatch"
	kos "github.com/jeandut/substra/pkg/utils/os"
	"github.com/jeandut/substra/pkg/utils/try"
	"github.com/jeandut/substra/pkg/workspace"
)

func main() {
	logger := log.Default()
	ctx, cancel := signal.NotifyContext(
		context.Background(), os.Interrupt, os.Kill, syscall.SIGTERM,
	)
	// call cancel() when this function exits
	defer cancel()

	pconfig := flag.String(
		"config", kos.GetEnvOr("SUBSTRA_WORKER_CONFIG", ""), "path to worker config file",
	)
	pplan := flag.String("plan", "", "path to the manifest of tuples to execute")
	pkubeconfig := flag.String("kubeconfig", "", "(optional) path to kubeconfig file")
	flag.Parse()

	if *pplan == "" {
		logger.Fatal("no manifest given (-plan)")
	}

	conf := &wconf.Config{}
	if *pconfig != "" {
		{
			// a worker started on stale config should stop, not limp along
			wctx, cancel, err := filewatch.UntilModifyContext(ctx, *pconfig)
			if err != nil {
				logger.Fatal(err)
			}
			defer cancel()
			ctx = wctx
		}
		conf = try.To(wconf.Load(*pconfig)).OrFatal(logger)
	} else {
		conf = try.To(wconf.Unmarshal([]byte{})).OrFatal(logger)
	}

	ws := try.To(workspace.New(conf.WorkDir)).OrFatal(logger)

	local := dal.NewMemoryStore()
	var store dal.DataAccess = local
	if conf.ControlPlane.URL != "" {
		client := rest.New(conf.ControlPlane.URL, conf.ControlPlane.Token, conf.ControlPlane.Timeout())
		store = dal.NewRemoteStore(local, client, conf.WorkDir+"/assets")
	}

	var spawn spawner.Spawner
	switch conf.Spawner.Kind {
	case wconf.SpawnK8s:
		clientset := try.To(kubeutil.ConnectToK8s(*pkubeconfig)).OrFatal(logger)
		spawn = k8sspawner.New(clientset, conf.Spawner.Namespace)
	default:
		spawn = spawner.Docker{Bin: conf.Spawner.DockerBin}
	}

	registry := plans.NewRegistry()

	options := []scheduler.Option{scheduler.WithLogger(logger)}
	if conf.MetricsImage != "" {
		options = append(options, scheduler.WithMetricsImage(conf.MetricsImage))
	}
	sched := scheduler.New(store, registry, spawn, ws, options...)

	manifest := try.To(LoadManifest(*pplan)).OrFatal(logger)
	tuples := try.To(manifest.Register(local, registry)).OrFatal(logger)

	logger.Printf("executing %d tuples from %s", len(tuples), *pplan)

	for _, tuple := range tuples {
		if err := manifest.BindInModels(tuple, local); err != nil {
			logger.Fatal(err)
		}

		var err error
		switch tuple.Kind {
		case domain.Test:
			err = sched.ScheduleTest(ctx, tuple)
		default:
			err = sched.ScheduleTrain(ctx, tuple)
		}

		if err == nil {
			continue
		} else if errors.Is(err, context.Canceled) {
			logger.Fatal(err, "(canceled by:", context.Cause(ctx), ")")
		}
		logger.Fatal(err)
	}

	for _, tuple := range tuples {
		logger.Printf("tuple %s: %s", tuple.Key, tuple.Status())
	}
}
