// Package spawner runs container images against a set of volume mounts and
// captures their output.
package spawner

import (
	"context"
	"fmt"
	"path"

	"github.com/jeandut/substra/pkg/domain"
)

type Mode string

const (
	ReadOnly  Mode = "ro"
	ReadWrite Mode = "rw"
)

// Mount is the container-side half of a volume: where it is bound and how.
type Mount struct {
	Bind string
	Mode Mode
}

// Volumes maps host paths to container mounts.
type Volumes map[string]Mount

// Validate rejects volume sets where two host paths share one container
// bind; inside one invocation the mapping must be 1:1.
func (v Volumes) Validate() error {
	seen := map[string]string{}
	for host, mount := range v {
		if prev, ok := seen[mount.Bind]; ok {
			return fmt.Errorf("volumes conflict: %s and %s both bind %s", prev, host, mount.Bind)
		}
		seen[mount.Bind] = host
	}
	return nil
}

// ContainerPath is the path a job process sees for a volume entry when the
// volume is mounted at mount.Bind.
func ContainerPath(relativeKey string, mount Mount) string {
	return path.Join(mount.Bind, relativeKey)
}

// Spawner executes one container synchronously.
//
// Spawn blocks until the container exits and returns its captured
// stdout/stderr. A nonzero exit or a runtime fault yields an error wrapping
// domain.ErrExecution. There is no internal timeout; cancellation comes
// from ctx only.
type Spawner interface {
	Spawn(ctx context.Context, name string, image string, command string, volumes Volumes) (string, error)
}

// guard against misuse before handing volumes to a runtime.
func checkVolumes(volumes Volumes) error {
	if err := volumes.Validate(); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrExecution, err)
	}
	return nil
}
