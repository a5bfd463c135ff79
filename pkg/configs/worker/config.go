package worker

import (
	"fmt"
	"os"
	"time"

	kpath "github.com/jeandut/substra/pkg/utils/path"
	"gopkg.in/yaml.v3"
)

type SpawnerKind string

const (
	SpawnDocker SpawnerKind = "docker"
	SpawnK8s    SpawnerKind = "k8s"
)

type Config struct {
	// directory under which "local-worker" is created. Default: ".".
	WorkDir string `yaml:"workdir"`

	// image tag scoring predictions.
	MetricsImage string `yaml:"metricsImage"`

	Spawner      SpawnerConfig      `yaml:"spawner"`
	ControlPlane ControlPlaneConfig `yaml:"controlPlane"`
}

type SpawnerConfig struct {
	Kind SpawnerKind `yaml:"kind"`

	// docker binary to invoke (docker spawner).
	DockerBin string `yaml:"dockerBin"`

	// namespace jobs are created in (k8s spawner).
	Namespace string `yaml:"namespace"`
}

// ControlPlaneConfig describes the remote backend assets are fetched from.
// With an empty URL the worker runs fully local.
type ControlPlaneConfig struct {
	URL            string `yaml:"url"`
	Token          string `yaml:"token"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
}

func (c ControlPlaneConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Load reads a worker config from a YAML file and fills defaults in.
func Load(filepath string) (*Config, error) {
	content, err := os.ReadFile(filepath)
	if err != nil {
		return nil, err
	}
	return Unmarshal(content)
}

func Unmarshal(conf []byte) (*Config, error) {
	out := &Config{}
	if err := yaml.Unmarshal(conf, out); err != nil {
		return nil, err
	}

	if out.WorkDir == "" {
		out.WorkDir = "."
	}
	wdir, err := kpath.Resolve(out.WorkDir)
	if err != nil {
		return nil, err
	}
	out.WorkDir = wdir

	if out.Spawner.Kind == "" {
		out.Spawner.Kind = SpawnDocker
	}
	switch out.Spawner.Kind {
	case SpawnDocker, SpawnK8s:
		// ok
	default:
		return nil, fmt.Errorf("unknown spawner kind: %s", out.Spawner.Kind)
	}
	if out.Spawner.Namespace == "" {
		out.Spawner.Namespace = "default"
	}

	return out, nil
}
