package spawner

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/go-containerregistry/pkg/name"
	"github.com/jeandut/substra/pkg/domain"
)

// Docker runs jobs through the local docker CLI.
//
// When image points at a directory holding a Dockerfile, the image is built
// from it and tagged by the job name; otherwise image is taken as an image
// reference as-is.
type Docker struct {
	// docker binary to invoke. Default: "docker".
	Bin string
}

var _ Spawner = Docker{}

func (d Docker) bin() string {
	if d.Bin == "" {
		return "docker"
	}
	return d.Bin
}

func (d Docker) Spawn(ctx context.Context, jobName string, image string, command string, volumes Volumes) (string, error) {
	if err := checkVolumes(volumes); err != nil {
		return "", err
	}

	ref, err := d.resolveImage(ctx, jobName, image)
	if err != nil {
		return "", err
	}

	args := []string{"run", "--rm", "--name", jobName}
	for host, mount := range volumes {
		args = append(args, "-v", fmt.Sprintf("%s:%s:%s", host, mount.Bind, mount.Mode))
	}
	args = append(args, ref.Name())
	args = append(args, strings.Fields(command)...)

	out, err := exec.CommandContext(ctx, d.bin(), args...).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%w: %s: %s: %s", domain.ErrExecution, jobName, err, string(out))
	}
	return string(out), nil
}

// resolveImage builds the image when given a build context directory, and
// validates the reference either way.
func (d Docker) resolveImage(ctx context.Context, jobName string, image string) (name.Reference, error) {
	stat, statErr := os.Stat(image)
	if statErr != nil || !stat.IsDir() {
		ref, err := name.ParseReference(image)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: bad image reference %q: %s", domain.ErrExecution, jobName, image, err)
		}
		return ref, nil
	}

	if _, err := os.Stat(filepath.Join(image, "Dockerfile")); err != nil {
		return nil, fmt.Errorf("%w: %s: %s has no Dockerfile", domain.ErrExecution, jobName, image)
	}

	tag, err := name.NewTag(jobName)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: cannot tag image: %s", domain.ErrExecution, jobName, err)
	}

	out, err := exec.CommandContext(ctx, d.bin(), "build", "-t", tag.Name(), image).CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: docker build: %s: %s", domain.ErrExecution, jobName, err, string(out))
	}
	return tag, nil
}
