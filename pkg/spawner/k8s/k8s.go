// Package k8s runs jobs as Kubernetes batch Jobs.
//
// Volumes are mounted as hostPath, so scheduler and cluster nodes must share
// the filesystem (single-node or shared-mount clusters).
package k8s

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/go-containerregistry/pkg/name"
	"github.com/jeandut/substra/pkg/domain"
	"github.com/jeandut/substra/pkg/spawner"
	ptr "github.com/jeandut/substra/pkg/utils/pointer"
	"github.com/jeandut/substra/pkg/utils/retry"
	kubebatch "k8s.io/api/batch/v1"
	kubecore "k8s.io/api/core/v1"
	kubeapimeta "k8s.io/apimachinery/pkg/apis/meta/v1"
	kubernetes "k8s.io/client-go/kubernetes"
)

const mainContainer = "main"

type Spawner struct {
	client    kubernetes.Interface
	namespace string
	poll      time.Duration
}

var _ spawner.Spawner = &Spawner{}

func New(client kubernetes.Interface, namespace string) *Spawner {
	return &Spawner{client: client, namespace: namespace, poll: 3 * time.Second}
}

func (s *Spawner) Spawn(ctx context.Context, jobName string, image string, command string, volumes spawner.Volumes) (string, error) {
	ref, err := name.ParseReference(image)
	if err != nil {
		return "", fmt.Errorf("%w: %s: bad image reference %q: %s", domain.ErrExecution, jobName, image, err)
	}

	job, err := buildJob(jobName, ref, command, volumes)
	if err != nil {
		return "", err
	}

	if _, err := s.client.BatchV1().Jobs(s.namespace).Create(ctx, job, kubeapimeta.CreateOptions{}); err != nil {
		return "", fmt.Errorf("%w: %s: create job: %s", domain.ErrExecution, jobName, err)
	}
	defer func() {
		// cleanup is detached from ctx so that canceled runs are removed too
		prop := kubeapimeta.DeletePropagationBackground
		s.client.BatchV1().Jobs(s.namespace).Delete(
			context.Background(), jobName, kubeapimeta.DeleteOptions{PropagationPolicy: &prop},
		)
	}()

	succeeded, err := retry.Blocking(ctx, retry.StaticBackoff(s.poll), func() (bool, error) {
		got, err := s.client.BatchV1().Jobs(s.namespace).Get(ctx, jobName, kubeapimeta.GetOptions{})
		if err != nil {
			return false, fmt.Errorf("%w: %s: %s", domain.ErrExecution, jobName, err)
		}
		if got.Status.Succeeded > 0 {
			return true, nil
		}
		if got.Status.Failed > 0 {
			return false, nil
		}
		return false, retry.ErrRetry
	})
	if err != nil {
		return "", err
	}

	logs, logErr := s.containerLog(ctx, jobName)
	if !succeeded {
		return "", fmt.Errorf("%w: %s: job failed: %s", domain.ErrExecution, jobName, logs)
	}
	if logErr != nil {
		return "", fmt.Errorf("%w: %s: read log: %s", domain.ErrExecution, jobName, logErr)
	}
	return logs, nil
}

func buildJob(jobName string, ref name.Reference, command string, volumes spawner.Volumes) (*kubebatch.Job, error) {
	if err := volumes.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrExecution, err)
	}

	vols := []kubecore.Volume{}
	mounts := []kubecore.VolumeMount{}
	nth := 0
	for host, mount := range volumes {
		volName := fmt.Sprintf("vol-%d", nth)
		nth += 1
		vols = append(vols, kubecore.Volume{
			Name: volName,
			VolumeSource: kubecore.VolumeSource{
				HostPath: &kubecore.HostPathVolumeSource{Path: host},
			},
		})
		mounts = append(mounts, kubecore.VolumeMount{
			Name:      volName,
			MountPath: mount.Bind,
			ReadOnly:  mount.Mode == spawner.ReadOnly,
		})
	}

	return &kubebatch.Job{
		ObjectMeta: kubeapimeta.ObjectMeta{Name: jobName},
		Spec: kubebatch.JobSpec{
			BackoffLimit: ptr.Ref(int32(0)),
			Template: kubecore.PodTemplateSpec{
				Spec: kubecore.PodSpec{
					RestartPolicy: kubecore.RestartPolicyNever,
					Containers: []kubecore.Container{
						{
							Name:         mainContainer,
							Image:        ref.Name(),
							Args:         strings.Fields(command),
							VolumeMounts: mounts,
						},
					},
					Volumes: vols,
				},
			},
		},
	}, nil
}

func (s *Spawner) containerLog(ctx context.Context, jobName string) (string, error) {
	pods, err := s.client.CoreV1().Pods(s.namespace).List(
		ctx, kubeapimeta.ListOptions{LabelSelector: "job-name=" + jobName},
	)
	if err != nil {
		return "", err
	}
	if len(pods.Items) == 0 {
		return "", fmt.Errorf("no pod found for job %s", jobName)
	}

	stream, err := s.client.CoreV1().
		Pods(s.namespace).
		GetLogs(pods.Items[0].Name, &kubecore.PodLogOptions{Container: mainContainer}).
		Stream(ctx)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	buf, err := io.ReadAll(stream)
	if err != nil {
		return "", err
	}
	return string(buf), nil
}
